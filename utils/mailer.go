package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"calmreach/config"
	"calmreach/models"
)

// Mailer delivers one rendered sequence message and returns the
// Message-ID it was sent with.
type Mailer interface {
	Send(to, toName, subject, htmlBody string) (string, error)
}

// SequenceMailer sends sequence emails over SMTP.
type SequenceMailer struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

func NewSequenceMailer(cfg config.Config) *SequenceMailer {
	return &SequenceMailer{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (m *SequenceMailer) Send(to, toName, subject, htmlBody string) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), m.host)

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetAddressHeader("To", to, toName)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return messageID, nil
}

// TemplateData is what sequence templates can reference.
type TemplateData struct {
	FirstName string
	LastName  string
	Email     string
}

// RenderTemplate executes a stored template's subject and body against
// the subscriber's details.
func RenderTemplate(tmpl models.Template, subscriber models.Subscriber) (subject, body string, err error) {
	data := TemplateData{
		FirstName: subscriber.FirstName,
		LastName:  subscriber.LastName,
		Email:     subscriber.Email,
	}
	if data.FirstName == "" {
		data.FirstName = "there"
	}

	subject, err = renderString("subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = renderString("body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func renderString(name, text string, data TemplateData) (string, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}
