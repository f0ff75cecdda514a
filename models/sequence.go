package models

import "gorm.io/gorm"

// Trigger identifies a business event that can enroll a subscriber into
// one or more sequences. Producers and the catalog share this closed set
// so a typo fails Valid() instead of silently matching nothing.
type Trigger string

const (
	TriggerNewsletterSignup    Trigger = "newsletter_signup"
	TriggerResourceDownload    Trigger = "resource_download"
	TriggerCoursePurchase      Trigger = "course_purchase"
	TriggerAppointmentBooked   Trigger = "appointment_booked"
	TriggerAppointmentReminder Trigger = "appointment_reminder"
	TriggerCourseInactive      Trigger = "course_inactive_14_days"
)

var knownTriggers = map[Trigger]struct{}{
	TriggerNewsletterSignup:    {},
	TriggerResourceDownload:    {},
	TriggerCoursePurchase:      {},
	TriggerAppointmentBooked:   {},
	TriggerAppointmentReminder: {},
	TriggerCourseInactive:      {},
}

func (t Trigger) Valid() bool {
	_, ok := knownTriggers[t]
	return ok
}

// Sequence represents an automated drip campaign bound to a trigger
type Sequence struct {
	gorm.Model
	Name        string  `gorm:"not null" json:"name"`
	Description string  `json:"description"`
	Trigger     Trigger `gorm:"not null;index" json:"trigger"`
	Status      string  `gorm:"default:'active'" json:"status"` // active, inactive

	// Relations
	Messages []SequenceMessage `gorm:"foreignKey:SequenceID" json:"messages,omitempty"`
}

const (
	SequenceActive   = "active"
	SequenceInactive = "inactive"
)

// SequenceMessage represents one step of a sequence. Position is 1-based
// and unique within the sequence; every usable sequence has a position 1.
type SequenceMessage struct {
	gorm.Model
	SequenceID uint `gorm:"not null;uniqueIndex:idx_sequence_position" json:"sequence_id"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	Position   int `gorm:"not null;uniqueIndex:idx_sequence_position" json:"position"`
	DelayHours int `gorm:"default:0" json:"delay_hours"`
	DelayDays  int `gorm:"default:0" json:"delay_days"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`

	// Relations
	Template Template `json:"-"`
}

// Template holds the subject and HTML body for a sequence message
type Template struct {
	gorm.Model
	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`
}
