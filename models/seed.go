package models

import "gorm.io/gorm"

// Seed the welcome sequence on first boot so a fresh install greets
// newsletter signups without any admin setup
func CreateDefaultSequences(db *gorm.DB) error {
	welcome := Template{
		Name:    "welcome",
		Subject: "Welcome, and what to expect",
		Body: `<p>Hi {{.FirstName}},</p>
<p>Thanks for joining the newsletter. Once or twice a month you'll get
practical notes on managing anxiety, stress, and burnout. No spam, and
you can unsubscribe any time.</p>`,
	}
	if err := db.FirstOrCreate(&welcome, "name = ?", welcome.Name).Error; err != nil {
		return err
	}

	checkin := Template{
		Name:    "welcome-follow-up",
		Subject: "A few resources to get started",
		Body: `<p>Hi {{.FirstName}},</p>
<p>Here are the three most-read guides from the practice, in case one of
them speaks to where you are right now.</p>`,
	}
	if err := db.FirstOrCreate(&checkin, "name = ?", checkin.Name).Error; err != nil {
		return err
	}

	sequence := Sequence{
		Name:        "Newsletter Welcome",
		Description: "Two-step welcome for new newsletter subscribers",
		Trigger:     TriggerNewsletterSignup,
		Status:      SequenceActive,
	}
	if err := db.FirstOrCreate(&sequence, "name = ?", sequence.Name).Error; err != nil {
		return err
	}

	messages := []SequenceMessage{
		{SequenceID: sequence.ID, TemplateID: welcome.ID, Position: 1, DelayHours: 0, DelayDays: 0},
		{SequenceID: sequence.ID, TemplateID: checkin.ID, Position: 2, DelayHours: 0, DelayDays: 3},
	}
	for _, msg := range messages {
		if err := db.FirstOrCreate(&msg, "sequence_id = ? AND position = ?", msg.SequenceID, msg.Position).Error; err != nil {
			return err
		}
	}
	return nil
}
