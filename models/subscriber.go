package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber represents a contact captured from the public site
type Subscriber struct {
	gorm.Model
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// Status
	Status string `gorm:"default:'subscribed'" json:"status"` // subscribed, unsubscribed

	// Metadata
	Source        string     `json:"source"` // newsletter form, resource page, checkout, etc.
	LastContactAt *time.Time `json:"last_contact_at"`

	// Relations
	Enrollments []Enrollment `gorm:"foreignKey:SubscriberID" json:"enrollments,omitempty"`
}

const (
	SubscriberSubscribed   = "subscribed"
	SubscriberUnsubscribed = "unsubscribed"
)
