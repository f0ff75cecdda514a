package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment binds one subscriber to one sequence and tracks progression.
// At most one active enrollment may exist per (subscriber, sequence) pair;
// the partial unique index created in config.migrateDB enforces this against
// concurrent triggers.
type Enrollment struct {
	gorm.Model
	SubscriberID uint `gorm:"not null;index" json:"subscriber_id"`
	SequenceID   uint `gorm:"not null;index" json:"sequence_id"`

	Source string `json:"enrollment_source"` // free-text provenance, e.g. "signup_form", "stripe"
	Status string `gorm:"default:'active';index" json:"status"` // active, paused, unsubscribed, completed

	// Progression state. CurrentPosition is the last message successfully
	// processed; NextSendAt only means anything while the row is active.
	CurrentPosition int        `gorm:"default:0" json:"current_position"`
	NextSendAt      *time.Time `gorm:"index" json:"next_send_at"`
	PausedAt        *time.Time `json:"paused_at"`

	Metadata map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`

	// Relations
	Subscriber Subscriber `json:"-"`
	Sequence   Sequence   `json:"-"`
}

const (
	EnrollmentActive       = "active"
	EnrollmentPaused       = "paused"
	EnrollmentUnsubscribed = "unsubscribed"
	EnrollmentCompleted    = "completed"
)
