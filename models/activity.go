package models

import "gorm.io/gorm"

// ActivityLog is the append-only audit trail for enrollment lifecycle
// events. Writes are best-effort; a failed insert never aborts the flow
// it is reporting on.
type ActivityLog struct {
	gorm.Model
	EnrollmentID *uint `gorm:"index" json:"enrollment_id,omitempty"`
	SubscriberID *uint `gorm:"index" json:"subscriber_id,omitempty"`

	Action  string                 `gorm:"not null;index" json:"action"`
	Details map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"details"`
}

const (
	ActionEnrolled        = "enrolled"
	ActionBulkEnrollment  = "bulk_enrollment"
	ActionPaused          = "paused"
	ActionResumed         = "resumed"
	ActionUnsubscribed    = "unsubscribed"
	ActionUnsubscribedAll = "unsubscribed_all"
	ActionMessageSent     = "message_sent"
	ActionCompleted       = "completed"
)
