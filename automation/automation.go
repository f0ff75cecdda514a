// Package automation implements the email sequence enrollment subsystem:
// deciding which drip sequences a trigger enrolls a subscriber in, when
// each message should fire, and the enrollment lifecycle (pause, resume,
// unsubscribe). Actual delivery is the dispatch worker's job.
package automation

import (
	"context"
	"errors"
	"time"

	"calmreach/models"
)

var (
	// ErrAlreadyEnrolled is returned by EnrollmentStore.Insert when the
	// partial unique index rejects a second active enrollment for the
	// same (subscriber, sequence) pair. Callers treat it as a no-op.
	ErrAlreadyEnrolled = errors.New("subscriber already has an active enrollment in this sequence")

	// ErrEnrollmentNotFound is returned by lookups for an unknown enrollment id.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrInvalidTransition is returned when a lifecycle operation is applied
	// to an enrollment whose current status does not allow it, e.g. resuming
	// an unsubscribed enrollment. Unsubscribed and completed are terminal.
	ErrInvalidTransition = errors.New("enrollment status does not allow this transition")
)

// SequenceCatalog is the read-only lookup of drip sequences and their messages.
type SequenceCatalog interface {
	// FindActiveByTrigger returns every active sequence bound to the trigger.
	// An empty result is normal, not an error.
	FindActiveByTrigger(ctx context.Context, trigger models.Trigger) ([]models.Sequence, error)

	// FindMessageAt returns the message at the given 1-based position,
	// or nil when the sequence has no message there.
	FindMessageAt(ctx context.Context, sequenceID uint, position int) (*models.SequenceMessage, error)
}

// EnrollmentStore persists enrollment rows and their progression state.
type EnrollmentStore interface {
	// FindActive returns the active enrollment for the pair, or nil.
	FindActive(ctx context.Context, subscriberID, sequenceID uint) (*models.Enrollment, error)

	FindByID(ctx context.Context, id uint) (*models.Enrollment, error)

	// Insert creates the row and fills in its ID. Returns ErrAlreadyEnrolled
	// when the active-enrollment uniqueness constraint rejects it.
	Insert(ctx context.Context, enrollment *models.Enrollment) error

	Update(ctx context.Context, id uint, patch map[string]interface{}) error

	// UpdateBySubscriberStatus patches every enrollment of the subscriber
	// currently in fromStatus and reports how many rows changed.
	UpdateBySubscriberStatus(ctx context.Context, subscriberID uint, fromStatus string, patch map[string]interface{}) (int64, error)
}

// ActivitySink appends audit entries. Implementations may fail; the
// manager swallows those failures.
type ActivitySink interface {
	Record(ctx context.Context, entry *models.ActivityLog) error
}

// Clock abstracts time.Now so enrollment timing is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
