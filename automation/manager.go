package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"calmreach/models"
)

// EnrollmentManager orchestrates trigger fan-out: look up the sequences
// bound to a trigger, create an enrollment per sequence unless one is
// already active, and audit-log what happened. One instance is built in
// main with its dependencies injected; there is no package-level state.
type EnrollmentManager struct {
	store    EnrollmentStore
	catalog  SequenceCatalog
	activity ActivitySink
	sched    *Scheduler
	clock    Clock
	log      *logrus.Logger
}

func NewEnrollmentManager(store EnrollmentStore, catalog SequenceCatalog, activity ActivitySink, sched *Scheduler, clock Clock, log *logrus.Logger) *EnrollmentManager {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = logrus.New()
	}
	return &EnrollmentManager{
		store:    store,
		catalog:  catalog,
		activity: activity,
		sched:    sched,
		clock:    clock,
		log:      log,
	}
}

// EnrollmentResult reports the outcome of one trigger firing. Partial
// success is the normal shape when several sequences share a trigger:
// each sequence enrolls or fails independently.
type EnrollmentResult struct {
	Success     bool                `json:"success"`
	Enrollments []models.Enrollment `json:"enrollments"`
	Errors      []EnrollmentError   `json:"errors"`
}

// EnrollmentError is a per-sequence failure inside an Enroll call.
type EnrollmentError struct {
	SequenceID   uint   `json:"sequence_id"`
	SequenceName string `json:"sequence_name"`
	Message      string `json:"message"`
}

// Enroll fans the trigger out across every active sequence bound to it.
// A trigger with no configured sequences succeeds with empty results.
// The returned error is only non-nil when the catalog lookup itself
// fails; per-sequence problems land in the result's Errors slice.
func (m *EnrollmentManager) Enroll(ctx context.Context, subscriberID uint, trigger models.Trigger, source string, metadata map[string]interface{}) (*EnrollmentResult, error) {
	sequences, err := m.catalog.FindActiveByTrigger(ctx, trigger)
	if err != nil {
		return nil, fmt.Errorf("looking up sequences for trigger %q: %w", trigger, err)
	}

	result := &EnrollmentResult{
		Enrollments: []models.Enrollment{},
		Errors:      []EnrollmentError{},
	}

	for _, sequence := range sequences {
		enrollment, err := m.enrollInSequence(ctx, subscriberID, sequence, trigger, source, metadata)
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"subscriber_id": subscriberID,
				"sequence_id":   sequence.ID,
				"trigger":       trigger,
			}).WithError(err).Warn("sequence enrollment failed")
			result.Errors = append(result.Errors, EnrollmentError{
				SequenceID:   sequence.ID,
				SequenceName: sequence.Name,
				Message:      err.Error(),
			})
			continue
		}
		if enrollment == nil {
			// Already actively enrolled; the re-fired trigger is a no-op.
			continue
		}
		result.Enrollments = append(result.Enrollments, *enrollment)
	}

	result.Success = len(result.Errors) == 0

	m.record(ctx, &models.ActivityLog{
		SubscriberID: &subscriberID,
		Action:       models.ActionBulkEnrollment,
		Details: map[string]interface{}{
			"trigger":  string(trigger),
			"source":   source,
			"matched":  len(sequences),
			"enrolled": len(result.Enrollments),
			"errors":   len(result.Errors),
		},
	})

	return result, nil
}

func (m *EnrollmentManager) enrollInSequence(ctx context.Context, subscriberID uint, sequence models.Sequence, trigger models.Trigger, source string, metadata map[string]interface{}) (*models.Enrollment, error) {
	existing, err := m.store.FindActive(ctx, subscriberID, sequence.ID)
	if err != nil {
		return nil, fmt.Errorf("checking existing enrollment: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	first, err := m.catalog.FindMessageAt(ctx, sequence.ID, 1)
	if err != nil {
		return nil, fmt.Errorf("loading first message: %w", err)
	}
	if first == nil {
		// A matched sequence with zero messages is a configuration
		// defect, not an empty result.
		return nil, fmt.Errorf("sequence %q has no emails configured", sequence.Name)
	}

	merged := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["trigger"] = string(trigger)
	merged["sequence_name"] = sequence.Name

	nextSendAt := m.sched.NextSendTime(m.clock.Now(), first.DelayHours, first.DelayDays)

	enrollment := &models.Enrollment{
		SubscriberID:    subscriberID,
		SequenceID:      sequence.ID,
		Source:          source,
		Status:          models.EnrollmentActive,
		CurrentPosition: 0,
		NextSendAt:      &nextSendAt,
		Metadata:        merged,
	}

	if err := m.store.Insert(ctx, enrollment); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			// Lost a race against a concurrent trigger for the same
			// pair; same outcome as the pre-insert check.
			return nil, nil
		}
		return nil, fmt.Errorf("creating enrollment: %w", err)
	}

	m.record(ctx, &models.ActivityLog{
		EnrollmentID: &enrollment.ID,
		SubscriberID: &subscriberID,
		Action:       models.ActionEnrolled,
		Details: map[string]interface{}{
			"sequence_id":   sequence.ID,
			"sequence_name": sequence.Name,
			"trigger":       string(trigger),
			"next_send_at":  nextSendAt,
		},
	})

	return enrollment, nil
}

// PauseEnrollment stops further sends without losing progression state.
// Only active (or already paused) enrollments can be paused; unsubscribed
// and completed are terminal.
func (m *EnrollmentManager) PauseEnrollment(ctx context.Context, id uint) error {
	enrollment, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch enrollment.Status {
	case models.EnrollmentActive, models.EnrollmentPaused:
	default:
		return fmt.Errorf("pausing enrollment %d in status %q: %w", id, enrollment.Status, ErrInvalidTransition)
	}

	if err := m.store.Update(ctx, id, map[string]interface{}{
		"status":    models.EnrollmentPaused,
		"paused_at": m.clock.Now(),
	}); err != nil {
		return fmt.Errorf("pausing enrollment %d: %w", id, err)
	}

	m.record(ctx, &models.ActivityLog{
		EnrollmentID: &id,
		SubscriberID: &enrollment.SubscriberID,
		Action:       models.ActionPaused,
	})
	return nil
}

// ResumeEnrollment reactivates a paused enrollment. NextSendAt is left as
// previously computed; an overdue send time simply makes the row due on
// the dispatch worker's next pass. Only paused enrollments can be resumed.
func (m *EnrollmentManager) ResumeEnrollment(ctx context.Context, id uint) error {
	enrollment, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if enrollment.Status != models.EnrollmentPaused {
		return fmt.Errorf("resuming enrollment %d in status %q: %w", id, enrollment.Status, ErrInvalidTransition)
	}

	if err := m.store.Update(ctx, id, map[string]interface{}{
		"status":    models.EnrollmentActive,
		"paused_at": nil,
	}); err != nil {
		return fmt.Errorf("resuming enrollment %d: %w", id, err)
	}

	m.record(ctx, &models.ActivityLog{
		EnrollmentID: &id,
		SubscriberID: &enrollment.SubscriberID,
		Action:       models.ActionResumed,
	})
	return nil
}

// UnsubscribeEnrollment is terminal: the row never becomes active again.
// Unsubscribing twice is a no-op; a completed enrollment stays completed.
func (m *EnrollmentManager) UnsubscribeEnrollment(ctx context.Context, id uint) error {
	enrollment, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if enrollment.Status == models.EnrollmentUnsubscribed {
		return nil
	}
	if enrollment.Status == models.EnrollmentCompleted {
		return fmt.Errorf("unsubscribing enrollment %d in status %q: %w", id, enrollment.Status, ErrInvalidTransition)
	}

	if err := m.store.Update(ctx, id, map[string]interface{}{
		"status": models.EnrollmentUnsubscribed,
	}); err != nil {
		return fmt.Errorf("unsubscribing enrollment %d: %w", id, err)
	}

	m.record(ctx, &models.ActivityLog{
		EnrollmentID: &id,
		SubscriberID: &enrollment.SubscriberID,
		Action:       models.ActionUnsubscribed,
	})
	return nil
}

// UnsubscribeAll unsubscribes every currently active enrollment of the
// subscriber. Paused enrollments are deliberately left alone; resuming
// one later is still possible.
func (m *EnrollmentManager) UnsubscribeAll(ctx context.Context, subscriberID uint) error {
	count, err := m.store.UpdateBySubscriberStatus(ctx, subscriberID, models.EnrollmentActive, map[string]interface{}{
		"status": models.EnrollmentUnsubscribed,
	})
	if err != nil {
		return fmt.Errorf("unsubscribing all enrollments for subscriber %d: %w", subscriberID, err)
	}

	m.record(ctx, &models.ActivityLog{
		SubscriberID: &subscriberID,
		Action:       models.ActionUnsubscribedAll,
		Details:      map[string]interface{}{"count": count},
	})
	return nil
}

// record appends an audit entry, best-effort. Audit failures are logged
// and dropped: the log exists to debug enrollments, never to break them.
func (m *EnrollmentManager) record(ctx context.Context, entry *models.ActivityLog) {
	if err := m.activity.Record(ctx, entry); err != nil {
		m.log.WithField("action", entry.Action).WithError(err).Warn("failed to write activity log entry")
	}
}
