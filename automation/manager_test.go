package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"calmreach/models"
)

type fakeCatalog struct {
	sequences map[models.Trigger][]models.Sequence
	messages  map[uint][]models.SequenceMessage
	err       error
}

func (f *fakeCatalog) FindActiveByTrigger(_ context.Context, trigger models.Trigger) ([]models.Sequence, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sequences[trigger], nil
}

func (f *fakeCatalog) FindMessageAt(_ context.Context, sequenceID uint, position int) (*models.SequenceMessage, error) {
	for _, msg := range f.messages[sequenceID] {
		if msg.Position == position {
			m := msg
			return &m, nil
		}
	}
	return nil, nil
}

type fakeStore struct {
	rows      map[uint]*models.Enrollment
	nextID    uint
	insertErr error
	findErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[uint]*models.Enrollment{}, nextID: 1}
}

func (f *fakeStore) FindActive(_ context.Context, subscriberID, sequenceID uint) (*models.Enrollment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, e := range f.rows {
		if e.SubscriberID == subscriberID && e.SequenceID == sequenceID && e.Status == models.EnrollmentActive {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByID(_ context.Context, id uint) (*models.Enrollment, error) {
	e, ok := f.rows[id]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	return e, nil
}

func (f *fakeStore) Insert(_ context.Context, e *models.Enrollment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.rows {
		if existing.SubscriberID == e.SubscriberID && existing.SequenceID == e.SequenceID && existing.Status == models.EnrollmentActive {
			return ErrAlreadyEnrolled
		}
	}
	e.ID = f.nextID
	f.nextID++
	f.rows[e.ID] = e
	return nil
}

func (f *fakeStore) Update(_ context.Context, id uint, patch map[string]interface{}) error {
	e, ok := f.rows[id]
	if !ok {
		return ErrEnrollmentNotFound
	}
	applyPatch(e, patch)
	return nil
}

func (f *fakeStore) UpdateBySubscriberStatus(_ context.Context, subscriberID uint, fromStatus string, patch map[string]interface{}) (int64, error) {
	var count int64
	for _, e := range f.rows {
		if e.SubscriberID == subscriberID && e.Status == fromStatus {
			applyPatch(e, patch)
			count++
		}
	}
	return count, nil
}

func applyPatch(e *models.Enrollment, patch map[string]interface{}) {
	if v, ok := patch["status"]; ok {
		e.Status = v.(string)
	}
	if v, ok := patch["paused_at"]; ok {
		if v == nil {
			e.PausedAt = nil
		} else {
			t := v.(time.Time)
			e.PausedAt = &t
		}
	}
}

type fakeSink struct {
	entries []models.ActivityLog
	err     error
}

func (f *fakeSink) Record(_ context.Context, entry *models.ActivityLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeSink) actions() []string {
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestManager(store EnrollmentStore, catalog SequenceCatalog, sink ActivitySink, now time.Time) *EnrollmentManager {
	return NewEnrollmentManager(store, catalog, sink, NewScheduler(time.UTC), fakeClock{now: now}, quietLogger())
}

func welcomeCatalog() *fakeCatalog {
	return &fakeCatalog{
		sequences: map[models.Trigger][]models.Sequence{
			models.TriggerNewsletterSignup: {
				{Model: gorm.Model{ID: 10}, Name: "Welcome", Trigger: models.TriggerNewsletterSignup, Status: models.SequenceActive},
			},
		},
		messages: map[uint][]models.SequenceMessage{
			10: {{SequenceID: 10, Position: 1, DelayHours: 0, DelayDays: 0, TemplateID: 1}},
		},
	}
}

func TestEnrollCreatesActiveEnrollment(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	now := date(7, 10, 0) // Tuesday
	m := newTestManager(store, welcomeCatalog(), sink, now)

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Enrollments, 1)
	assert.Empty(t, result.Errors)

	e := result.Enrollments[0]
	assert.Equal(t, models.EnrollmentActive, e.Status)
	assert.Equal(t, 0, e.CurrentPosition)
	require.NotNil(t, e.NextSendAt)
	assert.Equal(t, date(7, 10, 5), *e.NextSendAt) // 5-minute floor

	assert.Equal(t, []string{models.ActionEnrolled, models.ActionBulkEnrollment}, sink.actions())
}

func TestEnrollIsIdempotent(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	first, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	require.Len(t, first.Enrollments, 1)

	second, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Empty(t, second.Enrollments)
	assert.Empty(t, second.Errors)
	assert.Len(t, store.rows, 1)
}

func TestEnrollNoMatchingSequences(t *testing.T) {
	m := newTestManager(newFakeStore(), welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerCourseInactive, "cron", nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Enrollments)
	assert.Empty(t, result.Errors)
}

func TestEnrollFanOutWithPartialFailure(t *testing.T) {
	catalog := &fakeCatalog{
		sequences: map[models.Trigger][]models.Sequence{
			models.TriggerCoursePurchase: {
				{Model: gorm.Model{ID: 20}, Name: "Course Onboarding", Trigger: models.TriggerCoursePurchase, Status: models.SequenceActive},
				{Model: gorm.Model{ID: 21}, Name: "Broken", Trigger: models.TriggerCoursePurchase, Status: models.SequenceActive},
			},
		},
		messages: map[uint][]models.SequenceMessage{
			20: {{SequenceID: 20, Position: 1, DelayDays: 1}},
			// sequence 21 has no messages at all
		},
	}
	store := newFakeStore()
	m := newTestManager(store, catalog, &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 5, models.TriggerCoursePurchase, "stripe", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Enrollments, 1)
	assert.Equal(t, uint(20), result.Enrollments[0].SequenceID)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, uint(21), result.Errors[0].SequenceID)
	assert.Equal(t, "Broken", result.Errors[0].SequenceName)
	assert.Contains(t, result.Errors[0].Message, "no emails configured")

	assert.Len(t, store.rows, 1)
}

func TestEnrollSwallowsUniqueConstraintRace(t *testing.T) {
	store := newFakeStore()
	store.insertErr = ErrAlreadyEnrolled
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Enrollments)
	assert.Empty(t, result.Errors)
}

func TestEnrollCatalogErrorIsFatal(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("connection refused")}
	m := newTestManager(newFakeStore(), catalog, &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestEnrollMergesMetadata(t *testing.T) {
	m := newTestManager(newFakeStore(), welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "resource_page", map[string]interface{}{
		"resource": "anxiety-workbook.pdf",
	})
	require.NoError(t, err)
	require.Len(t, result.Enrollments, 1)

	meta := result.Enrollments[0].Metadata
	assert.Equal(t, "anxiety-workbook.pdf", meta["resource"])
	assert.Equal(t, string(models.TriggerNewsletterSignup), meta["trigger"])
	assert.Equal(t, "Welcome", meta["sequence_name"])
}

func TestEnrollActivityFailureDoesNotSurface(t *testing.T) {
	sink := &fakeSink{err: errors.New("activity table gone")}
	m := newTestManager(newFakeStore(), welcomeCatalog(), sink, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Enrollments, 1)
}

func TestEnrollOnSaturdaySchedulesMondayOpening(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(4, 14, 0)) // Saturday 14:00

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	require.Len(t, result.Enrollments, 1)

	e := result.Enrollments[0]
	assert.Equal(t, models.EnrollmentActive, e.Status)
	assert.Equal(t, 0, e.CurrentPosition)
	require.NotNil(t, e.NextSendAt)
	assert.Equal(t, date(6, 9, 0), *e.NextSendAt) // Monday 09:00
}

func TestPauseAndResume(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	now := date(7, 10, 0)
	m := newTestManager(store, welcomeCatalog(), sink, now)

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	id := result.Enrollments[0].ID
	originalSend := *store.rows[id].NextSendAt

	require.NoError(t, m.PauseEnrollment(context.Background(), id))
	paused := store.rows[id]
	assert.Equal(t, models.EnrollmentPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)
	assert.Equal(t, now, *paused.PausedAt)
	assert.Equal(t, 0, paused.CurrentPosition)
	assert.Equal(t, originalSend, *paused.NextSendAt)

	require.NoError(t, m.ResumeEnrollment(context.Background(), id))
	resumed := store.rows[id]
	assert.Equal(t, models.EnrollmentActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	// Resume keeps the originally computed send time.
	assert.Equal(t, originalSend, *resumed.NextSendAt)

	assert.Contains(t, sink.actions(), models.ActionPaused)
	assert.Contains(t, sink.actions(), models.ActionResumed)
}

func TestPauseUnknownEnrollment(t *testing.T) {
	m := newTestManager(newFakeStore(), welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	err := m.PauseEnrollment(context.Background(), 999)
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
}

func TestResumeRejectsUnsubscribedEnrollment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	id := result.Enrollments[0].ID
	require.NoError(t, m.UnsubscribeEnrollment(context.Background(), id))

	err = m.ResumeEnrollment(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	// Unsubscribed is terminal; the row must not come back to life.
	assert.Equal(t, models.EnrollmentUnsubscribed, store.rows[id].Status)
}

func TestResumeRejectsActiveEnrollment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	id := result.Enrollments[0].ID

	err = m.ResumeEnrollment(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.EnrollmentActive, store.rows[id].Status)
}

func TestPauseRejectsTerminalStatuses(t *testing.T) {
	for _, status := range []string{models.EnrollmentUnsubscribed, models.EnrollmentCompleted} {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

			row := &models.Enrollment{SubscriberID: 1, SequenceID: 10, Status: status}
			require.NoError(t, store.Insert(context.Background(), row))

			err := m.PauseEnrollment(context.Background(), row.ID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, status, store.rows[row.ID].Status)
		})
	}
}

func TestUnsubscribeEnrollment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	result, err := m.Enroll(context.Background(), 1, models.TriggerNewsletterSignup, "signup_form", nil)
	require.NoError(t, err)
	id := result.Enrollments[0].ID

	require.NoError(t, m.UnsubscribeEnrollment(context.Background(), id))
	assert.Equal(t, models.EnrollmentUnsubscribed, store.rows[id].Status)

	// Unsubscribing again is a harmless no-op.
	require.NoError(t, m.UnsubscribeEnrollment(context.Background(), id))
	assert.Equal(t, models.EnrollmentUnsubscribed, store.rows[id].Status)
}

func TestUnsubscribeRejectsCompletedEnrollment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, welcomeCatalog(), &fakeSink{}, date(7, 10, 0))

	row := &models.Enrollment{SubscriberID: 1, SequenceID: 10, Status: models.EnrollmentCompleted}
	require.NoError(t, store.Insert(context.Background(), row))

	err := m.UnsubscribeEnrollment(context.Background(), row.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.EnrollmentCompleted, store.rows[row.ID].Status)
}

func TestUnsubscribeAllLeavesPausedAlone(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	m := newTestManager(store, welcomeCatalog(), sink, date(7, 10, 0))

	active := &models.Enrollment{SubscriberID: 1, SequenceID: 10, Status: models.EnrollmentActive}
	require.NoError(t, store.Insert(context.Background(), active))
	paused := &models.Enrollment{SubscriberID: 1, SequenceID: 11, Status: models.EnrollmentPaused}
	paused.ID = 99
	store.rows[99] = paused

	require.NoError(t, m.UnsubscribeAll(context.Background(), 1))

	assert.Equal(t, models.EnrollmentUnsubscribed, store.rows[active.ID].Status)
	assert.Equal(t, models.EnrollmentPaused, store.rows[99].Status)
	assert.Contains(t, sink.actions(), models.ActionUnsubscribedAll)
}
