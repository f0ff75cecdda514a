package automation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"calmreach/models"
)

// GormEnrollmentStore persists enrollments in Postgres. Duplicate-key
// detection relies on gorm's TranslateError being enabled on the
// connection so the partial unique index surfaces as ErrDuplicatedKey.
type GormEnrollmentStore struct {
	db *gorm.DB
}

func NewGormEnrollmentStore(db *gorm.DB) *GormEnrollmentStore {
	return &GormEnrollmentStore{db: db}
}

func (s *GormEnrollmentStore) FindActive(ctx context.Context, subscriberID, sequenceID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND sequence_id = ? AND status = ?", subscriberID, sequenceID, models.EnrollmentActive).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (s *GormEnrollmentStore) FindByID(ctx context.Context, id uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.WithContext(ctx).First(&enrollment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("enrollment %d: %w", id, ErrEnrollmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (s *GormEnrollmentStore) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	err := s.db.WithContext(ctx).Create(enrollment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyEnrolled
	}
	return err
}

func (s *GormEnrollmentStore) Update(ctx context.Context, id uint, patch map[string]interface{}) error {
	tx := s.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", id).Updates(patch)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("enrollment %d: %w", id, ErrEnrollmentNotFound)
	}
	return nil
}

func (s *GormEnrollmentStore) UpdateBySubscriberStatus(ctx context.Context, subscriberID uint, fromStatus string, patch map[string]interface{}) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("subscriber_id = ? AND status = ?", subscriberID, fromStatus).
		Updates(patch)
	return tx.RowsAffected, tx.Error
}

// GormSequenceCatalog reads sequences and messages from Postgres.
type GormSequenceCatalog struct {
	db *gorm.DB
}

func NewGormSequenceCatalog(db *gorm.DB) *GormSequenceCatalog {
	return &GormSequenceCatalog{db: db}
}

func (c *GormSequenceCatalog) FindActiveByTrigger(ctx context.Context, trigger models.Trigger) ([]models.Sequence, error) {
	var sequences []models.Sequence
	err := c.db.WithContext(ctx).
		Where("trigger = ? AND status = ?", trigger, models.SequenceActive).
		Find(&sequences).Error
	return sequences, err
}

func (c *GormSequenceCatalog) FindMessageAt(ctx context.Context, sequenceID uint, position int) (*models.SequenceMessage, error) {
	var message models.SequenceMessage
	err := c.db.WithContext(ctx).
		Preload("Template").
		Where("sequence_id = ? AND position = ?", sequenceID, position).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// GormActivitySink appends audit rows to the activity_logs table.
type GormActivitySink struct {
	db *gorm.DB
}

func NewGormActivitySink(db *gorm.DB) *GormActivitySink {
	return &GormActivitySink{db: db}
}

func (s *GormActivitySink) Record(ctx context.Context, entry *models.ActivityLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
