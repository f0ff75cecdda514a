package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"calmreach/automation"
	"calmreach/models"
	"calmreach/utils"
)

// DispatchWorker periodically picks up due enrollments, sends the next
// message of each, and advances their progression state. An enrollment is
// due when status = active and next_send_at has passed; an enrollment
// resumed long after its scheduled time is simply overdue and goes out on
// the next pass.
type DispatchWorker struct {
	DB        *gorm.DB
	Mailer    utils.Mailer
	Scheduler *automation.Scheduler
	Activity  automation.ActivitySink
	Logger    *log.Logger

	Interval  time.Duration
	BatchSize int
}

func NewDispatchWorker(db *gorm.DB, mailer utils.Mailer, scheduler *automation.Scheduler, activity automation.ActivitySink, logger *log.Logger, interval time.Duration, batchSize int) *DispatchWorker {
	return &DispatchWorker{
		DB:        db,
		Mailer:    mailer,
		Scheduler: scheduler,
		Activity:  activity,
		Logger:    logger,
		Interval:  interval,
		BatchSize: batchSize,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.processDueEnrollments(ctx)
		}
	}
}

func (dw *DispatchWorker) processDueEnrollments(ctx context.Context) {
	var due []models.Enrollment
	if err := dw.DB.WithContext(ctx).
		Where("status = ? AND next_send_at <= ?", models.EnrollmentActive, time.Now()).
		Order("next_send_at").
		Limit(dw.BatchSize).
		Find(&due).Error; err != nil {
		dw.Logger.Printf("Error fetching due enrollments: %v", err)
		return
	}

	for _, enrollment := range due {
		if err := dw.processEnrollment(ctx, enrollment); err != nil {
			// Leave the row due so it retries on the next pass
			dw.Logger.Printf("Error processing enrollment %d: %v", enrollment.ID, err)
		}
	}
}

func (dw *DispatchWorker) processEnrollment(ctx context.Context, enrollment models.Enrollment) error {
	position := enrollment.CurrentPosition + 1

	message, err := dw.findMessage(ctx, enrollment.SequenceID, position)
	if err != nil {
		return err
	}
	if message == nil {
		// Position advanced past the last message; nothing left to send.
		return dw.completeEnrollment(ctx, enrollment)
	}

	var subscriber models.Subscriber
	if err := dw.DB.WithContext(ctx).First(&subscriber, enrollment.SubscriberID).Error; err != nil {
		return fmt.Errorf("loading subscriber %d: %w", enrollment.SubscriberID, err)
	}

	if subscriber.Status == models.SubscriberUnsubscribed {
		dw.Logger.Printf("Subscriber %d unsubscribed, closing enrollment %d", subscriber.ID, enrollment.ID)
		return dw.DB.WithContext(ctx).Model(&enrollment).Updates(map[string]interface{}{
			"status":       models.EnrollmentUnsubscribed,
			"next_send_at": nil,
		}).Error
	}

	subject, body, err := utils.RenderTemplate(message.Template, subscriber)
	if err != nil {
		return fmt.Errorf("rendering message %d of sequence %d: %w", position, enrollment.SequenceID, err)
	}

	messageID, err := dw.Mailer.Send(subscriber.Email, subscriber.FirstName, subject, body)
	if err != nil {
		return err
	}

	if err := dw.DB.WithContext(ctx).Model(&models.SequenceMessage{}).
		Where("id = ?", message.ID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
		dw.Logger.Printf("Failed to bump sent count for message %d: %v", message.ID, err)
	}

	dw.recordActivity(ctx, &models.ActivityLog{
		EnrollmentID: &enrollment.ID,
		SubscriberID: &subscriber.ID,
		Action:       models.ActionMessageSent,
		Details: map[string]interface{}{
			"sequence_id": enrollment.SequenceID,
			"position":    position,
			"message_id":  messageID,
		},
	})

	return dw.advanceEnrollment(ctx, enrollment, position)
}

// advanceEnrollment moves the cursor past the sent message and schedules
// the next one, or completes the enrollment when the list is exhausted.
func (dw *DispatchWorker) advanceEnrollment(ctx context.Context, enrollment models.Enrollment, sentPosition int) error {
	next, err := dw.findMessage(ctx, enrollment.SequenceID, sentPosition+1)
	if err != nil {
		return err
	}

	if next == nil {
		if err := dw.DB.WithContext(ctx).Model(&enrollment).Updates(map[string]interface{}{
			"current_position": sentPosition,
			"status":           models.EnrollmentCompleted,
			"next_send_at":     nil,
		}).Error; err != nil {
			return err
		}
		dw.recordActivity(ctx, &models.ActivityLog{
			EnrollmentID: &enrollment.ID,
			SubscriberID: &enrollment.SubscriberID,
			Action:       models.ActionCompleted,
			Details:      map[string]interface{}{"messages_sent": sentPosition},
		})
		return nil
	}

	nextSendAt := dw.Scheduler.NextSendTime(time.Now(), next.DelayHours, next.DelayDays)
	return dw.DB.WithContext(ctx).Model(&enrollment).Updates(map[string]interface{}{
		"current_position": sentPosition,
		"next_send_at":     nextSendAt,
	}).Error
}

func (dw *DispatchWorker) completeEnrollment(ctx context.Context, enrollment models.Enrollment) error {
	if err := dw.DB.WithContext(ctx).Model(&enrollment).Updates(map[string]interface{}{
		"status":       models.EnrollmentCompleted,
		"next_send_at": nil,
	}).Error; err != nil {
		return err
	}
	dw.recordActivity(ctx, &models.ActivityLog{
		EnrollmentID: &enrollment.ID,
		SubscriberID: &enrollment.SubscriberID,
		Action:       models.ActionCompleted,
		Details:      map[string]interface{}{"messages_sent": enrollment.CurrentPosition},
	})
	return nil
}

func (dw *DispatchWorker) findMessage(ctx context.Context, sequenceID uint, position int) (*models.SequenceMessage, error) {
	var message models.SequenceMessage
	err := dw.DB.WithContext(ctx).
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

func (dw *DispatchWorker) recordActivity(ctx context.Context, entry *models.ActivityLog) {
	if err := dw.Activity.Record(ctx, entry); err != nil {
		dw.Logger.Printf("Failed to record activity %q: %v", entry.Action, err)
	}
}
