package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"calmreach/automation"
	"calmreach/models"
	"calmreach/utils"
)

type EnrollmentController struct {
	DB      *gorm.DB
	Manager *automation.EnrollmentManager
	Logger  *log.Logger
}

func NewEnrollmentController(db *gorm.DB, manager *automation.EnrollmentManager, logger *log.Logger) *EnrollmentController {
	return &EnrollmentController{
		DB:      db,
		Manager: manager,
		Logger:  logger,
	}
}

// FireTrigger lets internal flows (appointment booking, course activity
// cron) enroll a subscriber through the same path the public producers
// use. The trigger must be one of the known constants.
func (ec *EnrollmentController) FireTrigger(c *fiber.Ctx) error {
	var input struct {
		SubscriberID uint                   `json:"subscriber_id" validate:"required"`
		Trigger      string                 `json:"trigger" validate:"required"`
		Source       string                 `json:"source" validate:"omitempty,max=200"`
		Metadata     map[string]interface{} `json:"metadata"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	trigger := models.Trigger(input.Trigger)
	if !trigger.Valid() {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown trigger", nil)
	}

	var subscriber models.Subscriber
	if err := ec.DB.First(&subscriber, input.SubscriberID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}

	result, err := ec.Manager.Enroll(c.Context(), subscriber.ID, trigger, input.Source, input.Metadata)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Enrollment failed", err)
	}

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(utils.SuccessResponse(result))
}

// ListEnrollments returns enrollments, optionally filtered by subscriber
// or status, for the admin panel
func (ec *EnrollmentController) ListEnrollments(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	query := ec.DB.Model(&models.Enrollment{})
	if subscriberID := c.Query("subscriber_id"); subscriberID != "" {
		query = query.Where("subscriber_id = ?", utils.ParseUint(subscriberID))
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", err)
	}

	var enrollments []models.Enrollment
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  enrollments,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (ec *EnrollmentController) PauseEnrollment(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	if err := ec.Manager.PauseEnrollment(c.Context(), id); err != nil {
		return ec.transitionError(c, err, "Failed to pause enrollment")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Enrollment paused"}))
}

func (ec *EnrollmentController) ResumeEnrollment(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	if err := ec.Manager.ResumeEnrollment(c.Context(), id); err != nil {
		return ec.transitionError(c, err, "Failed to resume enrollment")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Enrollment resumed"}))
}

func (ec *EnrollmentController) UnsubscribeEnrollment(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	if err := ec.Manager.UnsubscribeEnrollment(c.Context(), id); err != nil {
		return ec.transitionError(c, err, "Failed to unsubscribe enrollment")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Enrollment unsubscribed"}))
}

func (ec *EnrollmentController) transitionError(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, automation.ErrEnrollmentNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if errors.Is(err, automation.ErrInvalidTransition) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment status does not allow this operation", err)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, message, err)
}

// ListActivity exposes the audit trail, the primary debugging surface
// for missed or duplicated enrollments
func (ec *EnrollmentController) ListActivity(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 100)
	if limit > 500 {
		limit = 500
	}

	query := ec.DB.Model(&models.ActivityLog{})
	if subscriberID := c.Query("subscriber_id"); subscriberID != "" {
		query = query.Where("subscriber_id = ?", utils.ParseUint(subscriberID))
	}
	if enrollmentID := c.Query("enrollment_id"); enrollmentID != "" {
		query = query.Where("enrollment_id = ?", utils.ParseUint(enrollmentID))
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count activity", err)
	}

	var entries []models.ActivityLog
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch activity", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
