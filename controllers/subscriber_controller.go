package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"calmreach/automation"
	"calmreach/models"
	"calmreach/utils"
)

type SubscriberController struct {
	DB      *gorm.DB
	Manager *automation.EnrollmentManager
	Logger  *log.Logger
}

func NewSubscriberController(db *gorm.DB, manager *automation.EnrollmentManager, logger *log.Logger) *SubscriberController {
	return &SubscriberController{
		DB:      db,
		Manager: manager,
		Logger:  logger,
	}
}

// Signup handles public lead capture: the newsletter form and resource
// download gates both post here. A resource name switches the trigger so
// download-specific sequences fire instead of the plain welcome.
func (sc *SubscriberController) Signup(c *fiber.Ctx) error {
	var input struct {
		Email     string `json:"email" validate:"required,email"`
		FirstName string `json:"first_name" validate:"omitempty,max=100"`
		LastName  string `json:"last_name" validate:"omitempty,max=100"`
		Source    string `json:"source" validate:"omitempty,max=200"`
		Resource  string `json:"resource" validate:"omitempty,max=200"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := utils.ValidateEmailAddress(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	source := input.Source
	if source == "" {
		source = "signup_form"
	}

	subscriber := models.Subscriber{Email: email}
	if err := sc.DB.Where("email = ?", email).
		Attrs(models.Subscriber{
			FirstName: input.FirstName,
			LastName:  input.LastName,
			Status:    models.SubscriberSubscribed,
			Source:    source,
		}).
		FirstOrCreate(&subscriber).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create subscriber", err)
	}

	trigger := models.TriggerNewsletterSignup
	metadata := map[string]interface{}{}
	if input.Resource != "" {
		trigger = models.TriggerResourceDownload
		metadata["resource"] = input.Resource
	}

	result, err := sc.Manager.Enroll(c.Context(), subscriber.ID, trigger, source, metadata)
	if err != nil {
		// Subscriber row exists; only the automation failed
		sc.Logger.Printf("Enrollment failed for subscriber %d: %v", subscriber.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Signed up, but enrollment failed", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"subscriber": subscriber,
		"enrollment": result,
	}))
}

// Unsubscribe marks the subscriber unsubscribed and closes their active
// enrollments. Paused enrollments stay paused; the subscriber-level flag
// stops the dispatch worker from sending to them regardless.
func (sc *SubscriberController) Unsubscribe(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}

	if err := sc.DB.Model(&subscriber).Updates(map[string]interface{}{
		"status":          models.SubscriberUnsubscribed,
		"last_contact_at": time.Now(),
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}

	if err := sc.Manager.UnsubscribeAll(c.Context(), subscriber.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe enrollments", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Unsubscribed successfully",
	}))
}

// ListSubscribers returns subscribers with pagination for the admin panel
func (sc *SubscriberController) ListSubscribers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	var total int64
	query := sc.DB.Model(&models.Subscriber{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count subscribers", err)
	}

	var subscribers []models.Subscriber
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&subscribers).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch subscribers", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  subscribers,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
