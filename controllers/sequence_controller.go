package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"calmreach/models"
	"calmreach/utils"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: logger,
	}
}

// CreateSequence creates a drip sequence, optionally with its messages
func (sqc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input struct {
		Name        string `json:"name" validate:"required,max=200"`
		Description string `json:"description" validate:"omitempty,max=1000"`
		Trigger     string `json:"trigger" validate:"required"`
		Messages    []struct {
			TemplateID uint `json:"template_id" validate:"required"`
			Position   int  `json:"position" validate:"required,min=1"`
			DelayHours int  `json:"delay_hours" validate:"min=0"`
			DelayDays  int  `json:"delay_days" validate:"min=0"`
		} `json:"messages"`
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

	sequence := models.Sequence{
		Name:        input.Name,
		Description: input.Description,
		Trigger:     trigger,
		Status:      models.SequenceActive,
	}
	for _, msg := range input.Messages {
		sequence.Messages = append(sequence.Messages, models.SequenceMessage{
			TemplateID: msg.TemplateID,
			Position:   msg.Position,
			DelayHours: msg.DelayHours,
			DelayDays:  msg.DelayDays,
		})
	}

	if err := sqc.DB.Create(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// ListSequences returns all sequences with their messages
func (sqc *SequenceController) ListSequences(c *fiber.Ctx) error {
	var sequences []models.Sequence
	query := sqc.DB.Preload("Messages")
	if trigger := c.Query("trigger"); trigger != "" {
		query = query.Where("trigger = ?", trigger)
	}
	if err := query.Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

func (sqc *SequenceController) GetSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sqc.DB.Preload("Messages").First(&sequence, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}

// UpdateSequence edits name, description, and status. The trigger is
// fixed after creation; retargeting a live sequence would strand its
// existing enrollments.
func (sqc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sqc.DB.First(&sequence, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input struct {
		Name        string `json:"name" validate:"omitempty,max=200"`
		Description string `json:"description" validate:"omitempty,max=1000"`
		Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	patch := map[string]interface{}{}
	if input.Name != "" {
		patch["name"] = input.Name
	}
	if input.Description != "" {
		patch["description"] = input.Description
	}
	if input.Status != "" {
		patch["status"] = input.Status
	}

	if err := sqc.DB.Model(&sequence).Updates(patch).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}

// AddMessage appends or inserts a message at a position in a sequence
func (sqc *SequenceController) AddMessage(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sqc.DB.First(&sequence, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input struct {
		TemplateID uint `json:"template_id" validate:"required"`
		Position   int  `json:"position" validate:"required,min=1"`
		DelayHours int  `json:"delay_hours" validate:"min=0"`
		DelayDays  int  `json:"delay_days" validate:"min=0"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	message := models.SequenceMessage{
		SequenceID: sequence.ID,
		TemplateID: input.TemplateID,
		Position:   input.Position,
		DelayHours: input.DelayHours,
		DelayDays:  input.DelayDays,
	}
	if err := sqc.DB.Create(&message).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Failed to add message (position taken?)", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(message))
}

// CreateTemplate stores a reusable subject/body template
func (sqc *SequenceController) CreateTemplate(c *fiber.Ctx) error {
	var input struct {
		Name    string `json:"name" validate:"required,max=200"`
		Subject string `json:"subject" validate:"required,max=500"`
		Body    string `json:"body" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	template := models.Template{
		Name:    input.Name,
		Subject: input.Subject,
		Body:    input.Body,
	}
	if err := sqc.DB.Create(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(template))
}

func (sqc *SequenceController) ListTemplates(c *fiber.Ctx) error {
	var templates []models.Template
	if err := sqc.DB.Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}
	return c.JSON(utils.SuccessResponse(templates))
}
