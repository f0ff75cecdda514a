package controller

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"calmreach/automation"
	"calmreach/models"
	"calmreach/utils"
)

type WebhookController struct {
	DB      *gorm.DB
	Manager *automation.EnrollmentManager
	Logger  *log.Logger
}

func NewWebhookController(db *gorm.DB, manager *automation.EnrollmentManager, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:      db,
		Manager: manager,
		Logger:  logger,
	}
}

// HandleStripeWebhook turns completed course checkouts into
// course_purchase enrollments. Stripe retries webhooks aggressively; the
// enrollment manager's idempotency makes redelivery harmless.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := utils.ConstructStripeEvent(c)
	if err != nil {
		wc.Logger.Printf("Failed to construct Stripe event: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			wc.Logger.Printf("Failed to parse checkout session: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Error parsing checkout session",
			})
		}
		return wc.handleCheckoutCompleted(c, &session)

	default:
		return c.SendStatus(fiber.StatusOK)
	}
}

func (wc *WebhookController) handleCheckoutCompleted(c *fiber.Ctx, session *stripe.CheckoutSession) error {
	email := ""
	if session.CustomerDetails != nil {
		email = strings.ToLower(session.CustomerDetails.Email)
	}
	if email == "" {
		wc.Logger.Printf("Checkout session %s has no customer email", session.ID)
		return c.SendStatus(fiber.StatusOK)
	}

	subscriber := models.Subscriber{Email: email}
	if err := wc.DB.Where("email = ?", email).
		Attrs(models.Subscriber{
			Status: models.SubscriberSubscribed,
			Source: "checkout",
		}).
		FirstOrCreate(&subscriber).Error; err != nil {
		wc.Logger.Printf("Failed to upsert subscriber for %s: %v", email, err)
		// 500 makes Stripe redeliver the event later
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	result, err := wc.Manager.Enroll(c.Context(), subscriber.ID, models.TriggerCoursePurchase, "stripe", map[string]interface{}{
		"checkout_session": session.ID,
		"amount_total":     session.AmountTotal,
		"currency":         string(session.Currency),
	})
	if err != nil {
		wc.Logger.Printf("Course purchase enrollment failed for subscriber %d: %v", subscriber.ID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	if !result.Success {
		wc.Logger.Printf("Course purchase enrollment partially failed for subscriber %d: %d errors", subscriber.ID, len(result.Errors))
	}

	return c.SendStatus(fiber.StatusOK)
}
