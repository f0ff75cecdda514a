package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"calmreach/automation"
	controller "calmreach/controllers"
	"calmreach/middleware"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, manager *automation.EnrollmentManager) {
	routeLogger := log.New(os.Stdout, "API: ", log.Ldate|log.Ltime|log.Lshortfile)

	subscriberController := controller.NewSubscriberController(db, manager, routeLogger)
	enrollmentController := controller.NewEnrollmentController(db, manager, routeLogger)
	sequenceController := controller.NewSequenceController(db, routeLogger)
	webhookController := controller.NewWebhookController(db, manager, routeLogger)

	// Public endpoints (marketing site forms and payment webhooks)
	public := app.Group("/api", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	public.Post("/subscribers/signup", middleware.SignupRateLimiter(), subscriberController.Signup)
	public.Post("/webhooks/stripe", webhookController.HandleStripeWebhook)

	// Admin auth
	app.Post("/admin/login", controller.AdminLogin)

	// Admin panel endpoints (require a valid session token)
	admin := app.Group("/admin", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	admin.Get("/subscribers", subscriberController.ListSubscribers)
	admin.Post("/subscribers/:id/unsubscribe", subscriberController.Unsubscribe)

	admin.Post("/triggers", enrollmentController.FireTrigger)
	admin.Get("/enrollments", enrollmentController.ListEnrollments)
	admin.Post("/enrollments/:id/pause", enrollmentController.PauseEnrollment)
	admin.Post("/enrollments/:id/resume", enrollmentController.ResumeEnrollment)
	admin.Post("/enrollments/:id/unsubscribe", enrollmentController.UnsubscribeEnrollment)
	admin.Get("/activity", enrollmentController.ListActivity)

	admin.Post("/sequences", sequenceController.CreateSequence)
	admin.Get("/sequences", sequenceController.ListSequences)
	admin.Get("/sequences/:id", sequenceController.GetSequence)
	admin.Patch("/sequences/:id", sequenceController.UpdateSequence)
	admin.Post("/sequences/:id/messages", sequenceController.AddMessage)
	admin.Post("/templates", sequenceController.CreateTemplate)
	admin.Get("/templates", sequenceController.ListTemplates)

	routeLogger.Println("Routes initialized successfully")
}
