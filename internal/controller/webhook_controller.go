package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v74/webhook"

	"lodgepage_backend/internal/queue"
)

// HandleStripeWebhook verifies the provider signature and hands the event to
// the queue buffer. Processing happens asynchronously; a failed enqueue
// returns 503 so the provider redelivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signatureHeader := c.Get("Stripe-Signature")

	event, err := webhook.ConstructEvent(payload, signatureHeader, webhookSecret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	env := queue.Envelope{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: event.Data.Raw,
	}
	if err := eventQueue.Enqueue(c.Context(), env); err != nil {
		log.Printf("Could not enqueue event %s: %v", event.ID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Event could not be accepted",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
