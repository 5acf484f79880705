package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"lodgepage_backend/internal/store"
	"lodgepage_backend/pkg/utils/jwt"
)

func ListPlans(c *fiber.Ctx) error {
	plans, err := catalog.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription plans",
		})
	}

	return c.JSON(plans)
}

func GetMySubscription(c *fiber.Ctx) error {
	claims := c.Locals("host").(*jwt.Claims)

	sub, err := engineStore.GetSubscriptionByHost(c.Context(), claims.HostID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No subscription found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription",
		})
	}

	slotCount, err := engineStore.CountLiveSlotsByHost(c.Context(), claims.HostID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch slot usage",
		})
	}

	return c.JSON(fiber.Map{
		"subscription": sub,
		"slots_used":   slotCount,
		"slots_total":  sub.MaxListings,
	})
}
