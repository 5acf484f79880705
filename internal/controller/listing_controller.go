package controller

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"lodgepage_backend/internal/publish"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
	"lodgepage_backend/pkg/utils/jwt"
)

func listingFromParams(c *fiber.Ctx) (uint, *jwt.Claims, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, nil, err
	}
	claims := c.Locals("host").(*jwt.Claims)
	return uint(id), claims, nil
}

func PublishListing(c *fiber.Ctx) error {
	listingID, claims, err := listingFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing id"})
	}

	listing, err := engineStore.GetListing(c.Context(), listingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && listing.HostID != claims.HostID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Listing not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not load listing"})
	}

	grantedSlot, err := coordinator.Publish(c.Context(), listingID)
	switch {
	case errors.Is(err, store.ErrEntitlementExceeded):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You have reached your listing limit. Please upgrade your plan.",
		})
	case errors.Is(err, slot.ErrNoActiveSubscription):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "An active subscription is required to publish listings.",
		})
	case errors.Is(err, publish.ErrNotPublishable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Listing must be approved before it can be published.",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not publish listing",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Listing published successfully",
		"slot":    grantedSlot,
	})
}

func UnpublishListing(c *fiber.Ctx) error {
	listingID, claims, err := listingFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing id"})
	}

	listing, err := engineStore.GetListing(c.Context(), listingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && listing.HostID != claims.HostID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Listing not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not load listing"})
	}

	if err := coordinator.Unpublish(c.Context(), listingID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not unpublish listing",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Listing unpublished successfully",
	})
}

// DoNotRenewListing flags the listing's slot to lapse at its expiry date
// instead of renewing with the next invoice.
func DoNotRenewListing(c *fiber.Ctx) error {
	listingID, claims, err := listingFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing id"})
	}

	flagged, err := slots.SetDoNotRenew(c.Context(), listingID, claims.HostID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No live slot for this listing"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update slot",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Listing will not renew",
		"slot":    flagged,
	})
}
