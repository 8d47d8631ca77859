// Package assets implements the REST API handler for asset correlation.
// Asset CRUD itself lives outside this service; only the read-side
// correlation query is served here.
package assets

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/search"
)

var logger = database.Logger().Sugar()

// AssetCVEs handles GET requests matching an asset's free text against the
// vulnerability descriptions across all three stores.
func AssetCVEs(resolver *search.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		assetID := c.Params("id")

		records, err := resolver.CVEsForAsset(c.Context(), assetID)
		if err != nil {
			if errors.Is(err, search.ErrAssetNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Asset not found"})
			}
			logger.Errorf("correlation for asset %s failed: %v", assetID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch affected CVEs"})
		}
		return c.JSON(records)
	}
}
