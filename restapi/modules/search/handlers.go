// Package search implements the REST API handler for federated search.
package search

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vulnfed/vulnfed-backend/database"
	enginepkg "github.com/vulnfed/vulnfed-backend/internal/search"
	"github.com/vulnfed/vulnfed-backend/util"
)

var logger = database.Logger().Sugar()

// Search handles GET requests for the federated search endpoint.
func Search(engine *enginepkg.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := c.Query("q")
		page := util.ParseIntDefault(c.Query("page"), 1)
		limit := util.ParseIntDefault(c.Query("limit"), 20)

		result, err := engine.Search(c.Context(), q, page, limit)
		if err != nil {
			logger.Errorf("federated search for %q failed: %v", q, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to search CVEs"})
		}
		return c.JSON(result)
	}
}
