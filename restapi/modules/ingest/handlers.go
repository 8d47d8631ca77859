// Package ingest implements the REST API handler exposing ingestion status.
package ingest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vulnfed/vulnfed-backend/internal/feed"
)

// Status handles GET requests for the supervisor's per-ingestor snapshot.
func Status(sup *feed.Supervisor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ingestors": sup.Status()})
	}
}
