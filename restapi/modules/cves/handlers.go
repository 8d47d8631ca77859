// Package cves implements the REST API handlers for the vulnerability
// record listings.
package cves

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/feed"
	"github.com/vulnfed/vulnfed-backend/util"
)

var logger = database.Logger().Sugar()

// ListCVEs handles GET requests for the paginated primary-store listing,
// sorted by most recent modification.
func ListCVEs(store database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := util.ParseIntDefault(c.Query("page"), 1)
		limit := util.ParseIntDefault(c.Query("limit"), 20)
		skip := (page - 1) * limit

		ctx := c.Context()

		records, err := store.FindCVEs(ctx, database.CollCVE, database.Filter{}, "lastModified", skip, limit)
		if err != nil {
			logger.Errorf("failed to list CVEs: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch CVEs"})
		}

		total, err := store.CountCVEs(ctx, database.CollCVE, database.Filter{})
		if err != nil {
			logger.Errorf("failed to count CVEs: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch CVEs"})
		}

		return c.JSON(fiber.Map{
			"cves":  records,
			"total": total,
			"page":  page,
			"pages": (total + limit - 1) / limit,
		})
	}
}

// ListCvssCVEs handles GET requests for the full CVSS-filtered listing.
func ListCvssCVEs(store database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		records, err := store.FindCVEs(c.Context(), database.CollCvss, database.Filter{}, "lastModified", 0, 0)
		if err != nil {
			logger.Errorf("failed to list CVSS CVEs: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch CVEs"})
		}
		return c.JSON(records)
	}
}

// ListBackupCVEs handles GET requests for the full backup-store listing.
func ListBackupCVEs(store database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		records, err := store.FindCVEs(c.Context(), database.CollBackup, database.Filter{}, "lastModified", 0, 0)
		if err != nil {
			logger.Errorf("failed to list backup CVEs: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch CVEs"})
		}
		return c.JSON(records)
	}
}

// GetBackupCVEDetail proxies the live Red Hat CVE detail endpoint and passes
// the body through unmodified.
func GetBackupCVEDetail(client *feed.Client, detailURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cveID := c.Params("id")

		var detail json.RawMessage
		err := client.GetJSON(c.Context(), fmt.Sprintf(detailURL, cveID), nil, func(body []byte) error {
			detail = append(detail[:0], body...)
			return nil
		})
		if err != nil {
			logger.Errorf("failed to fetch CVE detail for %s: %v", cveID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch CVE detail"})
		}

		c.Set("Content-Type", "application/json")
		return c.Send(detail)
	}
}
