// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/feed"
	searchengine "github.com/vulnfed/vulnfed-backend/internal/search"
	"github.com/vulnfed/vulnfed-backend/restapi/modules/assets"
	"github.com/vulnfed/vulnfed-backend/restapi/modules/cves"
	"github.com/vulnfed/vulnfed-backend/restapi/modules/ingest"
	searchapi "github.com/vulnfed/vulnfed-backend/restapi/modules/search"
)

// Deps carries the services the routes are built from.
type Deps struct {
	Store        database.Store
	Engine       *searchengine.Engine
	Resolver     *searchengine.Resolver
	Supervisor   *feed.Supervisor
	DetailClient *feed.Client
	DetailURL    string
	Schema       graphql.Schema
}

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	api.Post("/graphql", GraphQLHandler(deps.Schema))

	api.Get("/cves", cves.ListCVEs(deps.Store))
	api.Get("/cvss-cves", cves.ListCvssCVEs(deps.Store))
	api.Get("/backup-cves", cves.ListBackupCVEs(deps.Store))
	api.Get("/backup-cves/:id", cves.GetBackupCVEDetail(deps.DetailClient, deps.DetailURL))

	api.Get("/search", searchapi.Search(deps.Engine))
	api.Get("/assets/:id/cves", assets.AssetCVEs(deps.Resolver))

	api.Get("/ingest/status", ingest.Status(deps.Supervisor))
}
