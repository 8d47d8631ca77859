// package main wires the vulnerability ingestion engine and the query API:
// it connects the document store, launches the three feed ingestors under a
// supervisor, and serves the federated search endpoints.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/api"
	"github.com/vulnfed/vulnfed-backend/internal/feed"
	"github.com/vulnfed/vulnfed-backend/internal/search"
	"github.com/vulnfed/vulnfed-backend/restapi"
)

func main() {
	logger := database.Logger().Sugar()

	cfg, err := config.Load(database.GetEnvDefault("INGEST_CONFIG", ""))
	if err != nil {
		logger.Fatalf("Failed to load ingest config: %v", err)
	}

	db := database.InitializeDatabase()
	store := database.NewStore(db)

	// Shutdown signal cancels the retry and inter-window sleeps so the
	// ingestors stop promptly instead of waiting out a full backoff.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := feed.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		Jitter:     cfg.Retry.Jitter(),
	}
	client := feed.NewClient(policy, logger)

	supervisor := feed.NewSupervisor(logger,
		time.Duration(cfg.RescanIntervalMinutes)*time.Minute,
		feed.NewNVDIngestor(store, client, cfg.NVD, logger),
		feed.NewCVSSIngestor(store, client, cfg.CVSS, cfg.NVD.APIKey, logger),
		feed.NewBackupIngestor(store, client, cfg.Backup, logger),
	)
	supervisor.Start(ctx)

	// The detail proxy answers interactive requests, so it gets a
	// no-retry client rather than the feed backoff budget.
	detailClient := feed.NewClient(feed.RetryPolicy{}, logger)

	app := api.NewFiberApp(restapiDeps(store, supervisor, detailClient, cfg))

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		_ = app.Shutdown()
	}()

	port := database.GetEnvDefault("PORT", "3000")
	if err := app.Listen(":" + port); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}

	supervisor.Wait()
}

func restapiDeps(store database.Store, supervisor *feed.Supervisor, detailClient *feed.Client, cfg config.Config) restapi.Deps {
	logger := database.Logger().Sugar()
	return restapi.Deps{
		Store:        store,
		Engine:       search.NewEngine(store, logger),
		Resolver:     search.NewResolver(store, logger),
		Supervisor:   supervisor,
		DetailClient: detailClient,
		DetailURL:    cfg.Backup.DetailURL,
	}
}
