package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/apistore/pkg/config"
	"github.com/platinummonkey/apistore/pkg/observability"
	"github.com/platinummonkey/apistore/pkg/rbac"
	"github.com/platinummonkey/apistore/pkg/storage"
)

var (
	catalogFile = flag.String("file", "", "YAML or JSON catalog file to load before indexing")
	initSchema  = flag.Bool("init-schema", false, "Create the catalog and role tables first")
	schedule    = flag.String("schedule", "", "Cron schedule for periodic reindexing (e.g. \"0 * * * *\"); empty runs once and exits")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	conns, err := storage.NewConnectionManager(cfg.Database.ConnectionConfig(), logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	ctx := context.Background()
	if *initSchema || cfg.Database.InitSchema {
		if err := storage.ApplySchema(ctx, conns.Primary(), conns.Dialect()); err != nil {
			log.Fatalf("Failed to apply catalog schema: %v", err)
		}
		if err := rbac.Migrate(ctx, conns.Primary(), conns.Dialect()); err != nil {
			log.Fatalf("Failed to apply role migrations: %v", err)
		}
	}

	catalog := storage.NewCatalog(conns)

	if *catalogFile != "" {
		loaded, err := loadFile(ctx, catalog, *catalogFile)
		if err != nil {
			log.Fatalf("Failed to load catalog: %v", err)
		}
		logger.WithField("file", *catalogFile).WithField("apis", loaded).Info("Catalog loaded")
	}

	if err := reindex(ctx, catalog, logger); err != nil {
		log.Fatalf("Reindex failed: %v", err)
	}

	if *schedule == "" {
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := reindex(jobCtx, catalog, logger); err != nil {
			logger.WithError(err).Error("Scheduled reindex failed")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule reindex: %v", err)
	}

	c.Start()
	logger.WithField("schedule", *schedule).Info("Reindex scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	<-c.Stop().Done()
}

// loadFile stores every API in the catalog file
func loadFile(ctx context.Context, catalog *storage.Catalog, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	records, err := storage.ReadCatalogFile(f)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		if err := catalog.PutAPI(ctx, rec); err != nil {
			return 0, fmt.Errorf("failed to store api %s: %w", rec.ID, err)
		}
	}
	return len(records), nil
}

func reindex(ctx context.Context, catalog *storage.Catalog, logger *observability.Logger) error {
	start := time.Now()
	n, err := catalog.Reindex(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"apis":        n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Full-text index rebuilt")
	return nil
}
