package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/internal/database"
	"github.com/BaSui01/apibridge/openapi"
	"github.com/BaSui01/apibridge/syncer"
)

// runSync performs one sync pass and exits. With --all, every source already
// registered in the catalog is re-synced concurrently; otherwise only the
// configured source is synced.
func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	prune := fs.Bool("prune", false, "Remove operations absent from the fetched spec")
	all := fs.Bool("all", false, "Re-sync every source registered in the catalog")
	concurrency := fs.Int("concurrency", 4, "Parallel sync jobs with --all")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	store := catalog.NewStore(db, logger)
	if err := store.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate catalog schema", zap.Error(err))
	}

	loader := openapi.NewLoader(openapi.LoaderConfig{Timeout: cfg.Source.RequestTimeout}, logger)
	s := syncer.New(loader, store, nil, logger)
	ctx := context.Background()

	if *all {
		runSyncAll(ctx, s, store, *prune, *concurrency, logger)
		return
	}

	report, err := s.Run(ctx, syncer.Job{
		SourceName:      cfg.Source.Name,
		SpecURL:         cfg.Source.SpecURL,
		BaseURLOverride: cfg.Source.BaseURL,
		Prune:           *prune,
	})
	if err != nil {
		logger.Fatal("Sync failed", zap.Error(err))
	}

	fmt.Printf("Synced %s: %d upserted, %d skipped, %d pruned (%s)\n",
		report.SourceName, report.Upserted, report.Skipped, report.Pruned, report.Duration)
}

func runSyncAll(ctx context.Context, s *syncer.Syncer, store *catalog.Store, prune bool, concurrency int, logger *zap.Logger) {
	sources, err := store.ListSources(ctx)
	if err != nil {
		logger.Fatal("Failed to list sources", zap.Error(err))
	}
	if len(sources) == 0 {
		fmt.Println("No sources registered.")
		return
	}

	jobs := make([]syncer.Job, 0, len(sources))
	for _, src := range sources {
		jobs = append(jobs, syncer.Job{
			SourceName:      src.Name,
			SpecURL:         src.SpecURL,
			BaseURLOverride: src.BaseURL,
			Prune:           prune,
		})
	}

	failed := 0
	for _, report := range s.RunAll(ctx, jobs, concurrency) {
		if report.Err != nil {
			failed++
			fmt.Printf("Sync %s FAILED: %v\n", report.SourceName, report.Err)
			continue
		}
		fmt.Printf("Synced %s: %d upserted, %d skipped, %d pruned (%s)\n",
			report.SourceName, report.Upserted, report.Skipped, report.Pruned, report.Duration)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
