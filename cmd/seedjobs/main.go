// Command seedjobs provisions the database for a fresh installation: it
// ensures the schema, seeds the four job configuration rows, and optionally
// stores the platform API key. Reseeding is safe; an operator-paused job
// stays paused.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/smurfguard/internal/config"
	"github.com/fairyhunter13/smurfguard/internal/seed"
)

func main() {
	seedsPath := flag.String("f", "", "YAML file overriding the default job configurations")
	apiKey := flag.String("api-key", "", "store this platform API key in admin settings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	configs, err := seed.Load(*seedsPath)
	if err != nil {
		slog.Error("seed load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema ensure failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seed.Apply(ctx, postgres.NewJobConfigRepo(pool), configs); err != nil {
		slog.Error("seed apply failed", slog.Any("error", err))
		os.Exit(1)
	}
	if *apiKey != "" {
		if err := postgres.NewSettingsRepo(pool).SetAPIKey(ctx, *apiKey); err != nil {
			slog.Error("api key store failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("platform api key stored")
	}
	slog.Info("seeding complete", slog.Int("jobs", len(configs)))
}
