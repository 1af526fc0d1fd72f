// Command server runs the smurfguard core: the four recurring jobs, their
// scheduler, and the operator HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/smurfguard/internal/adapter/events"
	"github.com/fairyhunter13/smurfguard/internal/adapter/events/redpanda"
	httpserver "github.com/fairyhunter13/smurfguard/internal/adapter/httpserver"
	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/smurfguard/internal/app"
	"github.com/fairyhunter13/smurfguard/internal/app/jobs"
	"github.com/fairyhunter13/smurfguard/internal/config"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/ratelimiter"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
	"github.com/fairyhunter13/smurfguard/internal/service/scoring"
	"github.com/fairyhunter13/smurfguard/internal/usecase"
)

// mirrorInterval paces the limiter state snapshots into Redis.
const mirrorInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: DB pool and schema
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

	// Repositories
	players := postgres.NewPlayerRepo(pool)
	matches := postgres.NewMatchRepo(pool)
	ranks := postgres.NewRankRepo(pool)
	detections := postgres.NewDetectionRepo(pool)
	jobConfigs := postgres.NewJobConfigRepo(pool)
	executions := postgres.NewExecutionRepo(pool)
	tracking := postgres.NewTrackingRepo(pool)
	rateLimitLog := postgres.NewRateLimitLogRepo(pool)
	schedulerState := postgres.NewSchedulerStateRepo(pool)
	settings := postgres.NewSettingsRepo(pool)

	// Retention over the execution ledger and throttle log
	if cfg.DataRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("retention cleanup started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Rate limiter, optionally warmed from and mirrored into Redis
	var redisClient *redis.Client
	if cfg.MirrorEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = redisClient.Close() }()
	}
	limiter := ratelimiter.New(ratelimiter.Options{
		AppMargin:    cfg.AppLimitMargin,
		MethodMargin: cfg.MethodLimitMargin,
		Mirror:       redisClient,
		ThrottleLog:  rateLimitLog,
	})
	if redisClient != nil {
		if err := limiter.WarmFromRedis(ctx); err != nil {
			slog.Warn("limiter warm from redis failed, starting cold", slog.Any("error", err))
		}
		go limiter.StartMirror(ctx, mirrorInterval)
	}

	// Platform client and the read-through data layer
	riotClient := riotapi.New(riotapi.Options{
		Config:   cfg,
		Limiter:  limiter,
		Settings: settings,
	})
	data := usecase.NewDataManager(riotClient, players, matches, ranks, tracking, usecase.FreshnessPolicy{
		Account:  cfg.TTLAccount,
		Summoner: cfg.TTLSummoner,
		MatchIDs: cfg.TTLMatchIDs,
		Rank:     cfg.TTLRank,
	})

	// Scoring engine. A rejected weight map must not take the updater,
	// fetcher, or ban checker down with it: the error is carried into the
	// analyzer, which fails its runs with a config marker.
	engine, engineErr := scoring.NewEngine(cfg.ScoringWeights(), cfg.AnalysisVersion, cfg.AnalysisWindow)
	if engineErr != nil {
		slog.Error("scoring engine rejected configuration, analyzer runs will fail",
			slog.Any("error", engineErr))
	}

	// Detection event stream
	var publisher domain.DetectionPublisher = events.NopPublisher{}
	var producer *redpanda.Producer
	if cfg.EventsEnabled() {
		producer, err = redpanda.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			slog.Error("event producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		publisher = producer
	}

	// Jobs, runner, scheduler, sweeper
	runner := app.NewRunner(jobConfigs, executions, cfg.JobTimeoutDefault)
	runner.Register(jobs.NewTrackedPlayerUpdater(data, players, matches))
	runner.Register(jobs.NewMatchFetcher(data, players, matches))
	runner.Register(jobs.NewPlayerAnalyzer(engine, engineErr, players, matches, ranks, detections, publisher))
	runner.Register(jobs.NewBanChecker(data, players))

	scheduler := app.NewScheduler(jobConfigs, schedulerState, runner)
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("scheduler start failed", slog.Any("error", err))
		os.Exit(1)
	}

	if sweeper := app.NewStaleRunSweeper(executions, 2*cfg.JobTimeoutDefault, cfg.SweeperInterval); sweeper != nil {
		go sweeper.Run(ctx)
	}

	// Operator surface
	jobControl := usecase.NewJobControlService(jobConfigs, executions, rateLimitLog, detections, runner, scheduler)
	readiness := usecase.NewReadinessService(
		pool,
		app.NewRedisPinger(redisClient),
		app.SettingsWithFallback(settings, cfg.RiotAPIKey),
	)
	srv := httpserver.NewServer(cfg, jobControl, readiness)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	// Drain order: stop accepting requests, stop firing triggers, let
	// in-flight runs finish, then close the stream so the last detections
	// still publish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	scheduler.Stop()
	runner.Shutdown(cfg.ShutdownGrace)
	if producer != nil {
		producer.Close()
	}
}
