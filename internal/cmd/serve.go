package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/common/logging"
	natsclient "github.com/driftline-systems/driftline/common/messaging/nats"
	"github.com/driftline-systems/driftline/internal/archive"
	"github.com/driftline-systems/driftline/internal/auth"
	"github.com/driftline-systems/driftline/internal/capture"
	"github.com/driftline-systems/driftline/internal/config"
	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/events"
	"github.com/driftline-systems/driftline/internal/handlers"
	"github.com/driftline-systems/driftline/internal/pipeline"
	"github.com/driftline-systems/driftline/internal/repository"
	"github.com/driftline-systems/driftline/internal/server"
	"github.com/driftline-systems/driftline/internal/session"
	"github.com/driftline-systems/driftline/internal/stream"
	"github.com/driftline-systems/driftline/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine",
	Long:  "Start the capture API, validation pipeline, identity prober and console stream.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("driftline"))
	logging.SetDefault(logger)

	slog.Info("Starting driftline engine",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("database", cfg.Database.Type),
	)

	// Egress identity pool
	specs, err := config.LoadIdentities(cfg.Pool.IdentityFile)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}
	pool, err := egress.NewPool(specs)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}
	slog.Info("Egress pool loaded",
		slog.Int("identities", len(specs)),
		slog.String("identity_file", cfg.Pool.IdentityFile),
	)

	// Session binding store
	var store session.Store
	if cfg.Redis.Enabled {
		redisStore, err := session.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = redisStore
		log.Printf("Session bindings stored in Redis: %s", cfg.Redis.URL)
	} else {
		store = session.NewMemoryStore()
		log.Println("Session bindings stored in memory (single instance only)")
	}

	manager := session.NewManager(pool, store, cfg.Session.BindingTTL)

	// Record repository
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repo repository.Repository
	var repoCloser func()
	switch cfg.Database.Type {
	case "postgres":
		pg, err := repository.NewPostgresRepository(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo = pg
		repoCloser = pg.Close
		log.Println("Records stored in PostgreSQL")
	default:
		repo = repository.NewInMemoryRepository()
		log.Println("Records stored in memory (single instance only)")
	}
	if repoCloser != nil {
		defer repoCloser()
	}

	// Event sinks: console hub always, NATS and archive when configured
	hub := stream.NewHub(cfg.Stream.QueueDepth)
	sinks := events.Multi{hub}

	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		nc, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		sinks = append(sinks, events.NewNATSBridge(nc))
		log.Printf("NATS event bridge enabled: %s", cfg.NATS.URL)
	} else {
		log.Println("NATS event bridge disabled")
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.New(archive.Config{
			URL:           cfg.Archive.URL,
			Username:      cfg.Archive.Username,
			Password:      cfg.Archive.Password,
			TLSSkipVerify: cfg.Archive.TLSSkipVerify,
			IndexPrefix:   cfg.Archive.IndexPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		defer archiver.Close()
		sinks = append(sinks, archiver)
		log.Printf("Record archive enabled: %s", cfg.Archive.URL)
	} else {
		log.Println("Record archive disabled")
	}

	// Capture ingestion
	captureSvc := capture.NewService(manager, repo, sinks, cfg.Capture.DedupWindow, cfg.Capture.AssignTimeout)
	defer captureSvc.Close()

	// Validation pipeline
	verifier := verify.NewHTTPVerifier(cfg.Verifier.URL, cfg.Verifier.Token, cfg.Verifier.Timeout)
	classifier := pipeline.NewClassifier(cfg.Classifier.Weights, tierThresholds(cfg.Classifier.Thresholds), cfg.Classifier.DefaultTier)
	pipe := pipeline.New(repo, verifier, classifier, sinks, pipeline.Config{
		Workers:      cfg.Pipeline.Workers,
		PollInterval: cfg.Pipeline.PollInterval,
		CheckTimeout: cfg.Pipeline.CheckTimeout,
		RetryCap:     cfg.Pipeline.RetryCap,
		BackoffBase:  cfg.Pipeline.BackoffBase,
		BackoffMax:   cfg.Pipeline.BackoffMax,
		ClaimLease:   cfg.Pipeline.ClaimLease,
		ReapInterval: cfg.Pipeline.ReapInterval,
	})
	pipe.Start(ctx)
	defer pipe.Stop()

	// Identity prober
	prober := egress.NewProber(pool, &egress.TCPProbe{Timeout: cfg.Pool.ProbeTimeout}, sinks, egress.ProberConfig{
		Interval:        cfg.Pool.ProbeInterval,
		ProbeTimeout:    cfg.Pool.ProbeTimeout,
		FailDegraded:    cfg.Pool.FailDegraded,
		FailUnavailable: cfg.Pool.FailUnavailable,
	})
	go prober.Start(ctx)
	defer prober.Stop()

	// Binding sweeper
	sweeper := session.NewSweeper(manager, cfg.Session.SweepInterval)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	// Operator auth
	tokens := auth.NewTokenGenerator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	operators := auth.NewService(authOperators(cfg.Auth.Operators), tokens)
	captureTokens := auth.NewCaptureTokens(cfg.Capture.Tokens)
	if len(cfg.Capture.Tokens) == 0 {
		log.Println("WARNING: capture endpoint authentication disabled (no tokens configured)")
	}

	// HTTP server
	router := server.NewRouter(server.Handlers{
		Capture:    handlers.NewCaptureHandler(captureSvc, int64(cfg.Capture.MaxPayloadSize)),
		Records:    handlers.NewRecordsHandler(repo),
		Identities: handlers.NewIdentitiesHandler(pool),
		Auth:       handlers.NewAuthHandler(operators),
		Health:     handlers.NewHealthHandler(pool, rootCmd.Version),
		Stream:     stream.NewHandler(hub, cfg.Stream.HeartbeatInterval, cfg.Stream.HeartbeatTimeout),
	}, operators, captureTokens)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.String("error", err.Error()))
	}

	return nil
}

func tierThresholds(in []config.TierThreshold) []pipeline.TierThreshold {
	out := make([]pipeline.TierThreshold, len(in))
	for i, t := range in {
		out[i] = pipeline.TierThreshold{Tier: t.Tier, MinScore: t.MinScore}
	}
	return out
}

func authOperators(in []config.OperatorConfig) []auth.Operator {
	out := make([]auth.Operator, len(in))
	for i, op := range in {
		out[i] = auth.Operator{Username: op.Username, PasswordHash: op.PasswordHash}
	}
	return out
}
