// Package main wires together the grant discovery service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/grantscout/discovery/internal/adapters"
	"github.com/grantscout/discovery/internal/api"
	"github.com/grantscout/discovery/internal/clock/system"
	"github.com/grantscout/discovery/internal/config"
	"github.com/grantscout/discovery/internal/dedup"
	"github.com/grantscout/discovery/internal/fetch"
	"github.com/grantscout/discovery/internal/fetch/detector"
	"github.com/grantscout/discovery/internal/fetch/headless"
	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/id/uuid"
	"github.com/grantscout/discovery/internal/logging"
	"github.com/grantscout/discovery/internal/match"
	"github.com/grantscout/discovery/internal/metrics"
	"github.com/grantscout/discovery/internal/orchestrator"
	memorypublisher "github.com/grantscout/discovery/internal/publisher/memory"
	pubsubpublisher "github.com/grantscout/discovery/internal/publisher/pubsub"
	gcsstore "github.com/grantscout/discovery/internal/store/gcs"
	localstore "github.com/grantscout/discovery/internal/store/local"
	memorystore "github.com/grantscout/discovery/internal/store/memory"
	postgresstore "github.com/grantscout/discovery/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	grantStore, runStore, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	publisher := buildPublisher(ctx, cfg, logger)

	var renderer fetch.Renderer
	if cfg.Headless.Enabled {
		chromeRenderer, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			defer chromeRenderer.Close()
			renderer = chromeRenderer
		}
	}

	fetcher := fetch.NewClient(fetch.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		AllowedDomains: cfg.Fetch.AllowedDomains,
		Timeout:        cfg.FetchTimeout(),
		MaxRetries:     cfg.Fetch.MaxRetries,
		BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
		Delay:          time.Duration(cfg.Fetch.DelayMs) * time.Millisecond,
		DelayJitter:    time.Duration(cfg.Fetch.DelayJitterMs) * time.Millisecond,
		PerDomainRPS:   cfg.Fetch.PerDomainRPS,
		PerDomainBurst: cfg.Fetch.PerDomainBurst,
		SnapshotPrefix: cfg.Snapshot.Prefix,
	}, logger.Named("fetch"), renderer, detector.NewHeuristic(cfg.Headless.PromotionThresh), snapshots, clock)

	registry := adapters.NewRegistry()
	for _, src := range cfg.Sources {
		var adapter grants.SourceAdapter
		switch src.Kind {
		case config.SourceKindHTML:
			adapter = adapters.NewHTML(src, fetcher, cfg.Orchestrator.MaxItemsPerSource, logger.Named("adapter"))
		case config.SourceKindAPI:
			adapter = adapters.NewAPI(src, fetcher, cfg.Orchestrator.MaxItemsPerSource, logger.Named("adapter"))
		}
		if err := registry.Register(adapter); err != nil {
			logger.Fatal("register source failed", zap.String("source", src.Name), zap.Error(err))
		}
	}

	resolver := dedup.NewResolver(grantStore, idGen, clock, logger.Named("dedup"))
	orch := orchestrator.New(
		registry,
		resolver,
		runStore,
		publisher,
		clock,
		idGen,
		orchestrator.Config{
			SourceTimeout: cfg.SourceTimeout(),
			MinInterval:   cfg.SourceMinInterval(),
			Topic:         cfg.PubSub.TopicName,
		},
		logger.Named("orchestrator"),
	)

	engine := match.NewEngine(match.Config{
		WeightIndustry:  cfg.Match.WeightIndustry,
		WeightLocation:  cfg.Match.WeightLocation,
		WeightOrgType:   cfg.Match.WeightOrgType,
		WeightPurpose:   cfg.Match.WeightPurpose,
		WeightAudience:  cfg.Match.WeightAudience,
		WeightTimeline:  cfg.Match.WeightTimeline,
		HighThreshold:   cfg.Match.HighThreshold,
		MediumThreshold: cfg.Match.MediumThreshold,
		DeadlineComfort: time.Duration(cfg.Match.DeadlineComfortDays) * 24 * time.Hour,
	})

	apiServer := api.NewServer(orch, grantStore, engine, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores selects Postgres-backed stores when a DSN is configured,
// in-memory stores otherwise.
func buildStores(ctx context.Context, cfg config.Config) (grants.GrantStore, grants.RunStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystore.NewGrantStore(), memorystore.NewRunStore(), func() {}, nil
	}
	pool, err := postgresstore.NewPool(ctx, postgresstore.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	grantStore, err := postgresstore.NewGrantStore(pool, cfg.DB.GrantsTable)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	runStore, err := postgresstore.NewRunStore(pool, cfg.DB.RunsTable)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return grantStore, runStore, pool.Close, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (grants.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "local":
		return localstore.New(cfg.Snapshot.LocalDir)
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsstore.New(client, cfg.Snapshot.GCSBucket)
	default:
		return memorystore.NewSnapshotStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) grants.Publisher {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New()
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Warn("pubsub client init failed, events disabled", zap.Error(err))
		return memorypublisher.New()
	}
	publisher, err := pubsubpublisher.New(client)
	if err != nil {
		logger.Warn("pubsub publisher init failed, events disabled", zap.Error(err))
		return memorypublisher.New()
	}
	return publisher
}
