package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/linktoolkit/linktoolkit/config"
	appmodel "github.com/linktoolkit/linktoolkit/internal/app/model"
	apprepository "github.com/linktoolkit/linktoolkit/internal/app/repository"
	appserver "github.com/linktoolkit/linktoolkit/internal/app/server"
	appservice "github.com/linktoolkit/linktoolkit/internal/app/service"
	"github.com/linktoolkit/linktoolkit/internal/infra/geoip"
	"github.com/linktoolkit/linktoolkit/internal/infra/logger"
	infraMetrics "github.com/linktoolkit/linktoolkit/internal/infra/metrics"
	infraNATS "github.com/linktoolkit/linktoolkit/internal/infra/nats"
	infraPostgres "github.com/linktoolkit/linktoolkit/internal/infra/postgres"
	infraRedis "github.com/linktoolkit/linktoolkit/internal/infra/redis"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("sweeper_hour_utc", cfg.Sweeper.HourUTC),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}, &appmodel.Click{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	if err := infraPostgres.EnsureClickLinkFK(ctx, gormDB); err != nil {
		log.Fatal("Failed to ensure click foreign key", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully")

	geoReader, err := geoip.Open(cfg.GeoIP)
	if err != nil {
		// Enrichment degrades to unknown countries; the service still runs.
		log.Warn("GeoIP database unavailable, country enrichment disabled", zap.Error(err))
		geoReader = nil
	}
	if geoReader != nil {
		defer geoReader.Close()
	}

	registry := prometheus.NewRegistry()
	m := infraMetrics.New(registry)

	if cfg.Metrics.Enabled {
		metricsServer := infraMetrics.NewServer(cfg.Metrics, registry)
		go func() {
			log.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := metricsServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close metrics server", zap.Error(err))
			}
		}()
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickRepo := apprepository.NewClickRepository(pool)
	linkCache := apprepository.NewLinkCache(redisClient)

	policy := appservice.LinkPolicy{
		ReservedAliases: cfg.App.ReservedAliases,
		DefaultExpiry:   appservice.MustParsePeriod(cfg.App.DefaultExpiry),
		MaxExpiry:       appservice.MustParsePeriod(cfg.App.MaxExpiry),
		AliasLength:     cfg.App.AliasLength,
	}

	linkService := appservice.NewLinkService(linkRepo, clickRepo, linkCache, policy, log)
	if err := linkService.WarmAliasFilter(ctx); err != nil {
		log.Warn("Failed to warm alias filter", zap.Error(err))
	}

	analyticsService := appservice.NewAnalyticsService(clickRepo)
	enricher := appservice.NewClickEnricher(geoReader)

	publisher := appservice.NewClickPublisher(js, log, m, cfg.Ingest.BufferSize)
	publisher.Start()
	defer publisher.Close()

	consumer := appservice.NewClickConsumer(js, log, clickRepo, enricher, m, cfg.Ingest.BatchSize)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}
	defer consumer.Stop()

	sweeper := appservice.NewExpirySweeper(log, linkRepo, linkCache, m, cfg.Sweeper.HourUTC)
	sweeper.Start()
	defer sweeper.Stop()

	srv := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		Links:     linkService,
		Analytics: analyticsService,
		Clicks:    publisher,
		Metrics:   m,
		BaseURL:   cfg.App.BaseURL,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("Shutting down")
		_ = srv.Shutdown(context.Background())
	}()

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	log.Info("Starting HTTP server", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
