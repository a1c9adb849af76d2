package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/effis"
	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/geoip"
	httpadapter "github.com/couchcryptid/wildfire-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/metoffice"
	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/redisstore"
	"github.com/couchcryptid/wildfire-risk-service/internal/config"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/fetch"
	"github.com/couchcryptid/wildfire-risk-service/internal/geocache"
	"github.com/couchcryptid/wildfire-risk-service/internal/location"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/risk"
)

// alwaysReady stands in for the Redis readiness probe when the service
// runs on in-memory stores only.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Stores: Redis when configured, in-process otherwise.
	var (
		recordStore geocache.Store
		prefs       location.PreferenceStore
		ready       httpadapter.ReadinessChecker = alwaysReady{}
		redisStore  *redisstore.RecordStore
	)
	if cfg.RedisAddr != "" {
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisStore = redisstore.NewRecordStore(client, cfg.CacheTTL)
		recordStore = redisStore
		prefs = redisstore.NewPreferenceStore(client)
		ready = redisStore
		logger.Info("redis persistence enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		recordStore = geocache.NewMemoryStore()
		prefs = location.NewMemoryPreferenceStore()
		logger.Info("redis not configured, using in-memory stores")
	}

	fetchOpts := fetch.Options{
		MaxRetries: cfg.FetchMaxRetries,
		BaseDelay:  cfg.FetchBaseDelay,
		PerAttempt: cfg.FetchPerAttempt,
	}

	primary := effis.NewClient(cfg.EFFISBaseURL, fetchOpts, logger, metrics)

	// Secondary source (feature-flagged via MET_OFFICE_API_KEY / MET_OFFICE_ENABLED).
	var secondary risk.Source
	if cfg.MetOfficeEnabled {
		secondary = metoffice.NewClient(cfg.MetOfficeBaseURL, cfg.MetOfficeAPIKey, fetchOpts, logger, metrics)
		logger.Info("met office secondary source enabled")
	} else {
		logger.Info("met office secondary source disabled")
	}

	cache := geocache.New(recordStore, cfg.CacheTTL, cfg.CacheCapacity, clock, logger, metrics)
	synthetic := risk.NewSynthetic(clock)

	budgets := risk.Budgets{
		Primary:   cfg.PrimaryBudget,
		Secondary: cfg.SecondaryBudget,
		Cache:     cfg.CacheBudget,
		Deadline:  cfg.ResolveDeadline,
	}
	orchestrator := risk.NewOrchestrator(primary, secondary, cache, synthetic, budgets, clock, logger, metrics)

	defaultCoord := domain.Coordinate{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon}
	locations := location.NewResolver(prefs, defaultCoord, cfg.DefaultPlaceName, cfg.LiveFixBudget, cfg.LocationBudget, clock, logger, metrics)

	// Position sensing (enabled when GEOIP_DB_PATH points at a GeoLite2
	// City database).
	var (
		sensors httpadapter.SensorProvider
		locator *geoip.Locator
	)
	if cfg.GeoIPDBPath != "" {
		locator, err = geoip.Open(cfg.GeoIPDBPath, logger)
		if err != nil {
			logger.Error("failed to open geoip database", "error", err)
			os.Exit(1)
		}
		sensors = locator
	} else {
		logger.Info("geoip position sensing disabled")
	}

	// Observation publisher (feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED).
	var (
		publisher      httpadapter.Publisher
		kafkaPublisher *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		publisher = kafkaPublisher
		logger.Info("observation publisher enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("observation publisher disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, locations, sensors, publisher, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if locator != nil {
		if err := locator.Close(); err != nil {
			logger.Error("geoip database close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
