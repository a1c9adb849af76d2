package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream fire danger providers.
	EFFISBaseURL     string
	MetOfficeBaseURL string
	MetOfficeAPIKey  string
	MetOfficeEnabled bool

	// Outbound fetch policy.
	FetchMaxRetries int
	FetchBaseDelay  time.Duration
	FetchPerAttempt time.Duration

	// Per-stage resolution budgets and the overall advisory deadline.
	PrimaryBudget   time.Duration
	SecondaryBudget time.Duration
	CacheBudget     time.Duration
	ResolveDeadline time.Duration

	// Geocache sizing.
	CacheTTL      time.Duration
	CacheCapacity int

	// Redis persistence (optional: in-memory stores when unset).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka observation publisher (feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED).
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// GeoIP position sensing (enabled when a database path is set).
	GeoIPDBPath string

	// Location resolution.
	DefaultLat       float64
	DefaultLon       float64
	DefaultPlaceName string
	LiveFixBudget    time.Duration
	LocationBudget   time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is merged in first
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	fetchMaxRetries, err := parseInt("FETCH_MAX_RETRIES", 3, 0, 10)
	if err != nil {
		return nil, err
	}
	fetchBaseDelay, err := parseDuration("FETCH_BASE_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	fetchPerAttempt, err := parseDuration("FETCH_PER_ATTEMPT", 2*time.Second)
	if err != nil {
		return nil, err
	}

	primaryBudget, err := parseDuration("RISK_PRIMARY_BUDGET", 3*time.Second)
	if err != nil {
		return nil, err
	}
	secondaryBudget, err := parseDuration("RISK_SECONDARY_BUDGET", 2*time.Second)
	if err != nil {
		return nil, err
	}
	cacheBudget, err := parseDuration("RISK_CACHE_BUDGET", time.Second)
	if err != nil {
		return nil, err
	}
	resolveDeadline, err := parseDuration("RISK_RESOLVE_DEADLINE", 8*time.Second)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration("CACHE_TTL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	cacheCapacity, err := parseInt("CACHE_CAPACITY", 1024, 1, 65536)
	if err != nil {
		return nil, err
	}

	redisDB, err := parseInt("REDIS_DB", 0, 0, 15)
	if err != nil {
		return nil, err
	}

	defaultLat, err := parseFloat("DEFAULT_LAT", 55.9533)
	if err != nil {
		return nil, err
	}
	defaultLon, err := parseFloat("DEFAULT_LON", -3.1883)
	if err != nil {
		return nil, err
	}

	liveFixBudget, err := parseDuration("LOCATION_LIVE_FIX_BUDGET", 2*time.Second)
	if err != nil {
		return nil, err
	}
	locationBudget, err := parseDuration("LOCATION_TOTAL_BUDGET", 2500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	metOfficeAPIKey := os.Getenv("MET_OFFICE_API_KEY")
	metOfficeEnabled := metOfficeAPIKey != ""
	if v := os.Getenv("MET_OFFICE_ENABLED"); v != "" {
		metOfficeEnabled = v == "true"
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		EFFISBaseURL:     envOrDefault("EFFIS_BASE_URL", "https://maps.effis.emergency.copernicus.eu/effis"),
		MetOfficeBaseURL: envOrDefault("MET_OFFICE_BASE_URL", "http://datapoint.metoffice.gov.uk/public/data"),
		MetOfficeAPIKey:  metOfficeAPIKey,
		MetOfficeEnabled: metOfficeEnabled,

		FetchMaxRetries: fetchMaxRetries,
		FetchBaseDelay:  fetchBaseDelay,
		FetchPerAttempt: fetchPerAttempt,

		PrimaryBudget:   primaryBudget,
		SecondaryBudget: secondaryBudget,
		CacheBudget:     cacheBudget,
		ResolveDeadline: resolveDeadline,

		CacheTTL:      cacheTTL,
		CacheCapacity: cacheCapacity,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "wildfire-risk-observations"),
		KafkaEnabled: kafkaEnabled,

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		DefaultLat:       defaultLat,
		DefaultLon:       defaultLon,
		DefaultPlaceName: envOrDefault("DEFAULT_PLACE_NAME", "Edinburgh"),
		LiveFixBudget:    liveFixBudget,
		LocationBudget:   locationBudget,
	}

	if cfg.EFFISBaseURL == "" {
		return nil, fmt.Errorf("EFFIS_BASE_URL is required")
	}
	if cfg.MetOfficeEnabled && cfg.MetOfficeAPIKey == "" {
		return nil, fmt.Errorf("MET_OFFICE_ENABLED is true but MET_OFFICE_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required when the publisher is enabled")
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 {
		return nil, fmt.Errorf("DEFAULT_LAT %g out of range [-90, 90]", cfg.DefaultLat)
	}
	if cfg.DefaultLon < -180 || cfg.DefaultLon > 180 {
		return nil, fmt.Errorf("DEFAULT_LON %g out of range [-180, 180]", cfg.DefaultLon)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d], got %q", key, min, max, s)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, s)
	}
	return f, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty
// entries so trailing commas are harmless.
func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
