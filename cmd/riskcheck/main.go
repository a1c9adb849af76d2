// Command riskcheck resolves the wildfire risk for one coordinate from
// the command line, running the same resolution chain as the service
// with in-memory stores. Provider URLs, retry policy, and stage budgets
// come from the environment exactly as they do for riskd.
//
// Usage:
//
//	go run ./cmd/riskcheck -lat 55.9533 -lon -3.1883
//	go run ./cmd/riskcheck -lat 38.7169 -lon -9.1399 -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/effis"
	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/metoffice"
	"github.com/couchcryptid/wildfire-risk-service/internal/config"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/fetch"
	"github.com/couchcryptid/wildfire-risk-service/internal/geocache"
	"github.com/couchcryptid/wildfire-risk-service/internal/geohash"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/risk"
)

func main() {
	lat := flag.Float64("lat", math.NaN(), "latitude in decimal degrees")
	lon := flag.Float64("lon", math.NaN(), "longitude in decimal degrees")
	asJSON := flag.Bool("json", false, "emit the result as JSON")
	timeout := flag.Duration("timeout", 15*time.Second, "overall resolution timeout")
	verbose := flag.Bool("v", false, "log the resolution stages to stderr")
	flag.Parse()

	if math.IsNaN(*lat) || math.IsNaN(*lon) {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*lat, *lon, *asJSON, *timeout, *verbose); code != 0 {
		os.Exit(code)
	}
}

// report is the -json output shape.
type report struct {
	Coordinate domain.Coordinate      `json:"coordinate"`
	Cell       string                 `json:"cell"`
	Risk       domain.RiskObservation `json:"risk"`
	ElapsedMS  int64                  `json:"elapsed_ms"`
}

func run(lat, lon float64, asJSON bool, timeout time.Duration, verbose bool) int {
	coord, err := domain.NewCoordinate(lat, lon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	// The report goes to stdout; logs stay on stderr so the output pipes
	// cleanly.
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	fetchOpts := fetch.Options{
		MaxRetries: cfg.FetchMaxRetries,
		BaseDelay:  cfg.FetchBaseDelay,
		PerAttempt: cfg.FetchPerAttempt,
	}

	primary := effis.NewClient(cfg.EFFISBaseURL, fetchOpts, logger, metrics)

	var secondary risk.Source
	if cfg.MetOfficeEnabled {
		secondary = metoffice.NewClient(cfg.MetOfficeBaseURL, cfg.MetOfficeAPIKey, fetchOpts, logger, metrics)
	}

	cache := geocache.New(geocache.NewMemoryStore(), cfg.CacheTTL, 16, clock, logger, metrics)

	budgets := risk.Budgets{
		Primary:   cfg.PrimaryBudget,
		Secondary: cfg.SecondaryBudget,
		Cache:     cfg.CacheBudget,
		Deadline:  cfg.ResolveDeadline,
	}
	orchestrator := risk.NewOrchestrator(primary, secondary, cache, risk.NewSynthetic(clock), budgets, clock, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	obs, err := orchestrator.Resolve(ctx, coord)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	elapsed := time.Since(started)

	cell := geohash.Encode(coord.Lat, coord.Lon, geohash.PrecisionCacheKey)

	if asJSON {
		out, err := json.MarshalIndent(report{
			Coordinate: coord,
			Cell:       cell,
			Risk:       obs,
			ElapsedMS:  elapsed.Milliseconds(),
		}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: encode report: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}

	printReport(coord, cell, obs, elapsed)
	return 0
}

func printReport(coord domain.Coordinate, cell string, obs domain.RiskObservation, elapsed time.Duration) {
	index := "-"
	if obs.IndexValue != nil {
		index = fmt.Sprintf("%.1f", *obs.IndexValue)
	}

	fmt.Printf("coordinate   %g,%g  (cell %s)\n", coord.Lat, coord.Lon, cell)
	fmt.Printf("level        %s%s\033[0m\n", levelColor(obs.Level), obs.Level)
	fmt.Printf("index        %s\n", index)
	fmt.Printf("source       %s\n", obs.Source)
	fmt.Printf("freshness    %s\n", obs.Freshness)
	fmt.Printf("observed_at  %s\n", obs.ObservedAt.Format(time.RFC3339))
	fmt.Printf("elapsed      %s\n", elapsed.Round(time.Millisecond))

	if obs.Freshness == domain.FreshnessSynthetic {
		fmt.Println("\nNote: no provider data was reachable; this is the seasonal floor.")
	}
}

func levelColor(l domain.Level) string {
	switch {
	case l >= domain.LevelHigh:
		return "\033[31m"
	case l == domain.LevelModerate:
		return "\033[33m"
	default:
		return "\033[32m"
	}
}
