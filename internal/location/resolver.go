package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

const (
	// DefaultLiveFixBudget bounds one fresh sensor acquisition.
	DefaultLiveFixBudget = 2 * time.Second
	// DefaultTotalBudget bounds the whole tier walk.
	DefaultTotalBudget = 2500 * time.Millisecond

	// manualMaxAge is how long a manual entry may stand in for a live
	// position. An entry exactly this old is already too old.
	manualMaxAge = time.Hour
)

// Resolver walks the location tiers. The preference store, the
// persisted default, and the clock are fixed at construction; the
// sensor arrives per call because it is bound to the requesting client.
type Resolver struct {
	prefs        PreferenceStore
	defaultCoord domain.Coordinate
	defaultPlace string
	fixBudget    time.Duration
	totalBudget  time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewResolver wires a Resolver. Non-positive budgets fall back to the
// package defaults.
func NewResolver(prefs PreferenceStore, defaultCoord domain.Coordinate, defaultPlace string, fixBudget, totalBudget time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if fixBudget <= 0 {
		fixBudget = DefaultLiveFixBudget
	}
	if totalBudget <= 0 {
		totalBudget = DefaultTotalBudget
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		prefs:        prefs,
		defaultCoord: defaultCoord,
		defaultPlace: defaultPlace,
		fixBudget:    fixBudget,
		totalBudget:  totalBudget,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// Resolve returns the best position the tiers can produce. sensor may
// be nil; the sensor tiers are then skipped, which is an inapplicable
// capability, not a failure. With allowDefault false and every tier
// empty the call fails with a validation error of kind
// location_unavailable so callers can tell "no location" apart from a
// silent default.
func (r *Resolver) Resolve(ctx context.Context, sensor PositionSensor, allowDefault bool) (domain.ResolvedLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.totalBudget)
	defer cancel()

	if sensor != nil && sensor.Supported() {
		if pos, ok := r.lastKnown(ctx, sensor); ok {
			return r.resolved(domain.LocationLastKnown, pos.Coordinate, ""), nil
		}
		if pos, err := r.liveFix(ctx, sensor); err == nil {
			return r.resolved(domain.LocationLiveFix, pos.Coordinate, ""), nil
		}
	} else {
		r.logger.Debug("position sensor unavailable, skipping sensor tiers")
	}

	if entry, ok := r.manualEntry(ctx); ok {
		return r.resolved(domain.LocationCachedManual, entry.Coordinate, entry.PlaceName), nil
	}

	if allowDefault {
		return r.resolved(domain.LocationPersistedDefault, r.defaultCoord, r.defaultPlace), nil
	}

	return domain.ResolvedLocation{}, &domain.ServiceError{
		Category: domain.CategoryValidation,
		Kind:     domain.KindLocationUnavailable,
		Message:  "no location available and default fallback disallowed",
	}
}

// SaveManual stores a user-chosen location for the cached-manual tier.
// The write replaces the whole slot, so there is no read-modify-write
// race between concurrent saves.
func (r *Resolver) SaveManual(ctx context.Context, coord domain.Coordinate, placeName string) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	entry := domain.ManualEntry{
		Coordinate: coord,
		PlaceName:  placeName,
		SavedAt:    r.clock.Now().UTC(),
	}
	if err := r.prefs.SaveManualLocation(ctx, entry); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "persist manual location", err)
	}
	r.logger.Info("manual location saved", "coordinate", coord.Redacted(), "place_name", placeName)
	return nil
}

// lastKnown reads the sensor's held fix. Panics and invalid fixes are
// swallowed as an absent tier so the chain keeps walking.
func (r *Resolver) lastKnown(ctx context.Context, sensor PositionSensor) (pos domain.Position, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("last known position read panicked", "panic", fmt.Sprint(rec))
			r.metrics.LocationTierFailures.WithLabelValues("last_known").Inc()
			ok = false
		}
	}()

	pos, ok = sensor.LastKnown(ctx)
	if !ok {
		return domain.Position{}, false
	}
	if err := pos.Coordinate.Validate(); err != nil {
		r.logger.Warn("last known position invalid", "error", err)
		r.metrics.LocationTierFailures.WithLabelValues("last_known").Inc()
		return domain.Position{}, false
	}
	return pos, true
}

// liveFix acquires a fresh fix under its own budget. Every failure
// mode, panics included, comes back as an error for the caller to fall
// through on.
func (r *Resolver) liveFix(ctx context.Context, sensor PositionSensor) (pos domain.Position, err error) {
	fixCtx, cancel := context.WithTimeout(ctx, r.fixBudget)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.NewError(domain.CategoryGeneral, fmt.Sprintf("position sensor panicked: %v", rec))
		}
		if err != nil {
			r.logger.Warn("live fix failed", "error", err)
			r.metrics.LocationTierFailures.WithLabelValues("live_fix").Inc()
		}
	}()

	pos, err = sensor.Current(fixCtx)
	if err != nil {
		return domain.Position{}, err
	}
	if verr := pos.Coordinate.Validate(); verr != nil {
		return domain.Position{}, domain.WrapError(domain.CategoryParse, "sensor returned invalid coordinate", verr)
	}
	return pos, nil
}

// manualEntry returns the stored manual location if it is young enough
// to trust. Entries without a timestamp, at or past the age limit, or
// with a bad coordinate are treated as absent regardless of value.
func (r *Resolver) manualEntry(ctx context.Context) (domain.ManualEntry, bool) {
	entry, found, err := r.prefs.ManualLocation(ctx)
	if err != nil {
		r.logger.Warn("manual location read failed", "error", err)
		r.metrics.LocationTierFailures.WithLabelValues("cached_manual").Inc()
		return domain.ManualEntry{}, false
	}
	if !found || entry.SavedAt.IsZero() {
		return domain.ManualEntry{}, false
	}
	if age := r.clock.Since(entry.SavedAt); age >= manualMaxAge {
		r.logger.Debug("manual location too old", "age", age)
		return domain.ManualEntry{}, false
	}
	if err := entry.Coordinate.Validate(); err != nil {
		r.logger.Warn("manual location invalid", "error", err)
		r.metrics.LocationTierFailures.WithLabelValues("cached_manual").Inc()
		return domain.ManualEntry{}, false
	}
	return entry, true
}

func (r *Resolver) resolved(source domain.LocationSource, coord domain.Coordinate, placeName string) domain.ResolvedLocation {
	r.metrics.LocationResolutions.WithLabelValues(string(source)).Inc()
	r.logger.Info("location resolved", "source", source, "coordinate", coord.Redacted())
	return domain.ResolvedLocation{Coordinate: coord, Source: source, PlaceName: placeName}
}
