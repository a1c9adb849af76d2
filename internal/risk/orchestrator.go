package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/geocache"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// Default stage budgets. The three fallback stages sum well under the
// overall deadline so a resolve that walks the whole chain still
// finishes inside it.
const (
	DefaultPrimaryBudget   = 3 * time.Second
	DefaultSecondaryBudget = 2 * time.Second
	DefaultCacheBudget     = time.Second
	DefaultDeadline        = 8 * time.Second

	writeBackBudget = time.Second
)

// Budgets caps each stage and the overall resolve wall time. The
// deadline is advisory: it decides whether the next stage starts, it
// never cancels a stage already running.
type Budgets struct {
	Primary   time.Duration
	Secondary time.Duration
	Cache     time.Duration
	Deadline  time.Duration
}

func (b Budgets) withDefaults() Budgets {
	if b.Primary <= 0 {
		b.Primary = DefaultPrimaryBudget
	}
	if b.Secondary <= 0 {
		b.Secondary = DefaultSecondaryBudget
	}
	if b.Cache <= 0 {
		b.Cache = DefaultCacheBudget
	}
	if b.Deadline <= 0 {
		b.Deadline = DefaultDeadline
	}
	return b
}

// Orchestrator resolves fire danger through a ranked fallback chain:
// primary source, regional secondary source, geocache, synthetic
// baseline. Every stage failure, panics included, falls through to the
// next stage; only an invalid coordinate makes Resolve return an error.
type Orchestrator struct {
	primary   Source
	secondary Source // nil when the regional source is not configured
	cache     *geocache.Cache
	synthetic *Synthetic
	recorder  StageRecorder
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	budgets   Budgets
}

// NewOrchestrator wires the fallback chain. secondary may be nil; that
// stage is then recorded as skipped on every resolve.
func NewOrchestrator(primary, secondary Source, cache *geocache.Cache, synthetic *Synthetic, budgets Budgets, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		synthetic: synthetic,
		recorder:  newLogRecorder(logger, metrics),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		budgets:   budgets.withDefaults(),
	}
}

// Resolve produces an observation for the coordinate. The returned
// error is non-nil only for an invalid coordinate; any other trouble is
// absorbed by falling through the chain, ending at the synthetic stage
// which cannot fail.
func (o *Orchestrator) Resolve(ctx context.Context, coord domain.Coordinate) (domain.RiskObservation, error) {
	if err := coord.Validate(); err != nil {
		return domain.RiskObservation{}, err
	}

	resolveID := uuid.NewString()
	logger := o.logger.With("resolve_id", resolveID, "coordinate", coord.Redacted())
	started := o.clock.Now()
	cutoff := started.Add(o.budgets.Deadline)
	defer func() {
		o.metrics.ResolveDuration.Observe(o.clock.Since(started).Seconds())
	}()

	if obs, ok := o.attemptSource(ctx, logger, resolveID, StagePrimary, domain.SourcePrimary, o.primary, o.budgets.Primary, coord); ok {
		o.writeBack(ctx, logger, coord, obs)
		return o.resolved(logger, StagePrimary, obs), nil
	}

	switch {
	case o.secondary == nil:
		o.recorder.StageSkipped(resolveID, StageSecondary, "regional source not configured")
	case !InSecondaryRegion(coord):
		o.recorder.StageSkipped(resolveID, StageSecondary, "coordinate outside coverage region")
	case o.clock.Now().After(cutoff):
		o.recorder.StageSkipped(resolveID, StageSecondary, "resolve deadline exhausted")
	default:
		if obs, ok := o.attemptSource(ctx, logger, resolveID, StageSecondary, domain.SourceSecondary, o.secondary, o.budgets.Secondary, coord); ok {
			o.writeBack(ctx, logger, coord, obs)
			return o.resolved(logger, StageSecondary, obs), nil
		}
	}

	if o.clock.Now().After(cutoff) {
		o.recorder.StageSkipped(resolveID, StageCache, "resolve deadline exhausted")
	} else if obs, ok := o.attemptCache(ctx, resolveID, coord); ok {
		return o.resolved(logger, StageCache, obs), nil
	}

	o.recorder.StageStarted(resolveID, StageSynthetic)
	obs := o.synthetic.Observation(coord)
	o.recorder.StageFinished(resolveID, StageSynthetic, nil)
	return o.resolved(logger, StageSynthetic, obs), nil
}

// attemptSource runs one network stage and tags its reading.
func (o *Orchestrator) attemptSource(ctx context.Context, logger *slog.Logger, resolveID, stage string, tag domain.Source, src Source, budget time.Duration, coord domain.Coordinate) (domain.RiskObservation, bool) {
	o.recorder.StageStarted(resolveID, stage)
	obs, err := o.runStage(ctx, budget, func(stageCtx context.Context) (domain.RiskObservation, error) {
		reading, err := src.Query(stageCtx, coord)
		if err != nil {
			return domain.RiskObservation{}, err
		}
		return domain.NewObservation(reading, tag, domain.FreshnessLive, o.clock.Now()), nil
	})
	o.recorder.StageFinished(resolveID, stage, err)
	if err != nil {
		logger.Warn("risk source failed", "stage", stage, "source", src.Name(), "error", err)
		return domain.RiskObservation{}, false
	}
	return obs, true
}

// attemptCache runs the cache stage. A miss is reported as a not-found
// stage failure so the event stream shows why the chain moved on.
func (o *Orchestrator) attemptCache(ctx context.Context, resolveID string, coord domain.Coordinate) (domain.RiskObservation, bool) {
	o.recorder.StageStarted(resolveID, StageCache)
	obs, err := o.runStage(ctx, o.budgets.Cache, func(stageCtx context.Context) (domain.RiskObservation, error) {
		cached, ok := o.cache.Get(stageCtx, coord)
		if !ok {
			return domain.RiskObservation{}, domain.NewError(domain.CategoryNotFound, "no fresh record for cell")
		}
		return cached, nil
	})
	o.recorder.StageFinished(resolveID, StageCache, err)
	return obs, err == nil
}

// runStage executes one stage under its budget, converting a panic
// into a stage failure so the chain keeps going.
func (o *Orchestrator) runStage(ctx context.Context, budget time.Duration, fn func(context.Context) (domain.RiskObservation, error)) (obs domain.RiskObservation, err error) {
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			obs = domain.RiskObservation{}
			err = domain.NewError(domain.CategoryGeneral, fmt.Sprintf("stage panicked: %v", r))
		}
	}()
	return fn(stageCtx)
}

// writeBack stores a live observation for later cache-stage reads. It
// is best effort and detached from the caller's cancellation so a
// resolve that just finished can still populate the cache.
func (o *Orchestrator) writeBack(ctx context.Context, logger *slog.Logger, coord domain.Coordinate, obs domain.RiskObservation) {
	wbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackBudget)
	defer cancel()
	if err := o.cache.Set(wbCtx, coord, obs); err != nil {
		logger.Warn("cache write-back failed", "error", err)
	}
}

func (o *Orchestrator) resolved(logger *slog.Logger, stage string, obs domain.RiskObservation) domain.RiskObservation {
	o.metrics.Resolutions.WithLabelValues(stage).Inc()
	logger.Info("risk resolved",
		"stage", stage, "level", obs.Level, "source", obs.Source, "freshness", obs.Freshness)
	return obs
}
