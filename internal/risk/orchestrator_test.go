package risk

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/geocache"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// --- fakes ---

type fakeSource struct {
	name    string
	reading domain.IndexReading
	err     error
	panics  string
	calls   int
	onQuery func(ctx context.Context)
}

func (f *fakeSource) Query(ctx context.Context, _ domain.Coordinate) (domain.IndexReading, error) {
	f.calls++
	if f.onQuery != nil {
		f.onQuery(ctx)
	}
	if f.panics != "" {
		panic(f.panics)
	}
	if err := ctx.Err(); err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryNetwork, "request aborted", err)
	}
	return f.reading, f.err
}

func (f *fakeSource) Name() string { return f.name }

// recordingStages captures the event stream for ordering assertions.
type recordingStages struct {
	events []string
	skips  map[string]string
	ids    []string
}

func newRecordingStages() *recordingStages {
	return &recordingStages{skips: make(map[string]string)}
}

func (r *recordingStages) StageStarted(resolveID, stage string) {
	r.ids = append(r.ids, resolveID)
	r.events = append(r.events, stage+":start")
}

func (r *recordingStages) StageFinished(resolveID, stage string, err error) {
	r.ids = append(r.ids, resolveID)
	if err != nil {
		r.events = append(r.events, stage+":fail")
		return
	}
	r.events = append(r.events, stage+":ok")
}

func (r *recordingStages) StageSkipped(resolveID, stage, reason string) {
	r.ids = append(r.ids, resolveID)
	r.events = append(r.events, stage+":skip")
	r.skips[stage] = reason
}

func (r *recordingStages) uniqueIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range r.ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// --- fixture ---

type fixture struct {
	primary   *fakeSource
	secondary *fakeSource
	cache     *geocache.Cache
	clock     *clockwork.FakeClock
	stages    *recordingStages
	orch      *Orchestrator
}

var (
	edinburgh = domain.Coordinate{Lat: 55.9533, Lon: -3.1883}
	athens    = domain.Coordinate{Lat: 37.9838, Lon: 23.7275}
)

// newFixture wires an orchestrator over fakes. July keeps the synthetic
// stage in the northern dry season so its output is predictable.
func newFixture() *fixture {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cache := geocache.New(geocache.NewMemoryStore(), 6*time.Hour, 16, clock, logger, metrics)

	f := &fixture{
		primary:   &fakeSource{name: "effis", reading: domain.IndexReading{Value: 24.0}},
		secondary: &fakeSource{name: "metoffice", reading: domain.IndexReading{Value: 9.0}},
		cache:     cache,
		clock:     clock,
		stages:    newRecordingStages(),
	}
	f.orch = NewOrchestrator(f.primary, f.secondary, cache, NewSynthetic(clock), Budgets{}, clock, logger, metrics)
	f.orch.recorder = f.stages
	return f
}

// --- tests ---

func TestOrchestrator_PrimarySuccess(t *testing.T) {
	f := newFixture()

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourcePrimary, obs.Source)
	assert.Equal(t, domain.FreshnessLive, obs.Freshness)
	assert.Equal(t, domain.LevelHigh, obs.Level)
	require.NotNil(t, obs.IndexValue)
	assert.Equal(t, 24.0, *obs.IndexValue)

	assert.Equal(t, []string{"primary:start", "primary:ok"}, f.stages.events)
	assert.Equal(t, 0, f.secondary.calls, "secondary must not run when primary succeeds")

	cached, ok := f.cache.Get(context.Background(), edinburgh)
	require.True(t, ok, "live success should be written back to the cache")
	assert.Equal(t, domain.SourcePrimary, cached.Source)
	assert.Equal(t, domain.FreshnessCached, cached.Freshness)
}

func TestOrchestrator_InvalidCoordinateAttemptsNoSource(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Resolve(context.Background(), domain.Coordinate{Lat: 91, Lon: 0})
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryValidation))

	assert.Equal(t, 0, f.primary.calls)
	assert.Equal(t, 0, f.secondary.calls)
	assert.Empty(t, f.stages.events)
}

func TestOrchestrator_FallsBackToSecondaryInsideRegion(t *testing.T) {
	f := newFixture()
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSecondary, obs.Source)
	assert.Equal(t, domain.FreshnessLive, obs.Freshness)
	assert.Equal(t, domain.LevelLow, obs.Level)
	assert.Equal(t, []string{
		"primary:start", "primary:fail",
		"secondary:start", "secondary:ok",
	}, f.stages.events)

	cached, ok := f.cache.Get(context.Background(), edinburgh)
	require.True(t, ok)
	assert.Equal(t, domain.SourceSecondary, cached.Source, "write-back should keep secondary attribution")
}

func TestOrchestrator_SkipsSecondaryOutsideRegion(t *testing.T) {
	f := newFixture()
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")

	obs, err := f.orch.Resolve(context.Background(), athens)
	require.NoError(t, err)

	assert.Equal(t, 0, f.secondary.calls, "secondary must never be attempted outside its region")
	assert.Equal(t, []string{
		"primary:start", "primary:fail",
		"secondary:skip",
		"cache:start", "cache:fail",
		"synthetic:start", "synthetic:ok",
	}, f.stages.events)
	assert.Equal(t, "coordinate outside coverage region", f.stages.skips[StageSecondary])

	assert.Equal(t, domain.SourceSynthetic, obs.Source)
	assert.Equal(t, domain.FreshnessSynthetic, obs.Freshness)
	assert.Nil(t, obs.IndexValue, "synthetic stage must not fabricate an index value")
}

func TestOrchestrator_ServesCacheWhenSourcesFail(t *testing.T) {
	f := newFixture()

	index := 24.0
	seeded := domain.RiskObservation{
		Level:      domain.LevelHigh,
		IndexValue: &index,
		Source:     domain.SourcePrimary,
		Freshness:  domain.FreshnessLive,
		ObservedAt: f.clock.Now().UTC(),
	}
	require.NoError(t, f.cache.Set(context.Background(), edinburgh, seeded))

	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")
	f.secondary.err = domain.ErrorFromStatus(500, "fsi backend error")

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourcePrimary, obs.Source, "cache hit keeps the original source")
	assert.Equal(t, domain.FreshnessCached, obs.Freshness)
	assert.Equal(t, domain.LevelHigh, obs.Level)
	assert.Equal(t, []string{
		"primary:start", "primary:fail",
		"secondary:start", "secondary:fail",
		"cache:start", "cache:ok",
	}, f.stages.events)
}

func TestOrchestrator_SyntheticWhenEverythingFails(t *testing.T) {
	f := newFixture()
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")
	f.secondary.err = domain.ErrorFromStatus(500, "fsi backend error")

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSynthetic, obs.Source)
	assert.Equal(t, domain.FreshnessSynthetic, obs.Freshness)
	assert.Equal(t, domain.LevelLow, obs.Level, "July in Scotland is dry season outside the subtropics")
	assert.Nil(t, obs.IndexValue)
}

func TestOrchestrator_RecoversPanickingSource(t *testing.T) {
	f := newFixture()
	f.primary.panics = "effis decoder blew up"

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSecondary, obs.Source)
	assert.Equal(t, []string{
		"primary:start", "primary:fail",
		"secondary:start", "secondary:ok",
	}, f.stages.events)
}

func TestOrchestrator_PanicsEverywhereStillResolves(t *testing.T) {
	f := newFixture()
	f.primary.panics = "effis decoder blew up"
	f.secondary.panics = "fsi decoder blew up"

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSynthetic, obs.Source)
}

func TestOrchestrator_NilSecondaryIsSkipped(t *testing.T) {
	f := newFixture()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	f.orch = NewOrchestrator(f.primary, nil, f.cache, NewSynthetic(f.clock), Budgets{}, f.clock, logger, metrics)
	f.orch.recorder = f.stages
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSynthetic, obs.Source)
	assert.Equal(t, "regional source not configured", f.stages.skips[StageSecondary])
}

func TestOrchestrator_DeadlineSkipsRemainingStages(t *testing.T) {
	f := newFixture()
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")
	f.primary.onQuery = func(context.Context) {
		// Burn past the advisory deadline inside the first stage.
		f.clock.Advance(9 * time.Second)
	}

	obs, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"primary:start", "primary:fail",
		"secondary:skip",
		"cache:skip",
		"synthetic:start", "synthetic:ok",
	}, f.stages.events)
	assert.Equal(t, "resolve deadline exhausted", f.stages.skips[StageSecondary])
	assert.Equal(t, "resolve deadline exhausted", f.stages.skips[StageCache])
	assert.Equal(t, domain.SourceSynthetic, obs.Source)
}

func TestOrchestrator_CancelledContextStillResolves(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs, err := f.orch.Resolve(ctx, edinburgh)
	require.NoError(t, err, "a dead context must degrade to synthetic, not fail")
	assert.Equal(t, domain.SourceSynthetic, obs.Source)
}

func TestOrchestrator_ResolveIDsCorrelateOneCall(t *testing.T) {
	f := newFixture()
	f.primary.err = domain.ErrorFromStatus(503, "effis maintenance window")

	_, err := f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)
	_, err = f.orch.Resolve(context.Background(), edinburgh)
	require.NoError(t, err)

	ids := f.stages.uniqueIDs()
	require.Len(t, ids, 2, "each resolve should carry its own id across all its events")
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, ids[1])
}
