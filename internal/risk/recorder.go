package risk

import (
	"log/slog"

	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// Stage names, in fallback order.
const (
	StagePrimary   = "primary"
	StageSecondary = "secondary"
	StageCache     = "cache"
	StageSynthetic = "synthetic"
)

// StageRecorder receives stage lifecycle events in the order the
// orchestrator attempts them. A skipped stage was never attempted and
// gets neither a start nor a finish event.
type StageRecorder interface {
	StageStarted(resolveID, stage string)
	StageFinished(resolveID, stage string, err error)
	StageSkipped(resolveID, stage, reason string)
}

// logRecorder is the production recorder: a log line per event plus
// the per-stage attempt counters.
type logRecorder struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newLogRecorder(logger *slog.Logger, metrics *observability.Metrics) *logRecorder {
	return &logRecorder{logger: logger, metrics: metrics}
}

func (r *logRecorder) StageStarted(resolveID, stage string) {
	r.logger.Debug("stage attempt", "resolve_id", resolveID, "stage", stage)
}

func (r *logRecorder) StageFinished(resolveID, stage string, err error) {
	if err != nil {
		r.logger.Warn("stage failed", "resolve_id", resolveID, "stage", stage, "error", err)
		r.metrics.StageAttempts.WithLabelValues(stage, "failure").Inc()
		return
	}
	r.logger.Debug("stage succeeded", "resolve_id", resolveID, "stage", stage)
	r.metrics.StageAttempts.WithLabelValues(stage, "success").Inc()
}

func (r *logRecorder) StageSkipped(resolveID, stage, reason string) {
	r.logger.Debug("stage skipped", "resolve_id", resolveID, "stage", stage, "reason", reason)
	r.metrics.StageAttempts.WithLabelValues(stage, "skipped").Inc()
}
