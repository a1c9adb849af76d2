// Package kafka publishes resolved risk observations for downstream
// consumers such as alerting and analytics. Publishing is best-effort:
// a resolution never fails or blocks because the broker is slow.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/wildfire-risk-service/internal/config"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/geohash"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// publishBudget bounds each async publish so a dead broker cannot pile
// up goroutines behind it.
const publishBudget = 5 * time.Second

// Publisher produces resolved observations to a Kafka topic, keyed by
// geohash cell so every observation for a cell lands on one partition
// in resolution order.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	metrics.PublisherEnabled.Set(1)
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// observationEnvelope is the published message body. The coordinate is
// reduced to its geohash cell; precise positions stay out of the topic.
type observationEnvelope struct {
	Cell        string                 `json:"cell"`
	Observation domain.RiskObservation `json:"observation"`
}

// Publish sends one observation and waits for broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, coord domain.Coordinate, obs domain.RiskObservation) error {
	msg, err := toMessage(coord, obs)
	if err != nil {
		p.metrics.ObservationsPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.ObservationsPublished.WithLabelValues("error").Inc()
		return domain.WrapError(domain.CategoryNetwork, "publish observation", err)
	}
	p.metrics.ObservationsPublished.WithLabelValues("success").Inc()
	return nil
}

// PublishAsync hands the observation to a goroutine with a detached
// context, so the resolve path returns without waiting on the broker.
func (p *Publisher) PublishAsync(ctx context.Context, coord domain.Coordinate, obs domain.RiskObservation) {
	detached := context.WithoutCancel(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(detached, publishBudget)
		defer cancel()
		if err := p.Publish(pubCtx, coord, obs); err != nil {
			p.logger.Warn("observation publish failed",
				"error", err,
				"cell", geohash.Encode(coord.Lat, coord.Lon, geohash.PrecisionCacheKey))
		}
	}()
}

func (p *Publisher) Close() error {
	p.metrics.PublisherEnabled.Set(0)
	return p.writer.Close()
}

// toMessage marshals an observation into a Kafka message keyed by its
// geohash cell. The routing tags are mirrored into headers so consumers
// can filter without decoding the body.
func toMessage(coord domain.Coordinate, obs domain.RiskObservation) (kafkago.Message, error) {
	cell := geohash.Encode(coord.Lat, coord.Lon, geohash.PrecisionCacheKey)
	data, err := json.Marshal(observationEnvelope{Cell: cell, Observation: obs})
	if err != nil {
		return kafkago.Message{}, domain.WrapError(domain.CategoryParse, "serialize observation", err)
	}
	return kafkago.Message{
		Key:   []byte(cell),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "level", Value: []byte(obs.Level.String())},
			{Key: "source", Value: []byte(obs.Source)},
			{Key: "freshness", Value: []byte(obs.Freshness)},
			{Key: "observed_at", Value: []byte(obs.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
