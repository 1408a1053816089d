package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/metrics"
	"github.com/nodeport-labs/swapd/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing swap
// lifecycle events. The wallet UI and any downstream consumers subscribe to
// these subjects instead of receiving callbacks from the coordinator.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	logger  *zap.Logger
	service string
}

// New creates a new Publisher with JetStream enabled.
func New(nc *nats.Conn, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		metrics.NATSPublishErrors.WithLabelValues(subject).Inc()
		p.logger.Warn("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType))
	return nil
}

// PublishSwapStatus emits a swap status change on
// evt.swap.status_changed.v1, and evt.swap.<status>.v1 when final.
func (p *Publisher) PublishSwapStatus(ctx context.Context, ev model.SwapStatusEvent) error {
	payload, _ := json.Marshal(ev)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     "swap.status_changed",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
	if err := p.PublishEnvelope(ctx, "evt.swap.status_changed.v1", env); err != nil {
		return err
	}
	if ev.Final {
		subject := "evt.swap.failed.v1"
		if ev.Status == model.StatusCompleted {
			subject = "evt.swap.completed.v1"
		}
		return p.PublishEnvelope(ctx, subject, env)
	}
	return nil
}

// PublishQuoteCreated emits evt.swap.quote_created.v1 for a freshly received
// quote.
func (p *Publisher) PublishQuoteCreated(ctx context.Context, q model.Quote) error {
	payload, _ := json.Marshal(q)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     "swap.quote_created",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
	return p.PublishEnvelope(ctx, "evt.swap.quote_created.v1", env)
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
