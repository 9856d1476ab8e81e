// Package outbox relays committed outbox rows to the broker.
package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/concert-booking/internal/adapters/crdb"
	"github.com/robertarktes/concert-booking/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimUnpublished(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store     Store
	broker    Broker
	logger    observability.Logger
	interval  time.Duration
	batchSize int
}

func NewPublisher(store Store, broker Broker, logger observability.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{store: store, broker: broker, logger: logger, interval: interval, batchSize: 50}
}

func (p *Publisher) Run(ctx context.Context) error {
	p.logger.WithField("interval", p.interval.String()).Info("outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return nil
		case <-ticker.C:
			n, err := p.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Warn("outbox relay pass failed")
				continue
			}
			if n > 0 {
				p.logger.WithField("published", n).Debug("outbox relay pass")
			}
		}
	}
}

// RunOnce relays one batch. Rows published before a failure stay marked; the rest are
// retried on the next pass.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := p.store.WithTx(ctx, func(ctx context.Context) error {
		records, err := p.store.ClaimUnpublished(ctx, p.batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:    rec.ID.String(),
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    rec.CreatedAt,
				Type:         rec.EventType,
				Body:         rec.Payload,
			}
			if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
				observability.OutboxPublished.WithLabelValues("error").Inc()
				if published > 0 {
					p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Warn("publish failed, keeping earlier rows")
					return nil
				}
				return errors.Wrapf(err, "publish outbox %s", rec.ID)
			}
			if err := p.store.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
				return err
			}
			observability.OutboxPublished.WithLabelValues("ok").Inc()
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
