package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/concert-booking/internal/events"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(events.Exchange, "topic", true, false, false, false, nil)
	return errors.Wrapf(err, "declare exchange %s", events.Exchange)
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return errors.Wrapf(p.ch.PublishWithContext(ctx, events.Exchange, key, false, false, msg), "publish %s", key)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
