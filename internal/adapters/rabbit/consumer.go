package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/concert-booking/internal/events"
)

// Consumer reads from a server-named exclusive queue, so every instance sees every
// event bound to it.
type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func NewConsumer(conn *amqp.Connection, keys ...string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "declare queue")
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, key, events.Exchange, false, nil); err != nil {
			return nil, errors.Wrapf(err, "bind %s", key)
		}
	}
	if err := ch.Qos(32, 0, false); err != nil {
		return nil, errors.Wrap(err, "set qos")
	}
	return &Consumer{ch: ch, queue: q.Name}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	d, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, true, false, false, nil)
	return d, errors.Wrapf(err, "consume %s", c.queue)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
