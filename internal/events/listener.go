package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/concert-booking/internal/observability"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, concertID int64, date time.Time) (int, error)
}

// Listener runs a dispatch pass for bookings committed by other instances, so that
// subscribers waiting on this instance are resolved too.
type Listener struct {
	instanceID string
	dispatcher Dispatcher
	logger     observability.Logger
}

func NewListener(instanceID string, dispatcher Dispatcher, logger observability.Logger) *Listener {
	return &Listener{instanceID: instanceID, dispatcher: dispatcher, logger: logger}
}

// Run consumes deliveries until ctx ends or the channel closes.
func (l *Listener) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := l.Handle(ctx, d.Body); err != nil {
				l.logger.WithError(err).Warn("drop booking event")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (l *Listener) Handle(ctx context.Context, body []byte) error {
	var ev BookingCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "unmarshal booking event")
	}
	if ev.Origin == l.instanceID {
		return nil
	}
	n, err := l.dispatcher.Dispatch(ctx, ev.ConcertID, ev.Date)
	if err != nil {
		return errors.Wrapf(err, "dispatch for booking %s", ev.BookingID)
	}
	if n > 0 {
		l.logger.WithField("booking_id", ev.BookingID.String()).WithField("resolved", n).Info("resolved subscribers for remote booking")
	}
	return nil
}
