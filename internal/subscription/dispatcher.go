package subscription

import (
	"context"
	"time"

	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// InventoryReader is the read side of the seat store.
type InventoryReader interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindSeatsForRead(ctx context.Context, date time.Time) ([]domain.Seat, error)
}

type Dispatcher struct {
	inventory InventoryReader
	registry  *Registry
	logger    observability.Logger
}

func NewDispatcher(inventory InventoryReader, registry *Registry, logger observability.Logger) *Dispatcher {
	return &Dispatcher{inventory: inventory, registry: registry, logger: logger}
}

var tracer = otel.Tracer("subscription")

// Dispatch recounts the performance and resolves every subscription whose threshold
// the current occupancy meets. It returns how many handles it resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, concertID int64, date time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "subscription.Dispatch")
	defer span.End()

	var occ domain.Occupancy
	err := d.inventory.WithTx(ctx, func(txCtx context.Context) error {
		seats, err := d.inventory.FindSeatsForRead(txCtx, date)
		if err != nil {
			return err
		}
		occ = domain.OccupancyOf(seats)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	log := d.logger.WithField("concert_id", concertID).WithField("date", date.Format(time.RFC3339))
	if occ.Total == 0 {
		log.Debug("no seats for performance, skipping dispatch")
		return 0, nil
	}

	span.SetAttributes(
		attribute.Int("seats.total", occ.Total),
		attribute.Int("seats.booked", occ.Booked),
	)

	n := domain.Notification{RemainingSeats: occ.Remaining(), PercentageBooked: occ.Percent()}
	matched := d.registry.Take(func(s *Subscription) bool {
		return s.Matches(concertID, date, occ)
	})

	resolved := 0
	for _, s := range matched {
		if !s.Resolve(n) {
			log.WithField("subscription_id", s.ID.String()).Warn("subscription already closed, skipping")
			continue
		}
		resolved++
	}
	observability.NotificationsResolved.Add(float64(resolved))
	span.SetAttributes(attribute.Int("subscriptions.resolved", resolved))
	if resolved > 0 {
		log.WithField("resolved", resolved).WithField("remaining", n.RemainingSeats).Info("notified subscribers")
	}
	return resolved, nil
}
