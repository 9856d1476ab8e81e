// Package booking sells seats of a performance under pessimistic row locks and
// hands committed bookings to the notification dispatcher.
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SeatStore is the inventory contract. Lock-taking reads hold their locks until the
// enclosing WithTx returns.
type SeatStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// FindSeatsForUpdate exclusively locks every seat of date whose label is in labels,
	// as one acquisition. Labels without a row are absent from the result.
	FindSeatsForUpdate(ctx context.Context, date time.Time, labels []string) ([]domain.Seat, error)
	// FindSeatsForRead returns all seats of date under a shared lock.
	FindSeatsForRead(ctx context.Context, date time.Time) ([]domain.Seat, error)
	MarkSeatsBooked(ctx context.Context, date time.Time, labels []string) error
	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
}

type ConcertFinder interface {
	FindConcert(ctx context.Context, id int64) (domain.Concert, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, concertID int64, date time.Time) (int, error)
}

// OutboxRecorder writes a booking event inside the booking transaction.
type OutboxRecorder interface {
	RecordBookingCreated(ctx context.Context, b domain.Booking) error
}

type Auditor interface {
	LogBooking(ctx context.Context, b domain.Booking) error
}

type Request struct {
	ConcertID  int64
	Date       time.Time
	SeatLabels []string
}

type Coordinator struct {
	store      SeatStore
	concerts   ConcertFinder
	dispatcher Dispatcher
	outbox     OutboxRecorder
	auditor    Auditor
	logger     observability.Logger
	now        func() time.Time
}

type Option func(*Coordinator)

func WithOutbox(o OutboxRecorder) Option {
	return func(c *Coordinator) { c.outbox = o }
}

func WithAuditor(a Auditor) Option {
	return func(c *Coordinator) { c.auditor = a }
}

// WithClock overrides the booking timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(store SeatStore, concerts ConcertFinder, dispatcher Dispatcher, logger observability.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		concerts:   concerts,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var tracer = otel.Tracer("booking")

// AttemptBooking books every requested seat or none of them.
func (c *Coordinator) AttemptBooking(ctx context.Context, caller *domain.User, req Request) (domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.AttemptBooking")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("concert.id", req.ConcertID),
		attribute.String("performance.date", req.Date.Format(time.RFC3339)),
		attribute.Int("seats.requested", len(req.SeatLabels)),
	)

	b, err := c.attempt(ctx, caller, req)
	observability.BookingAttempts.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Booking{}, err
	}

	c.afterCommit(ctx, b)
	return b, nil
}

func (c *Coordinator) attempt(ctx context.Context, caller *domain.User, req Request) (domain.Booking, error) {
	if caller == nil {
		return domain.Booking{}, domain.ErrUnauthenticated
	}
	labels := normalizeLabels(req.SeatLabels)
	if len(labels) == 0 {
		return domain.Booking{}, errors.Wrap(domain.ErrInvalidRequest, "no seats requested")
	}

	concert, err := c.concerts.FindConcert(ctx, req.ConcertID)
	if err != nil {
		return domain.Booking{}, errors.Wrapf(err, "concert %d", req.ConcertID)
	}
	if !concert.HasDate(req.Date) {
		return domain.Booking{}, errors.Wrapf(domain.ErrInvalidRequest, "concert %d has no performance at %s", req.ConcertID, req.Date.Format(time.RFC3339))
	}

	var booking domain.Booking
	start := time.Now()
	err = c.store.WithTx(ctx, func(txCtx context.Context) error {
		seats, err := c.store.FindSeatsForUpdate(txCtx, req.Date, labels)
		if err != nil {
			return err
		}
		if missing := missingLabels(labels, seats); len(missing) > 0 {
			return errors.Wrapf(domain.ErrInvalidRequest, "unknown seats %s", strings.Join(missing, ","))
		}
		for _, s := range seats {
			if s.Booked {
				return errors.Wrapf(domain.ErrConflict, "seat %s already booked", s.Label)
			}
		}

		if err := c.store.MarkSeatsBooked(txCtx, req.Date, labels); err != nil {
			return err
		}
		booking = domain.NewBooking(req.ConcertID, req.Date, seats, caller.ID, c.now())
		if err := c.store.CreateBooking(txCtx, booking); err != nil {
			return err
		}
		if c.outbox != nil {
			return c.outbox.RecordBookingCreated(txCtx, booking)
		}
		return nil
	})
	observability.DBTxDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

// afterCommit runs outside the booking's lock scope. Nothing here can undo the booking.
func (c *Coordinator) afterCommit(ctx context.Context, b domain.Booking) {
	ctx = context.WithoutCancel(ctx)
	log := c.logger.WithField("booking_id", b.ID.String()).WithField("concert_id", b.ConcertID)

	if c.auditor != nil {
		if err := c.auditor.LogBooking(ctx, b); err != nil {
			log.WithError(err).Warn("audit booking failed")
		}
	}

	resolved, err := c.dispatcher.Dispatch(ctx, b.ConcertID, b.Date)
	if err != nil {
		log.WithError(err).Error("dispatch notifications failed")
		return
	}
	log.WithField("seats", len(b.Seats)).WithField("notified", resolved).Info("booking created")
}

// Seats lists the seats of one performance. The shared lock makes the listing wait for
// any in-flight booking on the same rows.
func (c *Coordinator) Seats(ctx context.Context, date time.Time, status domain.SeatStatus) ([]domain.Seat, error) {
	var out []domain.Seat
	err := c.store.WithTx(ctx, func(txCtx context.Context) error {
		seats, err := c.store.FindSeatsForRead(txCtx, date)
		if err != nil {
			return err
		}
		out = make([]domain.Seat, 0, len(seats))
		for _, s := range seats {
			if status.Matches(s) {
				out = append(out, s)
			}
		}
		return nil
	})
	return out, err
}

func (c *Coordinator) Booking(ctx context.Context, caller *domain.User, id uuid.UUID) (domain.Booking, error) {
	if caller == nil {
		return domain.Booking{}, domain.ErrUnauthenticated
	}
	b, err := c.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.UserID != caller.ID {
		return domain.Booking{}, errors.Wrapf(domain.ErrForbidden, "booking %s", id)
	}
	return b, nil
}

func (c *Coordinator) Bookings(ctx context.Context, caller *domain.User) ([]domain.Booking, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	return c.store.ListBookingsByUser(ctx, caller.ID)
}

func normalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func missingLabels(requested []string, found []domain.Seat) []string {
	have := make(map[string]struct{}, len(found))
	for _, s := range found {
		have[s.Label] = struct{}{}
	}
	var missing []string
	for _, l := range requested {
		if _, ok := have[l]; !ok {
			missing = append(missing, l)
		}
	}
	return missing
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "retry"
	}
	return "error"
}
