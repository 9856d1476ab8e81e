package subscription

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/concert-booking/internal/domain"
)

// ErrStillBelowThreshold is returned by Await when the wait timeout elapses first.
var ErrStillBelowThreshold = errors.New("occupancy still below threshold")

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("subscription service closed")

type ConcertFinder interface {
	FindConcert(ctx context.Context, id int64) (domain.Concert, error)
}

type Service struct {
	concerts ConcertFinder
	registry *Registry
	timeout  time.Duration
	closed   atomic.Bool
}

// NewService registers subscriptions in registry. A zero timeout waits indefinitely.
func NewService(concerts ConcertFinder, registry *Registry, timeout time.Duration) *Service {
	return &Service{concerts: concerts, registry: registry, timeout: timeout}
}

func (s *Service) Subscribe(ctx context.Context, caller *domain.User, concertID int64, date time.Time, threshold int) (*Subscription, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if threshold < 0 || threshold > 100 {
		return nil, errors.Wrapf(domain.ErrInvalidRequest, "threshold %d out of range", threshold)
	}
	concert, err := s.concerts.FindConcert(ctx, concertID)
	if err != nil {
		return nil, errors.Wrapf(err, "concert %d", concertID)
	}
	if !concert.HasDate(date) {
		return nil, errors.Wrapf(domain.ErrInvalidRequest, "concert %d has no performance at %s", concertID, date.Format(time.RFC3339))
	}

	if s.closed.Load() {
		return nil, ErrClosed
	}
	sub := New(concertID, date, threshold, caller.ID)
	s.registry.Add(sub)
	if s.closed.Load() && s.registry.Remove(sub) {
		sub.Cancel()
		return nil, ErrClosed
	}
	return sub, nil
}

// Close cancels every pending subscription so waiting callers return ErrClosed.
// Later calls to Subscribe fail with ErrClosed.
func (s *Service) Close() {
	s.closed.Store(true)
	for _, sub := range s.registry.Take(func(*Subscription) bool { return true }) {
		sub.Cancel()
	}
}

// Await waits for sub's notification. If ctx ends or the timeout elapses first, the
// handle is cancelled and removed from the registry.
func (s *Service) Await(ctx context.Context, sub *Subscription) (domain.Notification, error) {
	waitCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, s.timeout, ErrStillBelowThreshold)
		defer cancel()
	}

	n, err := sub.Wait(waitCtx)
	if err == nil {
		return n, nil
	}
	s.registry.Remove(sub)
	if errors.Is(context.Cause(waitCtx), ErrStillBelowThreshold) && ctx.Err() == nil {
		return domain.Notification{}, ErrStillBelowThreshold
	}
	if waitCtx.Err() == nil && s.closed.Load() {
		return domain.Notification{}, ErrClosed
	}
	return domain.Notification{}, err
}
