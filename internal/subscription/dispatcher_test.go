package subscription_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/concert-booking/internal/adapters/memory"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/observability"
	"github.com/robertarktes/concert-booking/internal/subscription"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	perf   = time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC)
	caller = &domain.User{ID: 7, Username: "carol"}
)

func nullLogger() observability.Logger {
	l, _ := test.NewNullLogger()
	return observability.FromLogrus(l)
}

func storeWithSeats(total, booked int) *memory.Store {
	s := memory.NewStore()
	s.AddConcert(domain.Concert{ID: 1, Dates: []time.Time{perf}})
	for i := 1; i <= total; i++ {
		s.AddSeats(domain.Seat{Label: fmt.Sprintf("S%02d", i), Date: perf, Booked: i <= booked})
	}
	return s
}

func TestDispatch_ResolvesAtOrAboveThreshold(t *testing.T) {
	store := storeWithSeats(10, 6)
	registry := subscription.NewRegistry()
	d := subscription.NewDispatcher(store, registry, nullLogger())

	at := subscription.New(1, perf, 60, 1)
	below := subscription.New(1, perf, 61, 2)
	otherConcert := subscription.New(2, perf, 10, 3)
	registry.Add(at)
	registry.Add(below)
	registry.Add(otherConcert)

	resolved, err := d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	n, err := at.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n.RemainingSeats)
	assert.Equal(t, 2, registry.Len())

	resolved, err = d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	assert.Zero(t, resolved, "a resolved subscription is never fired again")
}

func TestDispatch_ResolvesExactPercentage(t *testing.T) {
	store := storeWithSeats(100, 29)
	registry := subscription.NewRegistry()
	d := subscription.NewDispatcher(store, registry, nullLogger())

	sub := subscription.New(1, perf, 29, 1)
	registry.Add(sub)

	resolved, err := d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	require.Equal(t, 1, resolved)

	n, err := sub.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 71, n.RemainingSeats)
}

func TestDispatch_SameSnapshotForAllSubscribers(t *testing.T) {
	store := storeWithSeats(4, 3)
	registry := subscription.NewRegistry()
	d := subscription.NewDispatcher(store, registry, nullLogger())

	subs := []*subscription.Subscription{
		subscription.New(1, perf, 0, 1),
		subscription.New(1, perf, 50, 2),
		subscription.New(1, perf, 75, 3),
	}
	for _, s := range subs {
		registry.Add(s)
	}

	resolved, err := d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	require.Equal(t, 3, resolved)
	for _, s := range subs {
		n, err := s.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n.RemainingSeats)
		assert.InDelta(t, 75.0, n.PercentageBooked, 0.001)
	}
}

func TestDispatch_NoSeatsResolvesNothing(t *testing.T) {
	store := memory.NewStore()
	registry := subscription.NewRegistry()
	d := subscription.NewDispatcher(store, registry, nullLogger())
	registry.Add(subscription.New(1, perf, 0, 1))

	resolved, err := d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, 1, registry.Len())
}

func TestDispatch_SkipsCancelledHandles(t *testing.T) {
	store := storeWithSeats(2, 2)
	registry := subscription.NewRegistry()
	d := subscription.NewDispatcher(store, registry, nullLogger())

	gone := subscription.New(1, perf, 10, 1)
	registry.Add(gone)
	gone.Cancel()

	resolved, err := d.Dispatch(context.Background(), 1, perf)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Zero(t, registry.Len())
}

func TestService_SubscribeValidation(t *testing.T) {
	store := storeWithSeats(10, 0)
	svc := subscription.NewService(store, subscription.NewRegistry(), 0)

	tests := []struct {
		name      string
		user      *domain.User
		concertID int64
		date      time.Time
		threshold int
		wantErr   error
	}{
		{"no caller", nil, 1, perf, 50, domain.ErrUnauthenticated},
		{"threshold too high", caller, 1, perf, 101, domain.ErrInvalidRequest},
		{"negative threshold", caller, 1, perf, -1, domain.ErrInvalidRequest},
		{"unknown concert", caller, 9, perf, 50, domain.ErrNotFound},
		{"unscheduled date", caller, 1, perf.AddDate(0, 0, 1), 50, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Subscribe(context.Background(), tt.user, tt.concertID, tt.date, tt.threshold)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestService_AwaitTimeout(t *testing.T) {
	store := storeWithSeats(10, 0)
	registry := subscription.NewRegistry()
	svc := subscription.NewService(store, registry, 20*time.Millisecond)

	sub, err := svc.Subscribe(context.Background(), caller, 1, perf, 50)
	require.NoError(t, err)
	require.Equal(t, 1, registry.Len())

	_, err = svc.Await(context.Background(), sub)
	assert.ErrorIs(t, err, subscription.ErrStillBelowThreshold)
	assert.Zero(t, registry.Len())
}

func TestService_AwaitCallerGone(t *testing.T) {
	store := storeWithSeats(10, 0)
	registry := subscription.NewRegistry()
	svc := subscription.NewService(store, registry, 0)

	sub, err := svc.Subscribe(context.Background(), caller, 1, perf, 50)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Await(ctx, sub)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, registry.Len())
	assert.False(t, sub.Resolve(domain.Notification{}))
}

func TestService_CloseEndsPendingWaits(t *testing.T) {
	store := storeWithSeats(10, 0)
	registry := subscription.NewRegistry()
	svc := subscription.NewService(store, registry, 0)

	sub, err := svc.Subscribe(context.Background(), caller, 1, perf, 50)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Await(context.Background(), sub)
		errc <- err
	}()

	svc.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, subscription.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Close")
	}
	assert.Zero(t, registry.Len())

	_, err = svc.Subscribe(context.Background(), caller, 1, perf, 50)
	assert.ErrorIs(t, err, subscription.ErrClosed)
}
