package memory

import (
	"context"
	"testing"
	"time"

	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC)

func seededStore() *Store {
	s := NewStore()
	s.AddSeats(
		domain.Seat{Label: "B1", Date: day},
		domain.Seat{Label: "A1", Date: day},
		domain.Seat{Label: "A2", Date: day},
	)
	return s
}

func TestFindSeatsForUpdate_RequiresTransaction(t *testing.T) {
	s := seededStore()
	_, err := s.FindSeatsForUpdate(context.Background(), day, []string{"A1"})
	assert.Error(t, err)
}

func TestFindSeatsForUpdate_ReturnsMatchesInLabelOrder(t *testing.T) {
	s := seededStore()
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		seats, err := s.FindSeatsForUpdate(ctx, day, []string{"B1", "A1", "C9"})
		require.NoError(t, err)
		require.Len(t, seats, 2)
		assert.Equal(t, "A1", seats[0].Label)
		assert.Equal(t, "B1", seats[1].Label)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_RollbackDiscardsWrites(t *testing.T) {
	s := seededStore()
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.FindSeatsForUpdate(ctx, day, []string{"A1"}); err != nil {
			return err
		}
		require.NoError(t, s.MarkSeatsBooked(ctx, day, []string{"A1"}))
		return domain.ErrConflict
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	seats, err := s.FindSeatsForRead(context.Background(), day)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.False(t, seat.Booked, seat.Label)
	}
}

func TestMarkSeatsBooked_RequiresExclusiveLock(t *testing.T) {
	s := seededStore()
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.FindSeatsForRead(ctx, day); err != nil {
			return err
		}
		return s.MarkSeatsBooked(ctx, day, []string{"A1"})
	})
	assert.Error(t, err)
}

func TestReadBlocksBehindExclusiveLock(t *testing.T) {
	s := seededStore()
	locked := make(chan struct{})
	release := make(chan struct{})
	writerDone := make(chan error, 1)

	go func() {
		writerDone <- s.WithTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.FindSeatsForUpdate(ctx, day, []string{"A2"}); err != nil {
				return err
			}
			if err := s.MarkSeatsBooked(ctx, day, []string{"A2"}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	readDone := make(chan []domain.Seat, 1)
	go func() {
		seats, _ := s.FindSeatsForRead(context.Background(), day)
		readDone <- seats
	}()

	select {
	case <-readDone:
		t.Fatal("reader observed seats while a booking held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-writerDone)

	select {
	case seats := <-readDone:
		require.Len(t, seats, 3)
		assert.True(t, seats[1].Booked, "reader must see the committed booking")
	case <-time.After(time.Second):
		t.Fatal("reader never unblocked")
	}
}

func TestDisjointSetsDoNotBlock(t *testing.T) {
	s := seededStore()
	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.FindSeatsForUpdate(ctx, day, []string{"A1"}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked
	defer close(release)

	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(context.Background(), func(ctx context.Context) error {
			_, err := s.FindSeatsForUpdate(ctx, day, []string{"B1"})
			return err
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("disjoint seat set blocked")
	}
}

func TestFindConcert_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.FindConcert(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPerformers(t *testing.T) {
	s := NewStore()
	s.AddPerformer(domain.Performer{ID: 2, Name: "Kings"})
	s.AddPerformer(domain.Performer{ID: 1, Name: "Pentatonix"})

	p, err := s.FindPerformer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Pentatonix", p.Name)

	_, err = s.FindPerformer(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListPerformers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
}
