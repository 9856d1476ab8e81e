package crdb_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/concert-booking/internal/adapters/crdb"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var perf = time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC)

func newRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("cockroach container test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "postgresql")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, endpoint+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrations are idempotent")

	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: 1, Username: "testuser1", PasswordHash: "x"}))
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: 2, Username: "testuser2", PasswordHash: "x"}))
	require.NoError(t, repo.CreateSeats(ctx, []domain.Seat{
		{Label: "A1", Date: perf, Price: decimal.RequireFromString("120.50")},
		{Label: "A2", Date: perf, Price: decimal.RequireFromString("120.50")},
		{Label: "B1", Date: perf, Price: decimal.RequireFromString("80.00")},
	}))
	return repo
}

func book(ctx context.Context, repo *crdb.Repository, userID int64, labels ...string) (domain.Booking, error) {
	var b domain.Booking
	err := repo.WithTx(ctx, func(ctx context.Context) error {
		seats, err := repo.FindSeatsForUpdate(ctx, perf, labels)
		if err != nil {
			return err
		}
		for _, s := range seats {
			if s.Booked {
				return domain.ErrConflict
			}
		}
		if err := repo.MarkSeatsBooked(ctx, perf, labels); err != nil {
			return err
		}
		b = domain.NewBooking(7, perf, seats, userID, time.Now().UTC())
		return repo.CreateBooking(ctx, b)
	})
	return b, err
}

func TestRepository_BookingRoundTrip(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	b, err := book(ctx, repo, 1, "A2", "A1")
	require.NoError(t, err)

	got, err := repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ConcertID)
	assert.True(t, got.Date.Equal(perf))
	assert.Equal(t, []string{"A1", "A2"}, got.SeatLabels())
	assert.True(t, got.Seats[0].Price.Equal(decimal.RequireFromString("120.50")))

	list, err := repo.ListBookingsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	none, err := repo.ListBookingsByUser(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	seats, err := repo.FindSeatsForRead(ctx, perf)
	require.NoError(t, err)
	require.Len(t, seats, 3)
	assert.Equal(t, domain.Occupancy{Total: 3, Booked: 2}, domain.OccupancyOf(seats))
}

func TestRepository_ConcurrentBookingsOfOneSeat(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := book(ctx, repo, user, "B1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			bad = append(bad, err)
		}(int64(i%2 + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range bad {
		assert.True(t,
			errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrSerializationFailure),
			"unexpected error: %v", err)
	}
}

func TestRepository_LockingRequiresTransaction(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.FindSeatsForUpdate(ctx, perf, []string{"A1"})
	assert.Error(t, err)
	assert.Error(t, repo.MarkSeatsBooked(ctx, perf, []string{"A1"}))
}

func TestRepository_UnknownRows(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		seats, err := repo.FindSeatsForUpdate(ctx, perf, []string{"Z9"})
		require.NoError(t, err)
		assert.Empty(t, seats)
		return nil
	})
	require.NoError(t, err)

	_, err = repo.GetUser(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	u, err := repo.FindUserByUsername(ctx, "testuser2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.ID)
}

func TestRepository_OutboxClaimAndPublish(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	outbox := crdb.NewBookingOutbox(repo, "api-1")

	var b domain.Booking
	err := repo.WithTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = book(ctx, repo, 1, "A1")
		if err != nil {
			return err
		}
		return outbox.RecordBookingCreated(ctx, b)
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context) error {
		recs, err := repo.ClaimUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, b.ID, recs[0].AggregateID)
		var ev events.BookingCreated
		require.NoError(t, json.Unmarshal(recs[0].Payload, &ev))
		assert.Equal(t, "api-1", ev.Origin)
		assert.Equal(t, []string{"A1"}, ev.Seats)
		return repo.MarkPublished(ctx, recs[0].ID, time.Now().UTC())
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context) error {
		recs, err := repo.ClaimUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
		return nil
	})
	require.NoError(t, err)
}
