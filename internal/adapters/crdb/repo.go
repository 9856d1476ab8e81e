package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository stores seats, bookings, users and the outbox in CockroachDB.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *Repository) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const seatColumns = `label, price::STRING, is_booked, date`

func (r *Repository) FindSeatsForUpdate(ctx context.Context, date time.Time, labels []string) ([]domain.Seat, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, errors.New("find seats for update: no transaction")
	}
	rows, err := tx.Query(ctx, `
		SELECT `+seatColumns+` FROM seats
		WHERE date = $1 AND label = ANY($2)
		ORDER BY label FOR UPDATE
	`, utc(date), labels)
	if err != nil {
		return nil, errors.Wrap(err, "select seats for update")
	}
	return scanSeats(rows)
}

// FindSeatsForRead takes FOR SHARE locks, so it waits behind an in-flight booking.
func (r *Repository) FindSeatsForRead(ctx context.Context, date time.Time) ([]domain.Seat, error) {
	var seats []domain.Seat
	err := r.WithTx(ctx, func(ctx context.Context) error {
		rows, err := r.q(ctx).Query(ctx, `
			SELECT `+seatColumns+` FROM seats
			WHERE date = $1
			ORDER BY label FOR SHARE
		`, utc(date))
		if err != nil {
			return errors.Wrap(err, "select seats for share")
		}
		seats, err = scanSeats(rows)
		return err
	})
	return seats, err
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()
	var seats []domain.Seat
	for rows.Next() {
		var (
			s     domain.Seat
			price string
		)
		if err := rows.Scan(&s.Label, &price, &s.Booked, &s.Date); err != nil {
			return nil, errors.Wrap(err, "scan seat")
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, errors.Wrapf(err, "seat %s price", s.Label)
		}
		s.Price = p
		s.Date = s.Date.UTC()
		seats = append(seats, s)
	}
	return seats, errors.Wrap(rows.Err(), "iterate seats")
}

func (r *Repository) MarkSeatsBooked(ctx context.Context, date time.Time, labels []string) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return errors.New("mark seats booked: no transaction")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE seats SET is_booked = true
		WHERE date = $1 AND label = ANY($2) AND NOT is_booked
	`, utc(date), labels)
	if err != nil {
		return errors.Wrap(err, "update seats")
	}
	if tag.RowsAffected() != int64(len(labels)) {
		return errors.Wrapf(domain.ErrConflict, "marked %d of %d seats", tag.RowsAffected(), len(labels))
	}
	return nil
}

// CreateSeats seeds seats. Existing (date, label) rows are left untouched.
func (r *Repository) CreateSeats(ctx context.Context, seats []domain.Seat) error {
	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(`
			INSERT INTO seats (label, date, price, is_booked)
			VALUES ($1, $2, $3::DECIMAL, $4)
			ON CONFLICT (date, label) DO NOTHING
		`, s.Label, utc(s.Date), s.Price.String(), s.Booked)
	}
	return errors.Wrap(r.q(ctx).SendBatch(ctx, batch).Close(), "insert seats")
}

func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO bookings (id, concert_id, date, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.ConcertID, utc(b.Date), b.UserID, b.CreatedAt); err != nil {
		return mapError(errors.Wrap(err, "insert booking"))
	}

	// One statement per seat on the same connection; a tx cannot run them concurrently.
	batch := &pgx.Batch{}
	for i, s := range b.Seats {
		batch.Queue(`
			INSERT INTO booking_seats (booking_id, position, label, date, price)
			VALUES ($1, $2, $3, $4, $5::DECIMAL)
		`, b.ID, i, s.Label, utc(b.Date), s.Price.String())
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(errors.Wrap(err, "insert booking seats"))
	}
	return nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, concert_id, date, user_id, created_at FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.ConcertID, &b.Date, &b.UserID, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	if err != nil {
		return domain.Booking{}, errors.Wrap(err, "select booking")
	}
	b.Date = b.Date.UTC()

	seats, err := r.bookingSeats(ctx, []uuid.UUID{b.ID})
	if err != nil {
		return domain.Booking{}, err
	}
	b.Seats = seats[b.ID]
	return b, nil
}

func (r *Repository) ListBookingsByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, concert_id, date, user_id, created_at FROM bookings
		WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select bookings")
	}
	defer rows.Close()

	var (
		bookings []domain.Booking
		ids      []uuid.UUID
	)
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.ConcertID, &b.Date, &b.UserID, &b.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan booking")
		}
		b.Date = b.Date.UTC()
		bookings = append(bookings, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate bookings")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seats, err := r.bookingSeats(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Seats = seats[bookings[i].ID]
	}
	return bookings, nil
}

func (r *Repository) bookingSeats(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]domain.Seat, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT booking_id, label, price::STRING, date FROM booking_seats
		WHERE booking_id = ANY($1) ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select booking seats")
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Seat, len(ids))
	for rows.Next() {
		var (
			id    uuid.UUID
			s     domain.Seat
			price string
		)
		if err := rows.Scan(&id, &s.Label, &price, &s.Date); err != nil {
			return nil, errors.Wrap(err, "scan booking seat")
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, errors.Wrapf(err, "booking seat %s price", s.Label)
		}
		s.Price = p
		s.Date = s.Date.UTC()
		s.Booked = true
		out[id] = append(out[id], s)
	}
	return out, errors.Wrap(rows.Err(), "iterate booking seats")
}
