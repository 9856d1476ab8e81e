// Package memory is an in-process inventory. Each seat row carries its own RW lock;
// a transaction acquires the locks it needs in label order and holds them until it
// ends, which gives the same blocking behavior as SELECT ... FOR UPDATE / FOR SHARE.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
)

type seatRow struct {
	mu   sync.RWMutex
	seat domain.Seat
}

type Store struct {
	mu       sync.RWMutex
	seats    map[string]map[string]*seatRow
	bookings map[uuid.UUID]domain.Booking
	concerts   map[int64]domain.Concert
	performers map[int64]domain.Performer
	outbox   []domain.Booking
}

func NewStore() *Store {
	return &Store{
		seats:    make(map[string]map[string]*seatRow),
		bookings: make(map[uuid.UUID]domain.Booking),
		concerts:   make(map[int64]domain.Concert),
		performers: make(map[int64]domain.Performer),
	}
}

func dateKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type lockMode int

const (
	shared lockMode = iota + 1
	exclusive
)

type tx struct {
	held     map[*seatRow]lockMode
	order    []*seatRow
	booked   []*seatRow
	bookings []domain.Booking
	events   []domain.Booking
}

type txKey struct{}

func txFromContext(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// WithTx runs fn with a transaction in its context. Writes are applied on success
// while the exclusive locks are still held; on error they are discarded.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{held: make(map[*seatRow]lockMode)}
	defer t.release()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	for _, row := range t.booked {
		row.seat.Booked = true
	}
	if len(t.bookings) == 0 && len(t.events) == 0 {
		return
	}
	s.mu.Lock()
	for _, b := range t.bookings {
		s.bookings[b.ID] = b
	}
	s.outbox = append(s.outbox, t.events...)
	s.mu.Unlock()
}

func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		row := t.order[i]
		if t.held[row] == exclusive {
			row.mu.Unlock()
		} else {
			row.mu.RUnlock()
		}
	}
	t.order = nil
}

func (t *tx) acquire(row *seatRow, mode lockMode) error {
	switch t.held[row] {
	case exclusive:
		return nil
	case shared:
		if mode == exclusive {
			return errors.Newf("seat %s: cannot upgrade shared lock", row.seat.Label)
		}
		return nil
	}
	if mode == exclusive {
		row.mu.Lock()
	} else {
		row.mu.RLock()
	}
	t.held[row] = mode
	t.order = append(t.order, row)
	return nil
}

// rows returns the rows of date, restricted to labels when given, in label order.
func (s *Store) rows(date time.Time, labels []string) []*seatRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLabel := s.seats[dateKey(date)]
	var out []*seatRow
	if labels == nil {
		out = make([]*seatRow, 0, len(byLabel))
		for _, row := range byLabel {
			out = append(out, row)
		}
	} else {
		for _, l := range labels {
			if row, ok := byLabel[l]; ok {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seat.Label < out[j].seat.Label })
	return out
}

func (s *Store) FindSeatsForUpdate(ctx context.Context, date time.Time, labels []string) ([]domain.Seat, error) {
	t := txFromContext(ctx)
	if t == nil {
		return nil, errors.New("find seats for update: no transaction")
	}
	if labels == nil {
		labels = []string{}
	}
	return s.lockRows(t, s.rows(date, labels), exclusive)
}

func (s *Store) FindSeatsForRead(ctx context.Context, date time.Time) ([]domain.Seat, error) {
	if t := txFromContext(ctx); t != nil {
		return s.lockRows(t, s.rows(date, nil), shared)
	}
	var seats []domain.Seat
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		seats, err = s.lockRows(txFromContext(txCtx), s.rows(date, nil), shared)
		return err
	})
	return seats, err
}

func (s *Store) lockRows(t *tx, rows []*seatRow, mode lockMode) ([]domain.Seat, error) {
	seats := make([]domain.Seat, 0, len(rows))
	for _, row := range rows {
		if err := t.acquire(row, mode); err != nil {
			return nil, err
		}
		seats = append(seats, row.seat)
	}
	return seats, nil
}

func (s *Store) MarkSeatsBooked(ctx context.Context, date time.Time, labels []string) error {
	t := txFromContext(ctx)
	if t == nil {
		return errors.New("mark seats booked: no transaction")
	}
	rows := s.rows(date, labels)
	if len(rows) != len(labels) {
		return errors.Wrap(domain.ErrNotFound, "mark seats booked")
	}
	for _, row := range rows {
		if t.held[row] != exclusive {
			return errors.Newf("mark seats booked: seat %s not locked for update", row.seat.Label)
		}
		t.booked = append(t.booked, row)
	}
	return nil
}

func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) error {
	if t := txFromContext(ctx); t != nil {
		t.bookings = append(t.bookings, b)
		return nil
	}
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *Store) RecordBookingCreated(ctx context.Context, b domain.Booking) error {
	t := txFromContext(ctx)
	if t == nil {
		return errors.New("record booking created: no transaction")
	}
	t.events = append(t.events, b)
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b, nil
}

func (s *Store) ListBookingsByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindConcert(ctx context.Context, id int64) (domain.Concert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concerts[id]
	if !ok {
		return domain.Concert{}, errors.Wrapf(domain.ErrNotFound, "concert %d", id)
	}
	return c, nil
}

func (s *Store) ListConcerts(ctx context.Context) ([]domain.Concert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Concert, 0, len(s.concerts))
	for _, c := range s.concerts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddConcert(c domain.Concert) {
	s.mu.Lock()
	s.concerts[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) FindPerformer(ctx context.Context, id int64) (domain.Performer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.performers[id]
	if !ok {
		return domain.Performer{}, errors.Wrapf(domain.ErrNotFound, "performer %d", id)
	}
	return p, nil
}

func (s *Store) ListPerformers(ctx context.Context) ([]domain.Performer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Performer, 0, len(s.performers))
	for _, p := range s.performers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddPerformer(p domain.Performer) {
	s.mu.Lock()
	s.performers[p.ID] = p
	s.mu.Unlock()
}

// AddSeats seeds seats; an existing (date, label) row is left untouched.
func (s *Store) AddSeats(seats ...domain.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range seats {
		key := dateKey(seat.Date)
		byLabel, ok := s.seats[key]
		if !ok {
			byLabel = make(map[string]*seatRow)
			s.seats[key] = byLabel
		}
		if _, exists := byLabel[seat.Label]; exists {
			continue
		}
		byLabel[seat.Label] = &seatRow{seat: seat}
	}
}

// Outbox returns the bookings recorded by committed transactions, oldest first.
func (s *Store) Outbox() []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Booking(nil), s.outbox...)
}
