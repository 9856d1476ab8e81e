package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewBooking snapshots seats as booked for the given performance. The caller
// must hold the exclusive lock on every seat passed in.
func NewBooking(concertID int64, date time.Time, seats []Seat, userID int64, now time.Time) Booking {
	snapshot := make([]Seat, len(seats))
	for i, s := range seats {
		s.Booked = true
		s.Date = date
		snapshot[i] = s
	}
	return Booking{
		ID:        uuid.New(),
		ConcertID: concertID,
		Date:      date,
		Seats:     snapshot,
		UserID:    userID,
		CreatedAt: now,
	}
}

// SeatLabels returns the labels of the booked seats in booking order.
func (b Booking) SeatLabels() []string {
	labels := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		labels[i] = s.Label
	}
	return labels
}
