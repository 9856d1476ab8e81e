// Package events defines the messages exchanged between service instances over the broker.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
)

const (
	Exchange          = "concert.events"
	BookingCreatedKey = "booking.created"
)

// BookingCreated is written to the outbox by the booking transaction. Origin names the
// instance that already ran the in-process dispatch for it.
type BookingCreated struct {
	BookingID uuid.UUID `json:"booking_id"`
	ConcertID int64     `json:"concert_id"`
	Date      time.Time `json:"date"`
	Seats     []string  `json:"seats"`
	UserID    int64     `json:"user_id"`
	Origin    string    `json:"origin"`
}

func NewBookingCreated(b domain.Booking, origin string) BookingCreated {
	return BookingCreated{
		BookingID: b.ID,
		ConcertID: b.ConcertID,
		Date:      b.Date,
		Seats:     b.SeatLabels(),
		UserID:    b.UserID,
		Origin:    origin,
	}
}
