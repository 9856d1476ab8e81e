package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Concert struct {
	ID           int64
	Title        string
	ImageName    string
	Blurb        string
	Dates        []time.Time
	PerformerIDs []int64
}

// HasDate reports whether date is one of the concert's scheduled performances.
func (c Concert) HasDate(date time.Time) bool {
	for _, d := range c.Dates {
		if d.Equal(date) {
			return true
		}
	}
	return false
}

type Performer struct {
	ID        int64
	Name      string
	ImageName string
	Genre     string
	Blurb     string
}

// Seat is keyed by Label within a single performance Date.
type Seat struct {
	Label  string
	Price  decimal.Decimal
	Booked bool
	Date   time.Time
}

type Booking struct {
	ID        uuid.UUID
	ConcertID int64
	Date      time.Time
	Seats     []Seat
	UserID    int64
	CreatedAt time.Time
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
}
