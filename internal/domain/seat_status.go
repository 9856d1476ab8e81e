package domain

import "github.com/cockroachdb/errors"

type SeatStatus string

const (
	SeatStatusAny      SeatStatus = "Any"
	SeatStatusBooked   SeatStatus = "Booked"
	SeatStatusUnbooked SeatStatus = "Unbooked"
)

func ParseSeatStatus(s string) (SeatStatus, error) {
	switch SeatStatus(s) {
	case "", SeatStatusAny:
		return SeatStatusAny, nil
	case SeatStatusBooked, SeatStatusUnbooked:
		return SeatStatus(s), nil
	}
	return "", errors.Wrapf(ErrInvalidRequest, "unknown seat status %q", s)
}

func (st SeatStatus) Matches(seat Seat) bool {
	switch st {
	case SeatStatusBooked:
		return seat.Booked
	case SeatStatusUnbooked:
		return !seat.Booked
	}
	return true
}
