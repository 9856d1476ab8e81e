package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// LocalDateTime is the wire format for performance dates.
const LocalDateTime = "2006-01-02T15:04:05"

// Date accepts LocalDateTime (read as UTC) or RFC 3339 and always writes LocalDateTime.
type Date struct {
	time.Time
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(LocalDateTime, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(domain.ErrInvalidRequest, "bad date %q", s)
	}
	return t.UTC(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(LocalDateTime))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(domain.ErrInvalidRequest, "date must be a string")
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type credentialsDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type concertDTO struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	ImageName    string  `json:"imageName"`
	Blurb        string  `json:"blurb"`
	Dates        []Date  `json:"dates"`
	PerformerIDs []int64 `json:"performerIds"`
}

func toConcertDTO(c domain.Concert) concertDTO {
	dates := make([]Date, len(c.Dates))
	for i, d := range c.Dates {
		dates[i] = Date{d}
	}
	ids := c.PerformerIDs
	if ids == nil {
		ids = []int64{}
	}
	return concertDTO{ID: c.ID, Title: c.Title, ImageName: c.ImageName, Blurb: c.Blurb, Dates: dates, PerformerIDs: ids}
}

type concertSummaryDTO struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ImageName string `json:"imageName"`
}

type performerDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ImageName string `json:"imageName"`
	Genre     string `json:"genre"`
	Blurb     string `json:"blurb"`
}

func toPerformerDTO(p domain.Performer) performerDTO {
	return performerDTO{ID: p.ID, Name: p.Name, ImageName: p.ImageName, Genre: p.Genre, Blurb: p.Blurb}
}

type seatDTO struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

func toSeatDTOs(seats []domain.Seat) []seatDTO {
	out := make([]seatDTO, len(seats))
	for i, s := range seats {
		out[i] = seatDTO{Label: s.Label, Price: s.Price}
	}
	return out
}

type bookingRequestDTO struct {
	ConcertID  int64    `json:"concertId"`
	Date       Date     `json:"date"`
	SeatLabels []string `json:"seatLabels"`
}

type bookingDTO struct {
	ID        string    `json:"id"`
	ConcertID int64     `json:"concertId"`
	Date      Date      `json:"date"`
	Seats     []seatDTO `json:"seats"`
}

func toBookingDTO(b domain.Booking) bookingDTO {
	return bookingDTO{ID: b.ID.String(), ConcertID: b.ConcertID, Date: Date{b.Date}, Seats: toSeatDTOs(b.Seats)}
}

type subscriptionDTO struct {
	ConcertID        int64 `json:"concertId"`
	Date             Date  `json:"date"`
	PercentageBooked int   `json:"percentageBooked"`
}

type notificationDTO struct {
	NumSeatsRemaining int `json:"numSeatsRemaining"`
}
