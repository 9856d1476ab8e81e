package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancy(t *testing.T) {
	seats := []Seat{{Label: "A1", Booked: true}, {Label: "A2"}, {Label: "A3"}, {Label: "A4", Booked: true}}
	o := OccupancyOf(seats)
	assert.Equal(t, Occupancy{Total: 4, Booked: 2}, o)
	assert.Equal(t, 50.0, o.Percent())
	assert.Equal(t, 2, o.Remaining())

	empty := OccupancyOf(nil)
	assert.Zero(t, empty.Percent())
	assert.Zero(t, empty.Remaining())
}

func TestOccupancy_ReachesExactThresholds(t *testing.T) {
	for total := 1; total <= 200; total++ {
		for booked := 0; booked <= total; booked++ {
			if booked*100%total != 0 {
				continue
			}
			o := Occupancy{Total: total, Booked: booked}
			exact := booked * 100 / total
			assert.True(t, o.Reaches(exact), "%d/%d at %d", booked, total, exact)
			assert.False(t, o.Reaches(exact+1), "%d/%d at %d", booked, total, exact+1)
		}
	}
	assert.False(t, Occupancy{}.Reaches(0), "a performance without seats never reaches a threshold")
}

func TestConcert_HasDate(t *testing.T) {
	perf := time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC)
	c := Concert{Dates: []time.Time{perf}}

	assert.True(t, c.HasDate(perf))
	assert.True(t, c.HasDate(perf.In(time.FixedZone("NZDT", 13*3600))), "same instant in another zone")
	assert.False(t, c.HasDate(perf.Add(time.Minute)))
}

func TestParseSeatStatus(t *testing.T) {
	for in, want := range map[string]SeatStatus{
		"":         SeatStatusAny,
		"Any":      SeatStatusAny,
		"Booked":   SeatStatusBooked,
		"Unbooked": SeatStatusUnbooked,
	} {
		got, err := ParseSeatStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseSeatStatus("booked")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	booked, free := Seat{Booked: true}, Seat{}
	assert.True(t, SeatStatusBooked.Matches(booked))
	assert.False(t, SeatStatusBooked.Matches(free))
	assert.True(t, SeatStatusUnbooked.Matches(free))
	assert.True(t, SeatStatusAny.Matches(booked))
}

func TestNewBooking_SnapshotsSeats(t *testing.T) {
	perf := time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC)
	seats := []Seat{{Label: "B2"}, {Label: "B1"}}

	b := NewBooking(7, perf, seats, 3, perf)
	assert.Equal(t, []string{"B2", "B1"}, b.SeatLabels())
	assert.True(t, b.Seats[0].Booked)
	assert.False(t, seats[0].Booked, "input is not mutated")
	assert.NotEqual(t, b.ID, NewBooking(7, perf, seats, 3, perf).ID)
}
