package domain

// Occupancy is a point-in-time count of one performance's seats.
type Occupancy struct {
	Total  int
	Booked int
}

func OccupancyOf(seats []Seat) Occupancy {
	o := Occupancy{Total: len(seats)}
	for _, s := range seats {
		if s.Booked {
			o.Booked++
		}
	}
	return o
}

// Percent is the booked share of the performance; 0 when it has no seats.
func (o Occupancy) Percent() float64 {
	if o.Total == 0 {
		return 0
	}
	return float64(o.Booked) / float64(o.Total) * 100
}

// Reaches reports whether at least threshold percent of the seats are booked.
// The comparison is exact; Percent is for display only.
func (o Occupancy) Reaches(threshold int) bool {
	return o.Total > 0 && o.Booked*100 >= threshold*o.Total
}

func (o Occupancy) Remaining() int {
	return o.Total - o.Booked
}

// Notification is delivered to every subscriber whose threshold a booking crossed.
type Notification struct {
	RemainingSeats   int
	PercentageBooked float64
}
