package booking

import (
	"holidaylet/internal/dates"
)

// Occupancy is the day-level view of a window. A day appears in at most one
// list; confirmed days take precedence over provisional ones.
type Occupancy struct {
	Window      dates.Interval `json:"window"`
	Confirmed   []dates.Date   `json:"confirmed"`
	Provisional []dates.Date   `json:"provisional"`
}

// DaySets expands bookings into occupied days inside window. Declined
// bookings are ignored.
func DaySets(bookings []Booking, window dates.Interval) Occupancy {
	confirmed := make(map[dates.Date]bool)
	provisional := make(map[dates.Date]bool)
	for _, b := range bookings {
		part, ok := b.Intersect(window)
		if !ok {
			continue
		}
		var set map[dates.Date]bool
		switch b.Status {
		case StatusConfirmed:
			set = confirmed
		case StatusProvisional:
			set = provisional
		default:
			continue
		}
		for d := range dates.EachDay(part) {
			set[d] = true
		}
	}

	occ := Occupancy{Window: window, Confirmed: []dates.Date{}, Provisional: []dates.Date{}}
	for d := range dates.EachDay(window) {
		switch {
		case confirmed[d]:
			occ.Confirmed = append(occ.Confirmed, d)
		case provisional[d]:
			occ.Provisional = append(occ.Provisional, d)
		}
	}
	return occ
}
