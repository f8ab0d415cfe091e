package importer

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
)

// Cell is a raw spreadsheet value. In JSON it accepts strings, numbers,
// booleans and null.
type Cell string

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cell(s)
	default:
		*c = Cell(data)
	}
	return nil
}

// Row is one candidate booking as uploaded.
type Row struct {
	StartDate       Cell `json:"start_date"`
	EndDate         Cell `json:"end_date"`
	Status          Cell `json:"status,omitempty"`
	GuestName       Cell `json:"guest_name,omitempty"`
	GuestEmail      Cell `json:"guest_email,omitempty"`
	Phone           Cell `json:"phone,omitempty"`
	Contact         Cell `json:"contact,omitempty"`
	Notes           Cell `json:"notes,omitempty"`
	GuestsCount     Cell `json:"guests_count,omitempty"`
	ChildrenCount   Cell `json:"children_count,omitempty"`
	DogsCount       Cell `json:"dogs_count,omitempty"`
	VehicleReg      Cell `json:"vehicle_reg,omitempty"`
	Price           Cell `json:"price,omitempty"`
	SpecialRequests Cell `json:"special_requests,omitempty"`

	// Line is the 1-based data row in the uploaded file, blank rows
	// included. Zero for rows that were not read from a file.
	Line int `json:"-"`
}

// number is how errors refer to the row at index i of a batch.
func (r *Row) number(i int) int {
	if r.Line > 0 {
		return r.Line
	}
	return i + 1
}

var (
	zeroWidth  = regexp.MustCompile("[\u200B-\u200D\uFEFF]")
	oddSpaces  = regexp.MustCompile(`[\p{Zs}\t\f\v]+`)
	nonDate    = regexp.MustCompile(`[^0-9-]`)
	isoDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	moneyNoise = regexp.MustCompile(`[,£$]`)
)

// cleanString strips zero-width characters pasted in by mobile browsers and
// collapses runs of spaces, keeping line breaks.
func cleanString(c Cell) string {
	s := zeroWidth.ReplaceAllString(string(c), "")
	s = oddSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// cleanDate keeps digits and hyphens and requires a real YYYY-MM-DD date.
func cleanDate(c Cell) (dates.Date, bool) {
	s := nonDate.ReplaceAllString(cleanString(c), "")
	if !isoDate.MatchString(s) {
		return dates.Date{}, false
	}
	d, err := dates.ParseDate(s)
	if err != nil {
		return dates.Date{}, false
	}
	return d, true
}

// cleanNumber drops thousands separators and currency symbols; anything that
// is still not a finite number is treated as absent.
func cleanNumber(c Cell) *float64 {
	s := moneyNoise.ReplaceAllString(cleanString(c), "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return nil
	}
	return &n
}

func cleanCount(c Cell) *int {
	n := cleanNumber(c)
	if n == nil {
		return nil
	}
	v := int(math.Round(*n))
	return &v
}

// toBooking converts a row into a booking, or returns the reason it cannot be
// imported. Rows default to confirmed unless they say provisional.
func (r Row) toBooking() (booking.Booking, error) {
	start, okStart := cleanDate(r.StartDate)
	end, okEnd := cleanDate(r.EndDate)
	if !okStart || !okEnd {
		return booking.Booking{}, apperr.Invalid("start_date", "invalid date(s). start_date=%q end_date=%q",
			cleanString(r.StartDate), cleanString(r.EndDate))
	}
	iv := dates.NewInterval(start, end)
	if iv.Validate() != nil {
		return booking.Booking{}, apperr.Invalid("end_date", "end_date must be after start_date (%s)", iv)
	}

	status := booking.StatusConfirmed
	if strings.EqualFold(cleanString(r.Status), string(booking.StatusProvisional)) {
		status = booking.StatusProvisional
	}

	return booking.Booking{
		Interval: iv,
		Status:   status,
		Guest: booking.Guest{
			GuestName:       cleanString(r.GuestName),
			GuestEmail:      cleanString(r.GuestEmail),
			Phone:           cleanString(r.Phone),
			Contact:         cleanString(r.Contact),
			Notes:           cleanString(r.Notes),
			GuestsCount:     cleanCount(r.GuestsCount),
			ChildrenCount:   cleanCount(r.ChildrenCount),
			DogsCount:       cleanCount(r.DogsCount),
			VehicleReg:      cleanString(r.VehicleReg),
			SpecialRequests: cleanString(r.SpecialRequests),
		},
		Price: cleanNumber(r.Price),
	}, nil
}
