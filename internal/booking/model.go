// Package booking implements the booking lifecycle: creation, owner
// decisions, edits and the overlap gate that keeps confirmed stays disjoint.
package booking

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"holidaylet/internal/dates"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusProvisional Status = "provisional"
	StatusConfirmed   Status = "confirmed"
	StatusDeclined    Status = "declined"
)

// ParseStatus accepts only the three known statuses.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusProvisional, StatusConfirmed, StatusDeclined:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusProvisional: {StatusConfirmed, StatusDeclined},
	StatusConfirmed:   {StatusDeclined},
	StatusDeclined:    {},
}

// CanTransition checks if transition is allowed.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Guest is the contact and party metadata of a booking.
type Guest struct {
	GuestName       string `json:"guest_name,omitempty"`
	GuestEmail      string `json:"guest_email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Contact         string `json:"contact,omitempty"`
	Notes           string `json:"notes,omitempty"`
	GuestsCount     *int   `json:"guests_count,omitempty"`
	ChildrenCount   *int   `json:"children_count,omitempty"`
	DogsCount       *int   `json:"dogs_count,omitempty"`
	VehicleReg      string `json:"vehicle_reg,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// Booking is a stay over the embedded half-open interval.
type Booking struct {
	ID int64 `json:"id"`
	dates.Interval
	Status Status `json:"status"`
	Guest
	Price     *float64   `json:"price,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Version   int64      `json:"version"`
}

// Draft is a booking to be created.
type Draft struct {
	Stay dates.Interval
	// Status is optional; the zero value lets Create pick the default for
	// the actor.
	Status Status
	Guest  Guest
	Price  *float64
}

// Patch is an owner edit. Nil fields are left unchanged.
type Patch struct {
	Start  *dates.Date
	End    *dates.Date
	Status *Status
	Guest  *GuestPatch
	Price  *float64
}

// GuestPatch edits single guest fields. It is merged over the stored guest
// details under the writer lock, so edits to different fields do not
// overwrite each other.
type GuestPatch struct {
	GuestName       *string `json:"guest_name,omitempty"`
	GuestEmail      *string `json:"guest_email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Contact         *string `json:"contact,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	GuestsCount     *int    `json:"guests_count,omitempty"`
	ChildrenCount   *int    `json:"children_count,omitempty"`
	DogsCount       *int    `json:"dogs_count,omitempty"`
	VehicleReg      *string `json:"vehicle_reg,omitempty"`
	SpecialRequests *string `json:"special_requests,omitempty"`
}

func (g GuestPatch) Empty() bool {
	return g == GuestPatch{}
}

func (g GuestPatch) apply(cur Guest) Guest {
	setString(&cur.GuestName, g.GuestName)
	setString(&cur.GuestEmail, g.GuestEmail)
	setString(&cur.Phone, g.Phone)
	setString(&cur.Contact, g.Contact)
	setString(&cur.Notes, g.Notes)
	setString(&cur.VehicleReg, g.VehicleReg)
	setString(&cur.SpecialRequests, g.SpecialRequests)
	if g.GuestsCount != nil {
		cur.GuestsCount = g.GuestsCount
	}
	if g.ChildrenCount != nil {
		cur.ChildrenCount = g.ChildrenCount
	}
	if g.DogsCount != nil {
		cur.DogsCount = g.DogsCount
	}
	return cur
}

func setString(dst, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Start == nil && p.End == nil && p.Status == nil && (p.Guest == nil || p.Guest.Empty()) && p.Price == nil
}

// apply returns a copy of b with p applied.
func (p Patch) apply(b Booking) Booking {
	if p.Start != nil {
		b.Start = *p.Start
	}
	if p.End != nil {
		b.End = *p.End
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Guest != nil {
		b.Guest = p.Guest.apply(b.Guest)
	}
	if p.Price != nil {
		price := *p.Price
		b.Price = &price
	}
	return b
}
