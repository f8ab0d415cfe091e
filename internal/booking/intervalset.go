package booking

import (
	"slices"
	"sort"

	"holidaylet/internal/dates"
)

// IntervalSet indexes occupied intervals for conflict queries in
// O(log n + k). Entries are kept sorted by start and pairwise disjoint;
// members that overlap on insert share one merged entry, so legacy data that
// already breaks the exclusion rule is still answered exactly. Touching
// intervals stay in separate entries.
type IntervalSet struct {
	entries []setEntry
}

type setEntry struct {
	span    dates.Interval
	members []member
}

type member struct {
	id   int64
	stay dates.Interval
}

func NewIntervalSet() *IntervalSet {
	return &IntervalSet{}
}

// NewIntervalSetFrom indexes bookings, skipping excludeID when it is non-zero.
func NewIntervalSetFrom(bookings []Booking, excludeID int64) *IntervalSet {
	s := &IntervalSet{entries: make([]setEntry, 0, len(bookings))}
	for _, b := range bookings {
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		s.Add(b.ID, b.Interval)
	}
	return s
}

// Len is the number of disjoint entries after merging.
func (s *IntervalSet) Len() int {
	return len(s.entries)
}

// window returns the index range [lo, hi) of entries overlapping iv. Entries
// are disjoint, so starts and ends both ascend and the range is contiguous.
func (s *IntervalSet) window(iv dates.Interval) (lo, hi int) {
	lo = sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].span.End.After(iv.Start)
	})
	hi = lo
	for hi < len(s.entries) && s.entries[hi].span.Start.Before(iv.End) {
		hi++
	}
	return lo, hi
}

// Add records iv for booking id. Empty intervals are ignored.
func (s *IntervalSet) Add(id int64, iv dates.Interval) {
	if iv.Validate() != nil {
		return
	}
	lo, hi := s.window(iv)
	merged := setEntry{span: iv, members: []member{{id: id, stay: iv}}}
	for _, e := range s.entries[lo:hi] {
		if e.span.Start.Before(merged.span.Start) {
			merged.span.Start = e.span.Start
		}
		if e.span.End.After(merged.span.End) {
			merged.span.End = e.span.End
		}
		merged.members = append(merged.members, e.members...)
	}
	s.entries = slices.Replace(s.entries, lo, hi, merged)
}

// Conflicts returns the sorted IDs of recorded intervals overlapping iv.
func (s *IntervalSet) Conflicts(iv dates.Interval) []int64 {
	if iv.Validate() != nil {
		return nil
	}
	lo, hi := s.window(iv)
	var ids []int64
	for _, e := range s.entries[lo:hi] {
		for _, m := range e.members {
			if dates.Overlaps(m.stay, iv) {
				ids = append(ids, m.id)
			}
		}
	}
	slices.Sort(ids)
	return ids
}

// Overlaps reports whether iv shares a night with any recorded interval.
func (s *IntervalSet) Overlaps(iv dates.Interval) bool {
	if iv.Validate() != nil {
		return false
	}
	lo, hi := s.window(iv)
	return lo < hi
}
