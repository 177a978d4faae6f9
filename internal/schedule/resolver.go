package schedule

import (
	"time"

	"taller/internal/model"
)

const (
	ReasonNonWorkingDay = "non-working day"
	ReasonInvalidHours  = "invalid operating hours"
)

// Schedule is the effective working window for one date. A zero-capacity
// or inverted window never leaves ResolveSchedule; those days come back Closed.
type Schedule struct {
	Closed          bool   `json:"closed"`
	Reason          string `json:"reason,omitempty"`
	Open            Clock  `json:"open_time"`
	Close           Clock  `json:"close_time"`
	MaxSimultaneous int    `json:"max_simultaneous_services"`
}

// ClosedDay returns a closed schedule with the given reason.
func ClosedDay(reason string) Schedule {
	return Schedule{Closed: true, Reason: reason}
}

// WorkingMinutes returns the length of the open window.
func (s Schedule) WorkingMinutes() int {
	if s.Closed || s.Close <= s.Open {
		return 0
	}
	return int(s.Close - s.Open)
}

// ResolveSchedule maps date to its weekly operating-hours row.
// A missing row is treated as a closed day.
func ResolveSchedule(date time.Time, hours []model.OperatingHours) Schedule {
	weekday := ISOWeekday(date)

	for _, h := range hours {
		if h.Weekday != weekday {
			continue
		}
		if !h.IsWorkingDay {
			return ClosedDay(ReasonNonWorkingDay)
		}

		open, err := ParseClock(h.OpenTime)
		if err != nil {
			return ClosedDay(ReasonInvalidHours)
		}
		closing, err := ParseClock(h.CloseTime)
		if err != nil || closing <= open {
			return ClosedDay(ReasonInvalidHours)
		}

		capacity := h.MaxSimultaneousServices
		if capacity < 1 {
			capacity = 1
		}
		return Schedule{Open: open, Close: closing, MaxSimultaneous: capacity}
	}

	return ClosedDay(ReasonNonWorkingDay)
}

// Block is a full-day or partial-day closure for a specific date.
type Block struct {
	FullDay bool   `json:"is_full_day"`
	Start   Clock  `json:"start_time"`
	End     Clock  `json:"end_time"`
	Reason  string `json:"reason"`
}

// Covers reports whether a slot starting at t falls inside the block.
// Partial blocks include both endpoints.
func (b *Block) Covers(t Clock) bool {
	if b == nil {
		return false
	}
	if b.FullDay {
		return true
	}
	return t >= b.Start && t <= b.End
}

// ResolveBlock returns the first block registered for the calendar day of date, or nil.
// A partial block with unreadable or inverted times closes the whole day.
func ResolveBlock(date time.Time, blocked []model.BlockedDate) *Block {
	key := DateKey(date)

	for _, b := range blocked {
		if b.Date != key {
			continue
		}
		if b.IsFullDay {
			return &Block{FullDay: true, Reason: b.Reason}
		}

		start, errStart := ParseClock(b.StartTime)
		end, errEnd := ParseClock(b.EndTime)
		if errStart != nil || errEnd != nil || start >= end {
			return &Block{FullDay: true, Reason: b.Reason}
		}
		return &Block{Start: start, End: end, Reason: b.Reason}
	}

	return nil
}
