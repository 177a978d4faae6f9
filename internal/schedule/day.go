package schedule

import (
	"math"
	"time"

	"taller/internal/model"
)

// Status colors a calendar cell.
type Status string

const (
	StatusHigh    Status = "high"
	StatusMedium  Status = "medium"
	StatusLow     Status = "low"
	StatusBlocked Status = "blocked"
)

const (
	lowAvailabilityAbove    = 80.0
	mediumAvailabilityAbove = 50.0
)

// DayAvailability is the calendar heat-map aggregate for one date. Slot
// counts are bay-turns: slots in the day times simultaneous services.
type DayAvailability struct {
	Date                string  `json:"date"`
	Status              Status  `json:"status"`
	AvailableSlots      int     `json:"available_slots"`
	TotalSlots          int     `json:"total_slots"`
	OccupiedSlots       int     `json:"occupied_slots"`
	OccupancyPercentage float64 `json:"occupancy_percentage"`
	Reason              string  `json:"reason,omitempty"`
}

// CalculateDayAvailability aggregates occupancy for date. The total is every
// turn of the working window times the bays; a partial block does not shrink
// it, but a partial block covering every turn reports the day as blocked. It
// is a display aid only; CanBook decides bookings.
func CalculateDayAvailability(date time.Time, sched Schedule, block *Block, appointments []model.Appointment, turnMinutes int) DayAvailability {
	day := DayAvailability{Date: DateKey(date), Status: StatusBlocked}

	if sched.Closed {
		day.Reason = sched.Reason
		return day
	}
	if block != nil && block.FullDay {
		day.Reason = block.Reason
		return day
	}
	if turnMinutes <= 0 {
		return day
	}

	turns := sched.WorkingMinutes() / turnMinutes
	open := 0
	for i := 0; i < turns; i++ {
		if !block.Covers(sched.Open.Add(i * turnMinutes)) {
			open++
		}
	}
	if open == 0 {
		if block != nil {
			day.Reason = block.Reason
		}
		return day
	}

	total := turns * sched.MaxSimultaneous

	key := DateKey(date)
	occupied := 0
	for i := range appointments {
		a := &appointments[i]
		if !a.IsActive() || DateKey(a.DateTime.In(date.Location())) != key {
			continue
		}
		occupied += RequiredSlots(a.DurationMinutes, turnMinutes)
	}

	occupancy := 100 * float64(occupied) / float64(total)

	day.TotalSlots = total
	day.OccupiedSlots = occupied
	day.AvailableSlots = max(0, total-occupied)
	day.OccupancyPercentage = math.Round(occupancy*100) / 100

	switch {
	case occupancy > lowAvailabilityAbove:
		day.Status = StatusLow
	case occupancy > mediumAvailabilityAbove:
		day.Status = StatusMedium
	default:
		day.Status = StatusHigh
	}
	if block != nil {
		day.Reason = block.Reason
	}

	return day
}

// Availability aggregates the planned day.
func (d Day) Availability(appointments []model.Appointment, turnMinutes int) DayAvailability {
	return CalculateDayAvailability(d.Date, d.Schedule, d.Block, appointments, turnMinutes)
}
