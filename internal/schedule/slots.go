package schedule

import (
	"time"

	"taller/internal/model"
)

// Occupant summarizes an appointment holding a bay during a slot.
type Occupant struct {
	AppointmentID string                  `json:"appointment_id"`
	ServiceName   string                  `json:"service_name,omitempty"`
	Start         Clock                   `json:"start"`
	End           Clock                   `json:"end"`
	Status        model.AppointmentStatus `json:"status"`
}

// TimeSlot is one turn of a working day.
type TimeSlot struct {
	Time              Clock      `json:"time"`
	AvailableCapacity int        `json:"available_capacity"`
	Blocked           bool       `json:"is_blocked"`
	BlockReason       string     `json:"block_reason,omitempty"`
	Occupants         []Occupant `json:"occupying_appointments"`
}

// GenerateSlots enumerates the turns of date from open to close.
// A slot is emitted only when the whole turn fits before closing time.
// An appointment occupies every slot whose [t, t+turn) window its
// [start, end) interval overlaps, not only the slots whose start time t it
// contains. The two agree for appointments on the turn grid; an off-grid
// appointment (left over from an earlier turn duration) also holds the slot
// it starts in. Cancelled appointments occupy nothing.
func GenerateSlots(date time.Time, sched Schedule, block *Block, appointments []model.Appointment, turnMinutes int) []TimeSlot {
	if sched.Closed || turnMinutes <= 0 {
		return []TimeSlot{}
	}

	turn := time.Duration(turnMinutes) * time.Minute
	slots := make([]TimeSlot, 0, sched.WorkingMinutes()/turnMinutes)

	for t := sched.Open; t.Add(turnMinutes) <= sched.Close; t = t.Add(turnMinutes) {
		slot := TimeSlot{Time: t, Occupants: []Occupant{}}
		if block.Covers(t) {
			slot.Blocked = true
			slot.BlockReason = block.Reason
		}

		slotStart := t.On(date)
		slotEnd := slotStart.Add(turn)
		for i := range appointments {
			a := &appointments[i]
			if !a.IsActive() {
				continue
			}
			start, end := occupiedWindow(a, turnMinutes)
			if !start.Before(slotEnd) || !slotStart.Before(end) {
				continue
			}
			slot.Occupants = append(slot.Occupants, Occupant{
				AppointmentID: a.ID,
				ServiceName:   a.ServiceName,
				Start:         ClockOf(start.In(date.Location())),
				End:           ClockOf(end.In(date.Location())),
				Status:        a.Status,
			})
		}

		if !slot.Blocked {
			slot.AvailableCapacity = max(0, sched.MaxSimultaneous-len(slot.Occupants))
		}
		slots = append(slots, slot)
	}

	return slots
}

// occupiedWindow returns the interval an appointment holds. A missing
// duration is charged as a single turn.
func occupiedWindow(a *model.Appointment, turnMinutes int) (time.Time, time.Time) {
	minutes := a.DurationMinutes
	if minutes <= 0 {
		minutes = turnMinutes
	}
	return a.DateTime, a.DateTime.Add(time.Duration(minutes) * time.Minute)
}

// RequiredSlots is ceil(serviceMinutes / turnMinutes), at least one.
func RequiredSlots(serviceMinutes, turnMinutes int) int {
	if turnMinutes <= 0 {
		return 0
	}
	if serviceMinutes <= 0 {
		return 1
	}
	return (serviceMinutes + turnMinutes - 1) / turnMinutes
}

// CanBook checks that a service of serviceMinutes starting at start fits in
// consecutive open slots. It fails closed: an unknown start, running past the
// last slot, a blocked slot or a full slot all make it unbookable.
func CanBook(slots []TimeSlot, start Clock, turnMinutes, serviceMinutes int) bool {
	required := RequiredSlots(serviceMinutes, turnMinutes)
	if required <= 0 {
		return false
	}

	startIdx := -1
	for i, s := range slots {
		if s.Time == start {
			startIdx = i
			break
		}
	}
	if startIdx < 0 || startIdx+required > len(slots) {
		return false
	}

	for i := 0; i < required; i++ {
		idx := startIdx + i
		if slots[idx].Blocked || slots[idx].AvailableCapacity <= 0 {
			return false
		}
		if i > 0 && slots[idx].Time != slots[idx-1].Time.Add(turnMinutes) {
			return false
		}
	}

	return true
}

// BookableStarts lists every slot time at which CanBook holds.
func BookableStarts(slots []TimeSlot, turnMinutes, serviceMinutes int) []Clock {
	starts := make([]Clock, 0, len(slots))
	for _, s := range slots {
		if CanBook(slots, s.Time, turnMinutes, serviceMinutes) {
			starts = append(starts, s.Time)
		}
	}
	return starts
}

// Day bundles everything resolved for one calendar date.
type Day struct {
	Date     time.Time  `json:"-"`
	Schedule Schedule   `json:"schedule"`
	Block    *Block     `json:"block,omitempty"`
	Slots    []TimeSlot `json:"slots"`
}

// PlanDay resolves hours and blocks for date and enumerates its slots.
func PlanDay(date time.Time, hours []model.OperatingHours, blocked []model.BlockedDate, appointments []model.Appointment, turnMinutes int) Day {
	sched := ResolveSchedule(date, hours)
	block := ResolveBlock(date, blocked)
	return Day{
		Date:     date,
		Schedule: sched,
		Block:    block,
		Slots:    GenerateSlots(date, sched, block, appointments, turnMinutes),
	}
}

// CanBook checks the day's slots for a service starting at start.
func (d Day) CanBook(start Clock, turnMinutes, serviceMinutes int) bool {
	return CanBook(d.Slots, start, turnMinutes, serviceMinutes)
}
