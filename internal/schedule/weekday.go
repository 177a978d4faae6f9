package schedule

import "time"

// Weekdays are stored as ISO numbers. ISOWeekday is the only place a
// time.Weekday (0=Sunday) is converted into that convention.
const (
	Monday    = 1
	Tuesday   = 2
	Wednesday = 3
	Thursday  = 4
	Friday    = 5
	Saturday  = 6
	Sunday    = 7
)

var weekdayNames = map[int]string{
	Monday:    "lunes",
	Tuesday:   "martes",
	Wednesday: "miércoles",
	Thursday:  "jueves",
	Friday:    "viernes",
	Saturday:  "sábado",
	Sunday:    "domingo",
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	day := int(t.Weekday())
	if day == 0 {
		return Sunday
	}
	return day
}

// ValidWeekday reports whether d is in 1..7.
func ValidWeekday(d int) bool {
	return d >= Monday && d <= Sunday
}

// WeekdayName returns the Spanish weekday name used in reports.
func WeekdayName(d int) string {
	return weekdayNames[d]
}
