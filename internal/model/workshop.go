package model

import "time"

const (
	MinTurnDurationMinutes  = 15
	MaxTurnDurationMinutes  = 60
	TurnDurationStepMinutes = 5
)

// WorkshopConfig is the single configuration row of the workshop.
type WorkshopConfig struct {
	ID                  int64     `json:"id"`
	WorkshopID          string    `json:"workshop_id"`
	TurnDurationMinutes int       `json:"turn_duration_minutes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ValidTurnDuration reports whether minutes is within 15..60 in steps of 5.
func ValidTurnDuration(minutes int) bool {
	return minutes >= MinTurnDurationMinutes &&
		minutes <= MaxTurnDurationMinutes &&
		minutes%TurnDurationStepMinutes == 0
}

// OperatingHours is the weekly schedule row for one ISO weekday (1=Mon..7=Sun).
type OperatingHours struct {
	ID                      int64     `json:"id"`
	Weekday                 int       `json:"weekday"`
	IsWorkingDay            bool      `json:"is_working_day"`
	OpenTime                string    `json:"open_time"`
	CloseTime               string    `json:"close_time"`
	MaxSimultaneousServices int       `json:"max_simultaneous_services"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// BlockedDate closes a whole day or a window of it. Date is yyyy-MM-dd.
type BlockedDate struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Reason    string    `json:"reason"`
	IsFullDay bool      `json:"is_full_day"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a catalog entry; its duration drives how many turns a booking spans.
type Service struct {
	ID                       int64     `json:"id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description,omitempty"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
	Price                    float64   `json:"price"`
	IsActive                 bool      `json:"is_active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Vehicle struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	Year      int       `json:"year,omitempty"`
	Plate     string    `json:"plate"`
	CreatedAt time.Time `json:"created_at"`
}

// DaySnapshot is everything a booking transaction reads about one day.
// TurnMinutes is zero when the workshop config row is missing.
type DaySnapshot struct {
	TurnMinutes int
	Hours       []OperatingHours
	Blocked     []BlockedDate
	Active      []Appointment
}
