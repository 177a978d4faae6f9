package model

import "time"

type Appointment struct {
	ID              string            `json:"id"`
	ClientID        int64             `json:"client_id"`
	VehicleID       int64             `json:"vehicle_id"`
	ServiceID       int64             `json:"service_id"`
	ServiceName     string            `json:"service_name,omitempty"`
	DurationMinutes int               `json:"duration_minutes"`
	DateTime        time.Time         `json:"date_time"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// End returns the time the service is expected to finish.
func (a *Appointment) End() time.Time {
	return a.DateTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// IsActive reports whether the appointment still holds capacity.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// Date returns the appointment day as yyyy-MM-dd in its own location.
func (a *Appointment) Date() string {
	return a.DateTime.Format("2006-01-02")
}

// OverlapsWith checks whether [start, end) intersects the appointment.
func (a *Appointment) OverlapsWith(start, end time.Time) bool {
	return a.DateTime.Before(end) && start.Before(a.End())
}
