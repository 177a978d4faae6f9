package model

import "errors"

// Errors shared by the stores and the booking service.
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrSlotTaken              = errors.New("slot was just taken")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// AppointmentFilter narrows appointment listings. From and To are
// inclusive yyyy-MM-dd dates.
type AppointmentFilter struct {
	From       string
	To         string
	ActiveOnly bool
	Status     AppointmentStatus
	ClientID   int64
}
