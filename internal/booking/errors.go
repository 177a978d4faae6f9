package booking

import (
	"errors"

	"taller/internal/model"
)

var (
	// ErrSlotUnavailable means the requested start cannot hold the service.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrSlotTaken means the slot passed the preview but a concurrent booking
	// filled it before ours was stored.
	ErrSlotTaken = model.ErrSlotTaken

	ErrInvalidBlockWindow   = errors.New("invalid block window")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrOutsideBookingWindow = errors.New("outside booking window")
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = model.ErrNotFound
)
