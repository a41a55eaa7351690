package models

import "errors"

// Domain-level errors. These are caught at the handler boundary and turned
// into user-facing replies; only ErrStoreUnavailable escapes to transport.
var (
	ErrSlotNotFound         = errors.New("no such time slot")
	ErrSlotAlreadyBooked    = errors.New("time slot is already booked")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrStoreUnavailable     = errors.New("record store unavailable")
	ErrRescheduleIncomplete = errors.New("reschedule incomplete: original slot released but new slot could not be reserved")
)

// Validation errors. Surfaced conversationally as re-prompts, never as hard
// failures.
var (
	ErrInvalidDate      = errors.New("date must be in DD-MM-YYYY format")
	ErrInvalidTime      = errors.New("time must be in HH:MM format")
	ErrInvalidDateTime  = errors.New("timestamp must be in 'DD-MM-YYYY HH:MM' format")
	ErrInvalidPatientID = errors.New("patient ID must be a positive integer")
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrEmptyPatientName = errors.New("patient name cannot be empty")
	ErrInvalidEmail     = errors.New("email address is not valid")
	ErrInvalidPhone     = errors.New("phone number must contain 8-15 digits")
	ErrInvalidBirthDate = errors.New("birth date must be in DD-MM-YYYY format")
	ErrInvalidSex       = errors.New("sex must be M or F")
)
