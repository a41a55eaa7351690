// Package models defines the core data structures for ClinicDesk.
//
// It includes the appointment-slot inventory rows, patient records, dialogue
// sessions, and the API response envelope shared across modules.
package models

import (
	"regexp"
	"strings"
	"time"
)

// Wire formats for dates and times. The record store keeps slot timestamps as
// a single "DD-MM-YYYY HH:MM" string; appointments split date and time.
const (
	DateLayout     = "02-01-2006"
	TimeLayout     = "15:04"
	DateTimeLayout = "02-01-2006 15:04"
)

var (
	dateRe     = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	timeRe     = regexp.MustCompile(`^\d{2}:\d{2}$`)
	dateTimeRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4} \d{2}:\d{2}$`)
	phoneRe    = regexp.MustCompile(`^[0-9]{8,15}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateDate checks the DD-MM-YYYY wire format and that the date exists.
func ValidateDate(s string) error {
	if !dateRe.MatchString(s) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// ValidateTime checks the HH:MM wire format.
func ValidateTime(s string) error {
	if !timeRe.MatchString(s) {
		return ErrInvalidTime
	}
	if _, err := time.Parse(TimeLayout, s); err != nil {
		return ErrInvalidTime
	}
	return nil
}

// ValidateDateTime checks the combined "DD-MM-YYYY HH:MM" wire format.
func ValidateDateTime(s string) error {
	if !dateTimeRe.MatchString(s) {
		return ErrInvalidDateTime
	}
	if _, err := time.Parse(DateTimeLayout, s); err != nil {
		return ErrInvalidDateTime
	}
	return nil
}

// JoinDateTime combines a DD-MM-YYYY date and HH:MM time into the slot
// timestamp wire format.
func JoinDateTime(date, tm string) string {
	return date + " " + tm
}

// SplitDateTime splits a slot timestamp into its date and time parts.
func SplitDateTime(ts string) (date, tm string) {
	if i := strings.IndexByte(ts, ' '); i >= 0 {
		return ts[:i], ts[i+1:]
	}
	return ts, ""
}

// AvailabilitySlot is one unit of bookable capacity for a doctor at a
// timestamp. (DoctorID, Timestamp) is unique; IsAvailable=false holds exactly
// when ReservedBy is set and a matching AppointmentRecord exists.
type AvailabilitySlot struct {
	DoctorID       int    `json:"doctor_id"`
	DoctorName     string `json:"doctor_name"`
	Specialization string `json:"specialization"`
	Timestamp      string `json:"date_availability"` // "DD-MM-YYYY HH:MM"
	IsAvailable    bool   `json:"is_available"`
	ReservedBy     *int   `json:"id_patient,omitempty"`
}

// AppointmentRecord is the booked counterpart of an unavailable slot.
type AppointmentRecord struct {
	ID        int    `json:"appointment_id"`
	PatientID int    `json:"patient_id"`
	DoctorID  int    `json:"medecin_id"`
	Date      string `json:"date"` // DD-MM-YYYY
	Time      string `json:"time"` // HH:MM
	Service   string `json:"service"`
}

// PatientRecord is a clinic patient. IDs are assigned as the next integer by
// the store and are immutable afterwards.
type PatientRecord struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"` // DD-MM-YYYY
	Sex       string `json:"sex"`        // M or F
	Address   string `json:"address"`
}

// Validate performs field validation on a PatientRecord.
func (p *PatientRecord) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyPatientName
	}
	if !emailRe.MatchString(p.Email) {
		return ErrInvalidEmail
	}
	if !phoneRe.MatchString(p.Phone) {
		return ErrInvalidPhone
	}
	if err := ValidateDate(p.BirthDate); err != nil {
		return ErrInvalidBirthDate
	}
	switch p.Sex {
	case "M", "F":
	default:
		return ErrInvalidSex
	}
	return nil
}

// PatientUpdate carries optional field updates for an existing patient.
type PatientUpdate struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Sex       *string `json:"sex,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// ApplyTo copies the update's non-nil fields onto the record.
func (u PatientUpdate) ApplyTo(p *PatientRecord) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.BirthDate != nil {
		p.BirthDate = *u.BirthDate
	}
	if u.Sex != nil {
		p.Sex = *u.Sex
	}
	if u.Address != nil {
		p.Address = *u.Address
	}
}

// SessionMessage is one entry of a session's append-only message history.
type SessionMessage struct {
	Sender string `json:"sender"` // "patient" or the replying domain tag
	Body   string `json:"body"`
	Time   int64  `json:"time"`
}

// SlotProgress tracks the parameters collected so far by a multi-step flow.
// NewDate/NewTime are only used by the reschedule flow.
type SlotProgress struct {
	Step    BookingStep `json:"step"`
	Doctor  string      `json:"doctor,omitempty"`
	Date    string      `json:"date,omitempty"`
	Time    string      `json:"time,omitempty"`
	NewDate string      `json:"new_date,omitempty"`
	NewTime string      `json:"new_time,omitempty"`
}

// Session is the per-patient conversation state. The dialogue engine is the
// sole writer of PendingFlow and Progress.
type Session struct {
	PatientID    int              `json:"patient_id"`
	History      []SessionMessage `json:"history,omitempty"`
	ActiveDomain DomainTag        `json:"active_domain,omitempty"`
	PendingFlow  PendingFlow      `json:"pending_flow"`
	Progress     SlotProgress     `json:"progress"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TurnRequest is an inbound conversational turn.
type TurnRequest struct {
	PatientID int    `json:"patient_id"`
	Message   string `json:"message"`
}

// Validate checks a TurnRequest before dispatch.
func (t *TurnRequest) Validate() error {
	if t.PatientID <= 0 {
		return ErrInvalidPatientID
	}
	if strings.TrimSpace(t.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// TurnReply is the assistant's answer to a turn.
type TurnReply struct {
	Reply        string `json:"reply"`
	SenderDomain string `json:"sender_domain"`
}
