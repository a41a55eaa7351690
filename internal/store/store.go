// Package store provides record-store backends for ClinicDesk.
//
// It exposes scan/filter/update primitives over the three clinic tables
// (availability slots, appointments, patients) plus dialogue sessions, with
// in-memory, SQLite, and PostgreSQL implementations. Reservation and release
// are row-level atomic: the availability flip and the appointment row change
// happen as one step, never as a separate read followed by a write.
package store

import (
	"context"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// Store is the persistence collaborator for the scheduling engine, the
// patient-records handler, and the session manager.
type Store interface {
	// GetSlot returns the slot for a doctor at an exact "DD-MM-YYYY HH:MM"
	// timestamp, or nil if no such slot exists. Doctor matching is
	// case-insensitive.
	GetSlot(ctx context.Context, doctorName, timestamp string) (*models.AvailabilitySlot, error)

	// ListSlotsByDoctorDate returns every slot for a doctor on a DD-MM-YYYY
	// date, available and booked alike, ordered by timestamp.
	ListSlotsByDoctorDate(ctx context.Context, doctorName, date string) ([]models.AvailabilitySlot, error)

	// ListSlotsBySpecializationDate returns the free slots for all doctors of
	// a specialization on a date, ordered by timestamp.
	ListSlotsBySpecializationDate(ctx context.Context, specialization, date string) ([]models.AvailabilitySlot, error)

	// UpsertSlot inserts or replaces a slot row. Used to seed inventory.
	UpsertSlot(ctx context.Context, slot models.AvailabilitySlot) error

	// ReserveSlot atomically flips an available slot to reserved and creates
	// the matching appointment row in the same step. Returns
	// models.ErrSlotNotFound if the slot does not exist and
	// models.ErrSlotAlreadyBooked if it exists but is held.
	ReserveSlot(ctx context.Context, doctorName, timestamp string, patientID int) (*models.AppointmentRecord, error)

	// ReleaseSlot atomically removes the appointment row and flips the slot
	// back to available, clearing the reservation. Returns
	// models.ErrAppointmentNotFound if the patient holds no such appointment.
	ReleaseSlot(ctx context.Context, doctorName, timestamp string, patientID int) error

	// ListAppointmentsByPatient returns a patient's appointments ordered by
	// date and time.
	ListAppointmentsByPatient(ctx context.Context, patientID int) ([]models.AppointmentRecord, error)

	// DoctorNames returns the doctor id to name mapping known to the slot
	// inventory.
	DoctorNames(ctx context.Context) (map[int]string, error)

	// CreatePatient stores a new patient and returns the assigned next-integer ID.
	CreatePatient(ctx context.Context, patient models.PatientRecord) (int, error)

	// GetPatient returns a patient by ID, or nil if absent.
	GetPatient(ctx context.Context, id int) (*models.PatientRecord, error)

	// FindPatientByPhone returns the patient with the given phone number, or
	// nil if none matches. Used to key inbound channel messages to sessions.
	FindPatientByPhone(ctx context.Context, phone string) (*models.PatientRecord, error)

	// UpdatePatient applies the non-nil fields of the update. Returns
	// models.ErrPatientNotFound if the patient does not exist.
	UpdatePatient(ctx context.Context, id int, update models.PatientUpdate) error

	// GetSession returns the session keyed by patient ID, or nil if absent.
	GetSession(ctx context.Context, patientID int) (*models.Session, error)

	// SaveSession stores or replaces a session.
	SaveSession(ctx context.Context, session models.Session) error

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, patientID int) error

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures the store to use a SQLite database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures the store to use a PostgreSQL database.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN string as "postgres" or "sqlite".
// PostgreSQL DSNs use URL or key=value forms; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
