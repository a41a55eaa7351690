// This file implements the SQLite-backed store. Reservation uses a
// conditional UPDATE inside a transaction so the availability flip and the
// appointment row land together or not at all.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/clinicdesk/clinicdesk/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Chronological ORDER BY key for DD-MM-YYYY strings.
const sqliteDateKey = `substr(%s, 7, 4) || substr(%s, 4, 2) || substr(%s, 1, 2)`

func dateKey(col string) string {
	return fmt.Sprintf(sqliteDateKey, col, col, col)
}

func (s *SQLiteStore) GetSlot(ctx context.Context, doctorName, timestamp string) (*models.AvailabilitySlot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE doctor_name = ? COLLATE NOCASE AND date_availability = ?`,
		doctorName, timestamp,
	)
	slot, err := scanSlotRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSlot failed", "error", err, "doctor", doctorName, "timestamp", timestamp)
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (s *SQLiteStore) ListSlotsByDoctorDate(ctx context.Context, doctorName, date string) ([]models.AvailabilitySlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE doctor_name = ? COLLATE NOCASE AND date_availability LIKE ? || ' %'
		 ORDER BY date_availability`,
		doctorName, date,
	)
	if err != nil {
		slog.Error("SQLiteStore ListSlotsByDoctorDate query failed", "error", err, "doctor", doctorName, "date", date)
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()
	slots, err := scanSlots(rows)
	if err != nil {
		slog.Error("SQLiteStore ListSlotsByDoctorDate scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListSlotsByDoctorDate succeeded", "doctor", doctorName, "date", date, "count", len(slots))
	return slots, nil
}

func (s *SQLiteStore) ListSlotsBySpecializationDate(ctx context.Context, specialization, date string) ([]models.AvailabilitySlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE specialization = ? COLLATE NOCASE AND is_available = 1 AND date_availability LIKE ? || ' %'
		 ORDER BY doctor_name, date_availability`,
		specialization, date,
	)
	if err != nil {
		slog.Error("SQLiteStore ListSlotsBySpecializationDate query failed", "error", err, "specialization", specialization, "date", date)
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()
	slots, err := scanSlots(rows)
	if err != nil {
		slog.Error("SQLiteStore ListSlotsBySpecializationDate scan failed", "error", err)
		return nil, err
	}
	return slots, nil
}

func (s *SQLiteStore) UpsertSlot(ctx context.Context, slot models.AvailabilitySlot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability_slots (doctor_id, doctor_name, specialization, date_availability, is_available, id_patient)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (doctor_id, date_availability) DO UPDATE SET
		   doctor_name = excluded.doctor_name,
		   specialization = excluded.specialization,
		   is_available = excluded.is_available,
		   id_patient = excluded.id_patient`,
		slot.DoctorID, slot.DoctorName, slot.Specialization, slot.Timestamp, boolToInt(slot.IsAvailable), slot.ReservedBy,
	)
	if err != nil {
		slog.Error("SQLiteStore UpsertSlot failed", "error", err, "doctor", slot.DoctorName, "timestamp", slot.Timestamp)
		return fmt.Errorf("failed to upsert slot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReserveSlot(ctx context.Context, doctorName, timestamp string, patientID int) (*models.AppointmentRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("SQLiteStore ReserveSlot begin failed", "error", err)
		return nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	// Conditional flip: succeeds only while the slot is still free.
	result, err := tx.ExecContext(ctx,
		`UPDATE availability_slots SET is_available = 0, id_patient = ?
		 WHERE doctor_name = ? COLLATE NOCASE AND date_availability = ? AND is_available = 1`,
		patientID, doctorName, timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore ReserveSlot update failed", "error", err, "doctor", doctorName, "timestamp", timestamp)
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}
	if n == 0 {
		// Distinguish a missing slot from a held one.
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM availability_slots
			 WHERE doctor_name = ? COLLATE NOCASE AND date_availability = ?`,
			doctorName, timestamp,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil, models.ErrSlotNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to inspect slot: %w", err)
		}
		return nil, models.ErrSlotAlreadyBooked
	}

	var doctorID int
	var service string
	if err := tx.QueryRowContext(ctx,
		`SELECT doctor_id, specialization FROM availability_slots
		 WHERE doctor_name = ? COLLATE NOCASE AND date_availability = ?`,
		doctorName, timestamp,
	).Scan(&doctorID, &service); err != nil {
		return nil, fmt.Errorf("failed to load reserved slot: %w", err)
	}

	date, tm := models.SplitDateTime(timestamp)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO appointments (patient_id, medecin_id, date, time, service) VALUES (?, ?, ?, ?, ?)`,
		patientID, doctorID, date, tm, service,
	)
	if err != nil {
		slog.Error("SQLiteStore ReserveSlot insert failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to record appointment: %w", err)
	}
	apptID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to record appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore ReserveSlot commit failed", "error", err)
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	slog.Debug("SQLiteStore ReserveSlot succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID, "appointmentID", apptID)
	return &models.AppointmentRecord{
		ID:        int(apptID),
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      tm,
		Service:   service,
	}, nil
}

func (s *SQLiteStore) ReleaseSlot(ctx context.Context, doctorName, timestamp string, patientID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("SQLiteStore ReleaseSlot begin failed", "error", err)
		return fmt.Errorf("failed to begin release: %w", err)
	}
	defer tx.Rollback()

	var doctorID int
	err = tx.QueryRowContext(ctx,
		`SELECT doctor_id FROM availability_slots
		 WHERE doctor_name = ? COLLATE NOCASE AND date_availability = ? AND is_available = 0 AND id_patient = ?`,
		doctorName, timestamp, patientID,
	).Scan(&doctorID)
	if err == sql.ErrNoRows {
		return models.ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect slot: %w", err)
	}

	date, tm := models.SplitDateTime(timestamp)
	result, err := tx.ExecContext(ctx,
		`DELETE FROM appointments WHERE id = (
		   SELECT id FROM appointments
		   WHERE patient_id = ? AND medecin_id = ? AND date = ? AND time = ? LIMIT 1)`,
		patientID, doctorID, date, tm,
	)
	if err != nil {
		slog.Error("SQLiteStore ReleaseSlot delete failed", "error", err, "patientID", patientID)
		return fmt.Errorf("failed to remove appointment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrAppointmentNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE availability_slots SET is_available = 1, id_patient = NULL
		 WHERE doctor_id = ? AND date_availability = ?`,
		doctorID, timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore ReleaseSlot update failed", "error", err, "doctorID", doctorID, "timestamp", timestamp)
		return fmt.Errorf("failed to release slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore ReleaseSlot commit failed", "error", err)
		return fmt.Errorf("failed to commit release: %w", err)
	}
	slog.Debug("SQLiteStore ReleaseSlot succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID)
	return nil
}

func (s *SQLiteStore) ListAppointmentsByPatient(ctx context.Context, patientID int) ([]models.AppointmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, medecin_id, date, time, service FROM appointments
		 WHERE patient_id = ? ORDER BY `+dateKey("date")+`, time`,
		patientID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListAppointmentsByPatient query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.AppointmentRecord
	for rows.Next() {
		var a models.AppointmentRecord
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &a.Service); err != nil {
			slog.Error("SQLiteStore ListAppointmentsByPatient scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return appts, nil
}

func (s *SQLiteStore) DoctorNames(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT doctor_id, doctor_name FROM availability_slots`)
	if err != nil {
		slog.Error("SQLiteStore DoctorNames query failed", "error", err)
		return nil, fmt.Errorf("failed to query doctors: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan doctor row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate doctor rows: %w", err)
	}
	return names, nil
}

func (s *SQLiteStore) CreatePatient(ctx context.Context, patient models.PatientRecord) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (name, email, phone, birth_date, sex, address) VALUES (?, ?, ?, ?, ?, ?)`,
		patient.Name, patient.Email, patient.Phone, patient.BirthDate, patient.Sex, patient.Address,
	)
	if err != nil {
		slog.Error("SQLiteStore CreatePatient failed", "error", err)
		return 0, fmt.Errorf("failed to insert patient: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to insert patient: %w", err)
	}
	slog.Debug("SQLiteStore CreatePatient succeeded", "patientID", id)
	return int(id), nil
}

func (s *SQLiteStore) GetPatient(ctx context.Context, id int) (*models.PatientRecord, error) {
	var p models.PatientRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, birth_date, sex, address FROM patients WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.BirthDate, &p.Sex, &p.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPatient failed", "error", err, "patientID", id)
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) FindPatientByPhone(ctx context.Context, phone string) (*models.PatientRecord, error) {
	var p models.PatientRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, birth_date, sex, address FROM patients WHERE phone = ? LIMIT 1`, phone,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.BirthDate, &p.Sex, &p.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindPatientByPhone failed", "error", err)
		return nil, fmt.Errorf("failed to find patient by phone: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpdatePatient(ctx context.Context, id int, update models.PatientUpdate) error {
	existing, err := s.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.ErrPatientNotFound
	}
	update.ApplyTo(existing)
	_, err = s.db.ExecContext(ctx,
		`UPDATE patients SET name = ?, email = ?, phone = ?, birth_date = ?, sex = ?, address = ? WHERE id = ?`,
		existing.Name, existing.Email, existing.Phone, existing.BirthDate, existing.Sex, existing.Address, id,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdatePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to update patient: %w", err)
	}
	slog.Debug("SQLiteStore UpdatePatient succeeded", "patientID", id)
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, patientID int) (*models.Session, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM sessions WHERE patient_id = ?`, patientID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		slog.Error("SQLiteStore GetSession unmarshal failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session models.Session) error {
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (patient_id, state_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (patient_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		session.PatientID, string(stateJSON), time.Now().Unix(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "patientID", session.PatientID)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, patientID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE patient_id = ?`, patientID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "patientID", patientID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
