// This file implements the PostgreSQL-backed store. Semantics mirror the
// SQLite backend; reservation is the same conditional UPDATE in a
// transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/clinicdesk/clinicdesk/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSlot(ctx context.Context, doctorName, timestamp string) (*models.AvailabilitySlot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE LOWER(doctor_name) = LOWER($1) AND date_availability = $2`,
		doctorName, timestamp,
	)
	slot, err := scanSlotRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSlot failed", "error", err, "doctor", doctorName, "timestamp", timestamp)
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (s *PostgresStore) ListSlotsByDoctorDate(ctx context.Context, doctorName, date string) ([]models.AvailabilitySlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE LOWER(doctor_name) = LOWER($1) AND date_availability LIKE $2 || ' %'
		 ORDER BY date_availability`,
		doctorName, date,
	)
	if err != nil {
		slog.Error("PostgresStore ListSlotsByDoctorDate query failed", "error", err, "doctor", doctorName, "date", date)
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()
	slots, err := scanSlots(rows)
	if err != nil {
		slog.Error("PostgresStore ListSlotsByDoctorDate scan failed", "error", err)
		return nil, err
	}
	return slots, nil
}

func (s *PostgresStore) ListSlotsBySpecializationDate(ctx context.Context, specialization, date string) ([]models.AvailabilitySlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doctor_id, doctor_name, specialization, date_availability, is_available, id_patient
		 FROM availability_slots
		 WHERE LOWER(specialization) = LOWER($1) AND is_available = 1 AND date_availability LIKE $2 || ' %'
		 ORDER BY doctor_name, date_availability`,
		specialization, date,
	)
	if err != nil {
		slog.Error("PostgresStore ListSlotsBySpecializationDate query failed", "error", err, "specialization", specialization, "date", date)
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()
	slots, err := scanSlots(rows)
	if err != nil {
		slog.Error("PostgresStore ListSlotsBySpecializationDate scan failed", "error", err)
		return nil, err
	}
	return slots, nil
}

func (s *PostgresStore) UpsertSlot(ctx context.Context, slot models.AvailabilitySlot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability_slots (doctor_id, doctor_name, specialization, date_availability, is_available, id_patient)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (doctor_id, date_availability) DO UPDATE SET
		   doctor_name = EXCLUDED.doctor_name,
		   specialization = EXCLUDED.specialization,
		   is_available = EXCLUDED.is_available,
		   id_patient = EXCLUDED.id_patient`,
		slot.DoctorID, slot.DoctorName, slot.Specialization, slot.Timestamp, boolToInt(slot.IsAvailable), slot.ReservedBy,
	)
	if err != nil {
		slog.Error("PostgresStore UpsertSlot failed", "error", err, "doctor", slot.DoctorName, "timestamp", slot.Timestamp)
		return fmt.Errorf("failed to upsert slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReserveSlot(ctx context.Context, doctorName, timestamp string, patientID int) (*models.AppointmentRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("PostgresStore ReserveSlot begin failed", "error", err)
		return nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	// Conditional flip: succeeds only while the slot is still free.
	var doctorID int
	var service string
	err = tx.QueryRowContext(ctx,
		`UPDATE availability_slots SET is_available = 0, id_patient = $1
		 WHERE LOWER(doctor_name) = LOWER($2) AND date_availability = $3 AND is_available = 1
		 RETURNING doctor_id, specialization`,
		patientID, doctorName, timestamp,
	).Scan(&doctorID, &service)
	if err == sql.ErrNoRows {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM availability_slots
			 WHERE LOWER(doctor_name) = LOWER($1) AND date_availability = $2`,
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
	if err != nil {
		slog.Error("PostgresStore ReserveSlot update failed", "error", err, "doctor", doctorName, "timestamp", timestamp)
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	date, tm := models.SplitDateTime(timestamp)
	var apptID int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO appointments (patient_id, medecin_id, date, time, service)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		patientID, doctorID, date, tm, service,
	).Scan(&apptID)
	if err != nil {
		slog.Error("PostgresStore ReserveSlot insert failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to record appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore ReserveSlot commit failed", "error", err)
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	slog.Debug("PostgresStore ReserveSlot succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID, "appointmentID", apptID)
	return &models.AppointmentRecord{
		ID:        apptID,
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      tm,
		Service:   service,
	}, nil
}

func (s *PostgresStore) ReleaseSlot(ctx context.Context, doctorName, timestamp string, patientID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("PostgresStore ReleaseSlot begin failed", "error", err)
		return fmt.Errorf("failed to begin release: %w", err)
	}
	defer tx.Rollback()

	var doctorID int
	err = tx.QueryRowContext(ctx,
		`SELECT doctor_id FROM availability_slots
		 WHERE LOWER(doctor_name) = LOWER($1) AND date_availability = $2 AND is_available = 0 AND id_patient = $3`,
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
		   WHERE patient_id = $1 AND medecin_id = $2 AND date = $3 AND time = $4 LIMIT 1)`,
		patientID, doctorID, date, tm,
	)
	if err != nil {
		slog.Error("PostgresStore ReleaseSlot delete failed", "error", err, "patientID", patientID)
		return fmt.Errorf("failed to remove appointment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrAppointmentNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE availability_slots SET is_available = 1, id_patient = NULL
		 WHERE doctor_id = $1 AND date_availability = $2`,
		doctorID, timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore ReleaseSlot update failed", "error", err, "doctorID", doctorID, "timestamp", timestamp)
		return fmt.Errorf("failed to release slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore ReleaseSlot commit failed", "error", err)
		return fmt.Errorf("failed to commit release: %w", err)
	}
	slog.Debug("PostgresStore ReleaseSlot succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID)
	return nil
}

func (s *PostgresStore) ListAppointmentsByPatient(ctx context.Context, patientID int) ([]models.AppointmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, medecin_id, date, time, service FROM appointments
		 WHERE patient_id = $1
		 ORDER BY substr(date, 7, 4) || substr(date, 4, 2) || substr(date, 1, 2), time`,
		patientID,
	)
	if err != nil {
		slog.Error("PostgresStore ListAppointmentsByPatient query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.AppointmentRecord
	for rows.Next() {
		var a models.AppointmentRecord
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &a.Service); err != nil {
			slog.Error("PostgresStore ListAppointmentsByPatient scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return appts, nil
}

func (s *PostgresStore) DoctorNames(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT doctor_id, doctor_name FROM availability_slots`)
	if err != nil {
		slog.Error("PostgresStore DoctorNames query failed", "error", err)
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

func (s *PostgresStore) CreatePatient(ctx context.Context, patient models.PatientRecord) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO patients (name, email, phone, birth_date, sex, address)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		patient.Name, patient.Email, patient.Phone, patient.BirthDate, patient.Sex, patient.Address,
	).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore CreatePatient failed", "error", err)
		return 0, fmt.Errorf("failed to insert patient: %w", err)
	}
	slog.Debug("PostgresStore CreatePatient succeeded", "patientID", id)
	return id, nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, id int) (*models.PatientRecord, error) {
	var p models.PatientRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, birth_date, sex, address FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.BirthDate, &p.Sex, &p.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPatient failed", "error", err, "patientID", id)
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) FindPatientByPhone(ctx context.Context, phone string) (*models.PatientRecord, error) {
	var p models.PatientRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, birth_date, sex, address FROM patients WHERE phone = $1 LIMIT 1`, phone,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.BirthDate, &p.Sex, &p.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindPatientByPhone failed", "error", err)
		return nil, fmt.Errorf("failed to find patient by phone: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, id int, update models.PatientUpdate) error {
	existing, err := s.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.ErrPatientNotFound
	}
	update.ApplyTo(existing)
	_, err = s.db.ExecContext(ctx,
		`UPDATE patients SET name = $1, email = $2, phone = $3, birth_date = $4, sex = $5, address = $6 WHERE id = $7`,
		existing.Name, existing.Email, existing.Phone, existing.BirthDate, existing.Sex, existing.Address, id,
	)
	if err != nil {
		slog.Error("PostgresStore UpdatePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, patientID int) (*models.Session, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM sessions WHERE patient_id = $1`, patientID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		slog.Error("PostgresStore GetSession unmarshal failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session models.Session) error {
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (patient_id, state_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (patient_id) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`,
		session.PatientID, string(stateJSON), time.Now().Unix(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "patientID", session.PatientID)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, patientID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE patient_id = $1`, patientID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "patientID", patientID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
