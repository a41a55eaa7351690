// Package store provides record-store backends for ClinicDesk.
//
// This file implements the in-memory store used when no DSN is configured
// and as the default backend in tests. All operations are safe for
// concurrent use; reservation is a test-and-set under the store mutex.
package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

type slotKey struct {
	doctor    string // lowercase doctor name
	timestamp string // "DD-MM-YYYY HH:MM"
}

// InMemoryStore keeps all tables in process memory.
type InMemoryStore struct {
	mu            sync.Mutex
	slots         map[slotKey]models.AvailabilitySlot
	appointments  []models.AppointmentRecord
	patients      map[int]models.PatientRecord
	sessions      map[int]models.Session
	nextApptID    int
	nextPatientID int
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("Creating InMemoryStore")
	return &InMemoryStore{
		slots:         make(map[slotKey]models.AvailabilitySlot),
		patients:      make(map[int]models.PatientRecord),
		sessions:      make(map[int]models.Session),
		nextApptID:    1,
		nextPatientID: 1,
	}
}

func keyOf(doctorName, timestamp string) slotKey {
	return slotKey{doctor: strings.ToLower(strings.TrimSpace(doctorName)), timestamp: timestamp}
}

// GetSlot returns the slot for a doctor at an exact timestamp, or nil.
func (s *InMemoryStore) GetSlot(ctx context.Context, doctorName, timestamp string) (*models.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[keyOf(doctorName, timestamp)]
	if !ok {
		return nil, nil
	}
	out := slot
	return &out, nil
}

// ListSlotsByDoctorDate returns every slot for a doctor on a date.
func (s *InMemoryStore) ListSlotsByDoctorDate(ctx context.Context, doctorName, date string) ([]models.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctor := strings.ToLower(strings.TrimSpace(doctorName))
	var out []models.AvailabilitySlot
	for k, slot := range s.slots {
		if k.doctor == doctor && strings.HasPrefix(k.timestamp, date) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

// ListSlotsBySpecializationDate returns the free slots for a specialization on a date.
func (s *InMemoryStore) ListSlotsBySpecializationDate(ctx context.Context, specialization, date string) ([]models.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec := strings.ToLower(strings.TrimSpace(specialization))
	var out []models.AvailabilitySlot
	for k, slot := range s.slots {
		if strings.ToLower(slot.Specialization) == spec && slot.IsAvailable && strings.HasPrefix(k.timestamp, date) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

// UpsertSlot inserts or replaces a slot row.
func (s *InMemoryStore) UpsertSlot(ctx context.Context, slot models.AvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[keyOf(slot.DoctorName, slot.Timestamp)] = slot
	return nil
}

// ReserveSlot flips an available slot to reserved and records the
// appointment in the same critical section.
func (s *InMemoryStore) ReserveSlot(ctx context.Context, doctorName, timestamp string, patientID int) (*models.AppointmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(doctorName, timestamp)
	slot, ok := s.slots[key]
	if !ok {
		return nil, models.ErrSlotNotFound
	}
	if !slot.IsAvailable {
		return nil, models.ErrSlotAlreadyBooked
	}

	pid := patientID
	slot.IsAvailable = false
	slot.ReservedBy = &pid
	s.slots[key] = slot

	date, tm := models.SplitDateTime(timestamp)
	appt := models.AppointmentRecord{
		ID:        s.nextApptID,
		PatientID: patientID,
		DoctorID:  slot.DoctorID,
		Date:      date,
		Time:      tm,
		Service:   slot.Specialization,
	}
	s.nextApptID++
	s.appointments = append(s.appointments, appt)

	slog.Debug("InMemoryStore ReserveSlot succeeded", "doctor", slot.DoctorName, "timestamp", timestamp, "patientID", patientID)
	return &appt, nil
}

// ReleaseSlot removes the appointment and flips the slot back to available.
func (s *InMemoryStore) ReleaseSlot(ctx context.Context, doctorName, timestamp string, patientID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(doctorName, timestamp)
	slot, ok := s.slots[key]
	if !ok || slot.IsAvailable || slot.ReservedBy == nil || *slot.ReservedBy != patientID {
		return models.ErrAppointmentNotFound
	}

	date, tm := models.SplitDateTime(timestamp)
	idx := -1
	for i, appt := range s.appointments {
		if appt.PatientID == patientID && appt.DoctorID == slot.DoctorID && appt.Date == date && appt.Time == tm {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ErrAppointmentNotFound
	}
	s.appointments = append(s.appointments[:idx], s.appointments[idx+1:]...)

	slot.IsAvailable = true
	slot.ReservedBy = nil
	s.slots[key] = slot

	slog.Debug("InMemoryStore ReleaseSlot succeeded", "doctor", slot.DoctorName, "timestamp", timestamp, "patientID", patientID)
	return nil
}

// ListAppointmentsByPatient returns a patient's appointments ordered by date and time.
func (s *InMemoryStore) ListAppointmentsByPatient(ctx context.Context, patientID int) ([]models.AppointmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AppointmentRecord
	for _, appt := range s.appointments {
		if appt.PatientID == patientID {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return chronoLess(out[i].Date, out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// DoctorNames returns the doctor id to name mapping known to the inventory.
func (s *InMemoryStore) DoctorNames(ctx context.Context) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string)
	for _, slot := range s.slots {
		out[slot.DoctorID] = slot.DoctorName
	}
	return out, nil
}

// CreatePatient stores a new patient with the next integer ID.
func (s *InMemoryStore) CreatePatient(ctx context.Context, patient models.PatientRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient.ID = s.nextPatientID
	s.nextPatientID++
	s.patients[patient.ID] = patient
	slog.Debug("InMemoryStore CreatePatient succeeded", "patientID", patient.ID)
	return patient.ID, nil
}

// GetPatient returns a patient by ID, or nil.
func (s *InMemoryStore) GetPatient(ctx context.Context, id int) (*models.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient, ok := s.patients[id]
	if !ok {
		return nil, nil
	}
	out := patient
	return &out, nil
}

// FindPatientByPhone returns the patient with the given phone number, or nil.
func (s *InMemoryStore) FindPatientByPhone(ctx context.Context, phone string) (*models.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, patient := range s.patients {
		if patient.Phone == phone {
			out := patient
			return &out, nil
		}
	}
	return nil, nil
}

// UpdatePatient applies the non-nil fields of the update.
func (s *InMemoryStore) UpdatePatient(ctx context.Context, id int, update models.PatientUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient, ok := s.patients[id]
	if !ok {
		return models.ErrPatientNotFound
	}
	update.ApplyTo(&patient)
	s.patients[id] = patient
	return nil
}

// GetSession returns the session for a patient, or nil.
func (s *InMemoryStore) GetSession(ctx context.Context, patientID int) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[patientID]
	if !ok {
		return nil, nil
	}
	out := session
	out.History = append([]models.SessionMessage(nil), session.History...)
	return &out, nil
}

// SaveSession stores or replaces a session.
func (s *InMemoryStore) SaveSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.History = append([]models.SessionMessage(nil), session.History...)
	s.sessions[session.PatientID] = session
	return nil
}

// DeleteSession removes a session.
func (s *InMemoryStore) DeleteSession(ctx context.Context, patientID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, patientID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// sortSlots orders slots chronologically by their wire timestamp.
func sortSlots(slots []models.AvailabilitySlot) {
	sort.Slice(slots, func(i, j int) bool {
		di, ti := models.SplitDateTime(slots[i].Timestamp)
		dj, tj := models.SplitDateTime(slots[j].Timestamp)
		if di != dj {
			return chronoLess(di, dj)
		}
		return ti < tj
	})
}

// chronoLess compares two DD-MM-YYYY dates chronologically.
func chronoLess(a, b string) bool {
	// YYYY, then MM, then DD
	if len(a) != 10 || len(b) != 10 {
		return a < b
	}
	if a[6:] != b[6:] {
		return a[6:] < b[6:]
	}
	if a[3:5] != b[3:5] {
		return a[3:5] < b[3:5]
	}
	return a[:2] < b[:2]
}
