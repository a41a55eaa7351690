// Package scheduling owns all mutation of the appointment-slot inventory.
//
// The engine serializes operations per (doctor, timestamp) with a keyed
// mutex; different slots proceed independently. The store performs the
// actual flip atomically, so the keyed mutex orders callers rather than
// guarding correctness.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

// Engine performs slot queries and reservation commits against the store.
type Engine struct {
	st store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a scheduling engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		st:    st,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one (doctor, timestamp) slot.
func (e *Engine) lockFor(doctorName, timestamp string) *sync.Mutex {
	key := strings.ToLower(strings.TrimSpace(doctorName)) + "|" + timestamp
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// storeErr passes domain sentinels through and wraps everything else as a
// transient store failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrSlotNotFound),
		errors.Is(err, models.ErrSlotAlreadyBooked),
		errors.Is(err, models.ErrAppointmentNotFound),
		errors.Is(err, models.ErrPatientNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
}

// DayAvailability is the free/booked partition of a doctor's day.
type DayAvailability struct {
	Doctor string   `json:"doctor"`
	Date   string   `json:"date"`
	Free   []string `json:"free"`
	Booked []string `json:"booked"`
}

// QueryAvailability partitions a doctor's slots on a date into free and
// booked times. Returns models.ErrSlotNotFound when the doctor has no slots
// on that date.
func (e *Engine) QueryAvailability(ctx context.Context, doctorName, date string) (*DayAvailability, error) {
	if err := models.ValidateDate(date); err != nil {
		return nil, err
	}
	slots, err := e.st.ListSlotsByDoctorDate(ctx, doctorName, date)
	if err != nil {
		slog.Error("Engine QueryAvailability failed", "error", err, "doctor", doctorName, "date", date)
		return nil, storeErr(err)
	}
	if len(slots) == 0 {
		return nil, models.ErrSlotNotFound
	}
	day := &DayAvailability{Doctor: slots[0].DoctorName, Date: date}
	for _, slot := range slots {
		_, tm := models.SplitDateTime(slot.Timestamp)
		if slot.IsAvailable {
			day.Free = append(day.Free, tm)
		} else {
			day.Booked = append(day.Booked, tm)
		}
	}
	slog.Debug("Engine QueryAvailability succeeded", "doctor", doctorName, "date", date, "free", len(day.Free), "booked", len(day.Booked))
	return day, nil
}

// QuerySlot returns the state of one exact slot. Returns
// models.ErrSlotNotFound if the doctor has no slot at that timestamp.
func (e *Engine) QuerySlot(ctx context.Context, doctorName, timestamp string) (*models.AvailabilitySlot, error) {
	if err := models.ValidateDateTime(timestamp); err != nil {
		return nil, err
	}
	slot, err := e.st.GetSlot(ctx, doctorName, timestamp)
	if err != nil {
		slog.Error("Engine QuerySlot failed", "error", err, "doctor", doctorName, "timestamp", timestamp)
		return nil, storeErr(err)
	}
	if slot == nil {
		return nil, models.ErrSlotNotFound
	}
	return slot, nil
}

// QueryBySpecialization returns doctor name → sorted free times for a
// specialization on a date.
func (e *Engine) QueryBySpecialization(ctx context.Context, specialization, date string) (map[string][]string, error) {
	if err := models.ValidateDate(date); err != nil {
		return nil, err
	}
	slots, err := e.st.ListSlotsBySpecializationDate(ctx, specialization, date)
	if err != nil {
		slog.Error("Engine QueryBySpecialization failed", "error", err, "specialization", specialization, "date", date)
		return nil, storeErr(err)
	}
	out := make(map[string][]string)
	for _, slot := range slots {
		_, tm := models.SplitDateTime(slot.Timestamp)
		out[slot.DoctorName] = append(out[slot.DoctorName], tm)
	}
	for doctor := range out {
		sort.Strings(out[doctor])
	}
	return out, nil
}

// Reserve atomically books one slot for a patient and returns the created
// appointment. Returns models.ErrSlotNotFound or models.ErrSlotAlreadyBooked
// on contention; both leave the inventory untouched.
func (e *Engine) Reserve(ctx context.Context, doctorName, timestamp string, patientID int) (*models.AppointmentRecord, error) {
	if err := models.ValidateDateTime(timestamp); err != nil {
		return nil, err
	}
	l := e.lockFor(doctorName, timestamp)
	l.Lock()
	defer l.Unlock()

	appt, err := e.st.ReserveSlot(ctx, doctorName, timestamp, patientID)
	if err != nil {
		slog.Debug("Engine Reserve rejected", "error", err, "doctor", doctorName, "timestamp", timestamp, "patientID", patientID)
		return nil, storeErr(err)
	}
	slog.Debug("Engine Reserve succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID, "appointmentID", appt.ID)
	return appt, nil
}

// Release atomically cancels a patient's reservation, restoring the slot.
// Returns models.ErrAppointmentNotFound if the patient does not hold it.
func (e *Engine) Release(ctx context.Context, doctorName, timestamp string, patientID int) error {
	if err := models.ValidateDateTime(timestamp); err != nil {
		return err
	}
	l := e.lockFor(doctorName, timestamp)
	l.Lock()
	defer l.Unlock()

	if err := e.st.ReleaseSlot(ctx, doctorName, timestamp, patientID); err != nil {
		slog.Debug("Engine Release rejected", "error", err, "doctor", doctorName, "timestamp", timestamp, "patientID", patientID)
		return storeErr(err)
	}
	slog.Debug("Engine Release succeeded", "doctor", doctorName, "timestamp", timestamp, "patientID", patientID)
	return nil
}

// Reschedule releases the old slot and reserves the new one. If the new
// reservation fails after the old slot was released, the old slot is gone
// and may be retaken; the caller gets models.ErrRescheduleIncomplete
// wrapping the cause and must report the outcome honestly.
func (e *Engine) Reschedule(ctx context.Context, doctorName, oldTimestamp, newTimestamp string, patientID int) (*models.AppointmentRecord, error) {
	if err := models.ValidateDateTime(oldTimestamp); err != nil {
		return nil, err
	}
	if err := models.ValidateDateTime(newTimestamp); err != nil {
		return nil, err
	}

	if err := e.Release(ctx, doctorName, oldTimestamp, patientID); err != nil {
		return nil, err
	}
	appt, err := e.Reserve(ctx, doctorName, newTimestamp, patientID)
	if err != nil {
		slog.Error("Engine Reschedule incomplete", "error", err, "doctor", doctorName, "old", oldTimestamp, "new", newTimestamp, "patientID", patientID)
		return nil, fmt.Errorf("%w: %v", models.ErrRescheduleIncomplete, err)
	}
	slog.Debug("Engine Reschedule succeeded", "doctor", doctorName, "old", oldTimestamp, "new", newTimestamp, "patientID", patientID)
	return appt, nil
}

// Appointments returns a patient's bookings with doctor names resolved.
type AppointmentView struct {
	models.AppointmentRecord
	DoctorName string `json:"doctor_name"`
}

// ListAppointments returns a patient's appointments joined with doctor names.
func (e *Engine) ListAppointments(ctx context.Context, patientID int) ([]AppointmentView, error) {
	appts, err := e.st.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		slog.Error("Engine ListAppointments failed", "error", err, "patientID", patientID)
		return nil, storeErr(err)
	}
	names, err := e.st.DoctorNames(ctx)
	if err != nil {
		slog.Error("Engine ListAppointments doctor lookup failed", "error", err, "patientID", patientID)
		return nil, storeErr(err)
	}
	views := make([]AppointmentView, 0, len(appts))
	for _, a := range appts {
		views = append(views, AppointmentView{AppointmentRecord: a, DoctorName: names[a.DoctorID]})
	}
	return views, nil
}
