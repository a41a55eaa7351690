package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewEngine(st), st
}

func seed(t *testing.T, st store.Store, doctorID int, doctor, spec, timestamp string) {
	t.Helper()
	err := st.UpsertSlot(context.Background(), models.AvailabilitySlot{
		DoctorID:       doctorID,
		DoctorName:     doctor,
		Specialization: spec,
		Timestamp:      timestamp,
		IsAvailable:    true,
	})
	if err != nil {
		t.Fatalf("UpsertSlot failed: %v", err)
	}
}

func TestReserveNoDoubleBookingUnderConcurrency(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 14:30")

	const contenders = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, alreadyBooked int

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(patientID int) {
			defer wg.Done()
			_, err := engine.Reserve(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", patientID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, models.ErrSlotAlreadyBooked):
				alreadyBooked++
			default:
				t.Errorf("unexpected error from Reserve: %v", err)
			}
		}(i + 1)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
	if alreadyBooked != contenders-1 {
		t.Errorf("expected %d ErrSlotAlreadyBooked, got %d", contenders-1, alreadyBooked)
	}
}

func TestReleaseAfterReserveRoundTrip(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Adil Tajmouati", "Prosthetics", "16-12-2024 09:00")

	if _, err := engine.Reserve(ctx, "Dr. Adil Tajmouati", "16-12-2024 09:00", 4); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := engine.Release(ctx, "Dr. Adil Tajmouati", "16-12-2024 09:00", 4); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	slot, err := engine.QuerySlot(ctx, "Dr. Adil Tajmouati", "16-12-2024 09:00")
	if err != nil {
		t.Fatalf("QuerySlot failed: %v", err)
	}
	if !slot.IsAvailable || slot.ReservedBy != nil {
		t.Errorf("slot not indistinguishable from never-booked: %+v", slot)
	}
}

func TestReserveValidatesTimestamp(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Reserve(context.Background(), "Dr. Adil Tajmouati", "2024-12-16 09:00", 1)
	if !errors.Is(err, models.ErrInvalidDateTime) {
		t.Errorf("expected ErrInvalidDateTime, got %v", err)
	}
}

func TestQueryAvailabilityPartition(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 09:00")
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 14:30")
	if _, err := engine.Reserve(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 1); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	day, err := engine.QueryAvailability(ctx, "Dr. Mohamed Tajmouati", "15-12-2024")
	if err != nil {
		t.Fatalf("QueryAvailability failed: %v", err)
	}
	if len(day.Free) != 1 || day.Free[0] != "14:30" {
		t.Errorf("unexpected free times: %v", day.Free)
	}
	if len(day.Booked) != 1 || day.Booked[0] != "09:00" {
		t.Errorf("unexpected booked times: %v", day.Booked)
	}
}

func TestQueryAvailabilityNoSlots(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.QueryAvailability(context.Background(), "Dr. Hanane Louizi", "01-01-2025")
	if !errors.Is(err, models.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestQueryBySpecialization(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 10:00")
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 09:00")
	seed(t, st, 2, "Dr. Adil Tajmouati", "Prosthetics", "15-12-2024 09:00")

	byDoctor, err := engine.QueryBySpecialization(ctx, "Orthodontics", "15-12-2024")
	if err != nil {
		t.Fatalf("QueryBySpecialization failed: %v", err)
	}
	times := byDoctor["Dr. Mohamed Tajmouati"]
	if len(times) != 2 || times[0] != "09:00" || times[1] != "10:00" {
		t.Errorf("unexpected times: %v", times)
	}
	if _, ok := byDoctor["Dr. Adil Tajmouati"]; ok {
		t.Error("specialization filter leaked another specialization's slots")
	}
}

func TestRescheduleMovesAppointment(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 09:00")
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 14:30")

	if _, err := engine.Reserve(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 2); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	appt, err := engine.Reschedule(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", "15-12-2024 14:30", 2)
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if appt.Time != "14:30" {
		t.Errorf("expected rescheduled time 14:30, got %q", appt.Time)
	}

	old, err := engine.QuerySlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00")
	if err != nil {
		t.Fatalf("QuerySlot failed: %v", err)
	}
	if !old.IsAvailable {
		t.Error("old slot should be free after reschedule")
	}
}

func TestRescheduleIncompleteWhenNewSlotTaken(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 09:00")
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 14:30")

	if _, err := engine.Reserve(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 2); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	// Another patient takes the target slot first.
	if _, err := engine.Reserve(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", 3); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	_, err := engine.Reschedule(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", "15-12-2024 14:30", 2)
	if !errors.Is(err, models.ErrRescheduleIncomplete) {
		t.Fatalf("expected ErrRescheduleIncomplete, got %v", err)
	}

	// The old slot was released and may be retaken; no silent re-reserve.
	old, qerr := engine.QuerySlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00")
	if qerr != nil {
		t.Fatalf("QuerySlot failed: %v", qerr)
	}
	if !old.IsAvailable {
		t.Error("old slot should remain released after incomplete reschedule")
	}
}

func TestReleaseNotHeld(t *testing.T) {
	engine, st := newTestEngine(t)
	seed(t, st, 1, "Dr. Mohamed Tajmouati", "Orthodontics", "15-12-2024 09:00")
	err := engine.Release(context.Background(), "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 9)
	if !errors.Is(err, models.ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}
