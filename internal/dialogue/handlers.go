package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

// Handler answers utterances for one domain. Implementations convert domain
// errors into conversational replies; only models.ErrStoreUnavailable is
// returned as an error.
type Handler interface {
	// Domain returns the tag this handler serves.
	Domain() models.DomainTag
	// Respond produces the reply to an utterance. The session is the
	// caller's to persist; handlers may mutate pending flow and progress.
	Respond(ctx context.Context, session *models.Session, utterance string) (string, error)
}

// AvailabilityHandler answers read-only schedule questions against the
// scheduling engine. It never mutates the inventory.
type AvailabilityHandler struct {
	engine *scheduling.Engine
	now    nowFunc
}

// NewAvailabilityHandler creates the availability handler.
func NewAvailabilityHandler(engine *scheduling.Engine) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, now: defaultNow}
}

func (h *AvailabilityHandler) Domain() models.DomainTag {
	return models.DomainAvailability
}

func (h *AvailabilityHandler) Respond(ctx context.Context, session *models.Session, utterance string) (string, error) {
	date, haveDate := ExtractDate(utterance, h.now())
	doctor, haveDoctor := ExtractDoctor(utterance)
	spec, haveSpec := ExtractSpecialization(utterance)
	tm, haveTime := ExtractTime(utterance)

	if !haveDate {
		return "Which date would you like to check? Please give it as DD-MM-YYYY, or say today or tomorrow.", nil
	}

	// Specialization query: free times across the specialization's doctors.
	if haveSpec && !haveDoctor {
		byDoctor, err := h.engine.QueryBySpecialization(ctx, spec, date)
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				return "", err
			}
			return "I could not check that specialization right now. Please try again.", nil
		}
		if len(byDoctor) == 0 {
			return fmt.Sprintf("No free %s slots on %s.", spec, date), nil
		}
		var lines []string
		for doctorName, times := range byDoctor {
			lines = append(lines, fmt.Sprintf("%s: %s", doctorName, strings.Join(times, ", ")))
		}
		return fmt.Sprintf("Free %s slots on %s:\n%s", spec, date, strings.Join(lines, "\n")), nil
	}

	if !haveDoctor {
		return "Which doctor would you like to check? Our doctors are Dr. Mohamed Tajmouati, Dr. Adil Tajmouati, and Dr. Hanane Louizi.", nil
	}

	// Exact-time question about one slot.
	if haveTime {
		slot, err := h.engine.QuerySlot(ctx, doctor, models.JoinDateTime(date, tm))
		if errors.Is(err, models.ErrSlotNotFound) {
			return fmt.Sprintf("%s has no slot at %s on %s.", doctor, tm, date), nil
		}
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				return "", err
			}
			return "I could not check that slot right now. Please try again.", nil
		}
		if slot.IsAvailable {
			return fmt.Sprintf("Yes, %s is available on %s at %s.", doctor, date, tm), nil
		}
		return fmt.Sprintf("No, %s is already booked on %s at %s.", doctor, date, tm), nil
	}

	day, err := h.engine.QueryAvailability(ctx, doctor, date)
	if errors.Is(err, models.ErrSlotNotFound) {
		return fmt.Sprintf("%s has no slots on %s.", doctor, date), nil
	}
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			return "", err
		}
		return "I could not check the schedule right now. Please try again.", nil
	}
	if len(day.Free) == 0 {
		return fmt.Sprintf("%s is fully booked on %s.", day.Doctor, date), nil
	}
	return fmt.Sprintf("%s is free on %s at: %s.", day.Doctor, date, strings.Join(day.Free, ", ")), nil
}

// PatientRecordsHandler answers questions about the patient's own record and
// appointment list.
type PatientRecordsHandler struct {
	st     store.Store
	engine *scheduling.Engine
}

// NewPatientRecordsHandler creates the patient-records handler.
func NewPatientRecordsHandler(st store.Store, engine *scheduling.Engine) *PatientRecordsHandler {
	return &PatientRecordsHandler{st: st, engine: engine}
}

func (h *PatientRecordsHandler) Domain() models.DomainTag {
	return models.DomainPatientRecords
}

func (h *PatientRecordsHandler) Respond(ctx context.Context, session *models.Session, utterance string) (string, error) {
	patient, err := h.st.GetPatient(ctx, session.PatientID)
	if err != nil {
		slog.Error("PatientRecordsHandler patient lookup failed", "error", err, "patientID", session.PatientID)
		return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if patient == nil {
		return "I could not find your patient record. Please contact the clinic to register before using the assistant.", nil
	}

	norm := strings.ToLower(utterance)
	if strings.Contains(norm, "appointment") || strings.Contains(norm, "rendez-vous") || strings.Contains(norm, "مواعيد") {
		appts, err := h.engine.ListAppointments(ctx, session.PatientID)
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				return "", err
			}
			return "I could not list your appointments right now. Please try again.", nil
		}
		if len(appts) == 0 {
			return fmt.Sprintf("%s, you have no upcoming appointments.", patient.Name), nil
		}
		var lines []string
		for _, a := range appts {
			lines = append(lines, fmt.Sprintf("- %s at %s with %s (%s)", a.Date, a.Time, a.DoctorName, a.Service))
		}
		return fmt.Sprintf("%s, your appointments:\n%s", patient.Name, strings.Join(lines, "\n")), nil
	}

	return fmt.Sprintf(
		"Here is your record, %s:\nEmail: %s\nPhone: %s\nBirth date: %s\nAsk the front desk or use the patient portal to update any of these.",
		patient.Name, patient.Email, patient.Phone, patient.BirthDate,
	), nil
}
