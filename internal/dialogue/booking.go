package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
)

type nowFunc func() time.Time

func defaultNow() time.Time { return time.Now() }

// BookingHandler drives the multi-turn booking, cancellation, and
// reschedule flows. It is the only writer of a session's pending flow and
// slot progress.
type BookingHandler struct {
	engine *scheduling.Engine
	now    nowFunc
}

// NewBookingHandler creates the booking handler.
func NewBookingHandler(engine *scheduling.Engine) *BookingHandler {
	return &BookingHandler{engine: engine, now: defaultNow}
}

func (h *BookingHandler) Domain() models.DomainTag {
	return models.DomainBooking
}

// detectFlow picks the flow an opening utterance asks for. Reschedule is
// checked before cancel so "cancel and rebook" phrasing still books.
func detectFlow(utterance string) models.PendingFlow {
	norm := strings.ToLower(utterance)
	switch {
	case strings.Contains(norm, "reschedule"), strings.Contains(norm, "reporter"),
		strings.Contains(norm, "move my"), strings.Contains(norm, "تغيير"):
		return models.FlowReschedule
	case strings.Contains(norm, "cancel"), strings.Contains(norm, "annuler"),
		strings.Contains(norm, "إلغاء"), strings.Contains(norm, "الغاء"):
		return models.FlowCancel
	default:
		return models.FlowBooking
	}
}

func (h *BookingHandler) Respond(ctx context.Context, session *models.Session, utterance string) (string, error) {
	p := &session.Progress

	if session.PendingFlow == models.FlowNone {
		session.PendingFlow = detectFlow(utterance)
		*p = models.SlotProgress{}
		// Harvest every parameter present in the opening utterance so a
		// fully specified request commits in a single turn.
		if doctor, ok := ExtractDoctor(utterance); ok {
			p.Doctor = doctor
		}
		if date, ok := ExtractDate(utterance, h.now()); ok {
			p.Date = date
		}
		if tm, ok := ExtractTime(utterance); ok {
			p.Time = tm
		}
		slog.Debug("BookingHandler flow opened", "flow", session.PendingFlow, "patientID", session.PatientID)
	} else {
		// Sticky continuation: fill only the awaited parameter. A failed
		// extraction leaves the state unchanged and re-prompts.
		switch p.Step {
		case models.StepAwaitDoctor:
			if doctor, ok := ExtractDoctor(utterance); ok {
				p.Doctor = doctor
			}
		case models.StepAwaitDate:
			if date, ok := ExtractDate(utterance, h.now()); ok {
				p.Date = date
			}
		case models.StepAwaitTime:
			if tm, ok := ExtractTime(utterance); ok {
				p.Time = tm
			}
		case models.StepAwaitNewDate:
			if date, ok := ExtractDate(utterance, h.now()); ok {
				p.NewDate = date
			}
		case models.StepAwaitNewTime:
			if tm, ok := ExtractTime(utterance); ok {
				p.NewTime = tm
			}
		}
	}

	return h.advance(ctx, session)
}

// advance moves the cursor to the first missing parameter, or commits when
// everything is collected.
func (h *BookingHandler) advance(ctx context.Context, session *models.Session) (string, error) {
	p := &session.Progress

	switch {
	case p.Doctor == "":
		p.Step = models.StepAwaitDoctor
		return "Which doctor would you like? Our doctors are Dr. Mohamed Tajmouati (Orthodontics), Dr. Adil Tajmouati (Prosthetics), and Dr. Hanane Louizi (Periodontology).", nil
	case p.Date == "":
		p.Step = models.StepAwaitDate
		return fmt.Sprintf("What date works for you with %s? Please give it as DD-MM-YYYY, or say today or tomorrow.", p.Doctor), nil
	case p.Time == "":
		p.Step = models.StepAwaitTime
		return fmt.Sprintf("What time on %s? Please give it as HH:MM, or say morning, afternoon, or evening.", p.Date), nil
	}

	if session.PendingFlow == models.FlowReschedule {
		switch {
		case p.NewDate == "":
			p.Step = models.StepAwaitNewDate
			return "What new date would you like? Please give it as DD-MM-YYYY, or say today or tomorrow.", nil
		case p.NewTime == "":
			p.Step = models.StepAwaitNewTime
			return fmt.Sprintf("What time on %s? Please give it as HH:MM, or say morning, afternoon, or evening.", p.NewDate), nil
		}
	}

	return h.commit(ctx, session)
}

// commit runs the collected parameters against the scheduling engine.
func (h *BookingHandler) commit(ctx context.Context, session *models.Session) (string, error) {
	p := &session.Progress
	timestamp := models.JoinDateTime(p.Date, p.Time)

	switch session.PendingFlow {
	case models.FlowBooking:
		appt, err := h.engine.Reserve(ctx, p.Doctor, timestamp, session.PatientID)
		switch {
		case errors.Is(err, models.ErrSlotAlreadyBooked):
			p.Step = models.StepAwaitTime
			p.Time = ""
			return fmt.Sprintf("Sorry, %s at %s on %s was just taken. What other time would work?", p.Doctor, timestamp[11:], p.Date), nil
		case errors.Is(err, models.ErrSlotNotFound):
			p.Step = models.StepAwaitTime
			p.Time = ""
			return fmt.Sprintf("%s does not have a slot at that time on %s. What other time would work?", p.Doctor, p.Date), nil
		case err != nil:
			return "", err
		}
		doctor := p.Doctor
		clearFlow(session)
		return fmt.Sprintf("Your appointment with %s on %s at %s is confirmed. See you then!", doctor, appt.Date, appt.Time), nil

	case models.FlowCancel:
		err := h.engine.Release(ctx, p.Doctor, timestamp, session.PatientID)
		if errors.Is(err, models.ErrAppointmentNotFound) {
			clearFlow(session)
			return "I could not find that appointment under your name, so there is nothing to cancel.", nil
		}
		if err != nil {
			return "", err
		}
		doctor, date, tm := p.Doctor, p.Date, p.Time
		clearFlow(session)
		return fmt.Sprintf("Your appointment with %s on %s at %s has been cancelled.", doctor, date, tm), nil

	case models.FlowReschedule:
		newTimestamp := models.JoinDateTime(p.NewDate, p.NewTime)
		appt, err := h.engine.Reschedule(ctx, p.Doctor, timestamp, newTimestamp, session.PatientID)
		switch {
		case errors.Is(err, models.ErrAppointmentNotFound):
			clearFlow(session)
			return "I could not find the original appointment under your name, so nothing was changed.", nil
		case errors.Is(err, models.ErrRescheduleIncomplete):
			clearFlow(session)
			return "I cancelled your original appointment, but the new time could not be booked and your old slot may already be taken. Please book a fresh appointment.", nil
		case err != nil:
			return "", err
		}
		doctor := p.Doctor
		clearFlow(session)
		return fmt.Sprintf("Your appointment with %s has been moved to %s at %s.", doctor, appt.Date, appt.Time), nil
	}

	clearFlow(session)
	return "I lost track of what we were doing. Could you start over?", nil
}

// clearFlow resets the session's pending flow and progress.
func clearFlow(session *models.Session) {
	session.PendingFlow = models.FlowNone
	session.Progress = models.SlotProgress{}
}
