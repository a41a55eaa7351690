package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/dialogue"
	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

const (
	unknownSenderReply = "This number is not linked to a patient record. Please contact the clinic to register."
	transientReply     = "Sorry, something went wrong on our side. Please try again in a moment."
)

// Responder turns inbound channel messages into dialogue turns and sends the
// reply back to the originating number.
type Responder struct {
	coordinator *dialogue.Coordinator
	sender      Sender
	st          store.Store
}

// NewResponder creates a channel responder.
func NewResponder(coordinator *dialogue.Coordinator, sender Sender, st store.Store) *Responder {
	return &Responder{coordinator: coordinator, sender: sender, st: st}
}

// normalizePhone strips the channel prefix and non-digit characters so the
// webhook sender matches the stored patient phone format.
func normalizePhone(raw string) string {
	raw = strings.TrimPrefix(raw, "whatsapp:")
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HandleInbound processes one webhook message. The reply, including the
// unknown-sender and transient-failure messages, goes back over the channel;
// an error is returned only when the reply itself could not be sent.
func (r *Responder) HandleInbound(ctx context.Context, from, body string) error {
	phone := normalizePhone(from)
	slog.Debug("Responder HandleInbound", "phone_digits", len(phone), "bodyLength", len(body))

	patient, err := r.st.FindPatientByPhone(ctx, phone)
	if err != nil {
		slog.Error("Responder patient lookup failed", "error", err)
		return r.sender.SendMessage(ctx, from, transientReply)
	}
	if patient == nil {
		slog.Debug("Responder inbound from unknown number")
		return r.sender.SendMessage(ctx, from, unknownSenderReply)
	}

	reply, err := r.coordinator.HandleTurn(ctx, models.TurnRequest{PatientID: patient.ID, Message: body})
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			slog.Error("Responder turn failed on store", "error", err, "patientID", patient.ID)
			return r.sender.SendMessage(ctx, from, transientReply)
		}
		slog.Error("Responder turn rejected", "error", err, "patientID", patient.ID)
		return r.sender.SendMessage(ctx, from, fmt.Sprintf("Sorry, I could not process that: %v", err))
	}

	return r.sender.SendMessage(ctx, from, reply.Reply)
}
