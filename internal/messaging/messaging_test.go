package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/dialogue"
	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

func newTestResponder(t *testing.T) (*Responder, *MockSender, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := scheduling.NewEngine(st)
	coord, err := dialogue.NewCoordinator(dialogue.NewSessionManager(st), dialogue.NewRouter(nil),
		dialogue.NewFAQHandler(),
		dialogue.NewAvailabilityHandler(engine),
		dialogue.NewPatientRecordsHandler(st, engine),
		dialogue.NewBookingHandler(engine),
	)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	sender := NewMockSender()
	return NewResponder(coord, sender, st), sender, st
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"whatsapp:+212612345678": "212612345678",
		"+212612345678":          "212612345678",
		"0612345678":             "0612345678",
		"06 12 34 56 78":         "0612345678",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandleInboundUnknownNumber(t *testing.T) {
	responder, sender, _ := newTestResponder(t)

	if err := responder.HandleInbound(context.Background(), "+212600000000", "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if len(sender.SentMessages) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(sender.SentMessages))
	}
	if sender.SentMessages[0].Body != unknownSenderReply {
		t.Errorf("expected unknown-sender reply, got %q", sender.SentMessages[0].Body)
	}
}

func TestHandleInboundRoutesTurn(t *testing.T) {
	responder, sender, st := newTestResponder(t)
	ctx := context.Background()

	if _, err := st.CreatePatient(ctx, models.PatientRecord{
		Name: "Sara Alaoui", Email: "sara@example.com", Phone: "212612345678",
		BirthDate: "01-02-1990", Sex: "F",
	}); err != nil {
		t.Fatalf("CreatePatient failed: %v", err)
	}

	if err := responder.HandleInbound(ctx, "whatsapp:+212612345678", "what are your opening hours?"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if len(sender.SentMessages) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(sender.SentMessages))
	}
	msg := sender.SentMessages[0]
	if msg.To != "whatsapp:+212612345678" {
		t.Errorf("reply should go back to the originating address, got %q", msg.To)
	}
	if !strings.Contains(msg.Body, "8:00 to 18:00") {
		t.Errorf("expected opening hours reply, got %q", msg.Body)
	}
}

func TestHandleInboundCarriesFlowAcrossMessages(t *testing.T) {
	responder, sender, st := newTestResponder(t)
	ctx := context.Background()

	if _, err := st.CreatePatient(ctx, models.PatientRecord{
		Name: "Omar Idrissi", Email: "omar@example.com", Phone: "212698765432",
		BirthDate: "03-04-1985", Sex: "M",
	}); err != nil {
		t.Fatalf("CreatePatient failed: %v", err)
	}
	if err := st.UpsertSlot(ctx, models.AvailabilitySlot{
		DoctorID: 1, DoctorName: "Dr. Mohamed Tajmouati", Specialization: "Orthodontics",
		Timestamp: "15-12-2024 14:30", IsAvailable: true,
	}); err != nil {
		t.Fatalf("UpsertSlot failed: %v", err)
	}

	for _, msg := range []string{"book an appointment", "Dr. Mohamed Tajmouati", "15-12-2024", "14:30"} {
		if err := responder.HandleInbound(ctx, "+212698765432", msg); err != nil {
			t.Fatalf("HandleInbound(%q) failed: %v", msg, err)
		}
	}
	last := sender.SentMessages[len(sender.SentMessages)-1]
	if !strings.Contains(last.Body, "confirmed") {
		t.Errorf("expected booking confirmation over the channel, got %q", last.Body)
	}
}

func TestNewTwilioClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550001111")); err != nil {
		t.Errorf("expected client construction to succeed, got %v", err)
	}
}
