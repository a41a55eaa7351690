package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := scheduling.NewEngine(st)
	sessions := NewSessionManager(st)
	coord, err := NewCoordinator(sessions, NewRouter(nil),
		NewFAQHandler(),
		NewAvailabilityHandler(engine),
		NewPatientRecordsHandler(st, engine),
		NewBookingHandler(engine),
	)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return coord, st
}

func seedInventory(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	slots := []models.AvailabilitySlot{
		{DoctorID: 1, DoctorName: "Dr. Mohamed Tajmouati", Specialization: "Orthodontics", Timestamp: "15-12-2024 14:30", IsAvailable: true},
		{DoctorID: 1, DoctorName: "Dr. Mohamed Tajmouati", Specialization: "Orthodontics", Timestamp: "15-12-2024 09:00", IsAvailable: true},
		{DoctorID: 2, DoctorName: "Dr. Adil Tajmouati", Specialization: "Prosthetics", Timestamp: "15-12-2024 10:00", IsAvailable: true},
	}
	for _, slot := range slots {
		if err := st.UpsertSlot(ctx, slot); err != nil {
			t.Fatalf("UpsertSlot failed: %v", err)
		}
	}
	if _, err := st.CreatePatient(ctx, models.PatientRecord{
		Name: "Sara Alaoui", Email: "sara@example.com", Phone: "0612345678",
		BirthDate: "01-02-1990", Sex: "F",
	}); err != nil {
		t.Fatalf("CreatePatient failed: %v", err)
	}
}

func turn(t *testing.T, coord *Coordinator, patientID int, message string) *models.TurnReply {
	t.Helper()
	reply, err := coord.HandleTurn(context.Background(), models.TurnRequest{PatientID: patientID, Message: message})
	if err != nil {
		t.Fatalf("HandleTurn(%q) failed: %v", message, err)
	}
	return reply
}

func TestBookingSlotFillingEndToEnd(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	r := turn(t, coord, 1, "book appointment")
	if r.SenderDomain != string(models.DomainBooking) {
		t.Fatalf("expected booking domain, got %s", r.SenderDomain)
	}
	if !strings.Contains(r.Reply, "Which doctor") {
		t.Errorf("expected doctor prompt, got %q", r.Reply)
	}

	r = turn(t, coord, 1, "Dr. Mohamed Tajmouati")
	if !strings.Contains(r.Reply, "What date") {
		t.Errorf("expected date prompt, got %q", r.Reply)
	}

	r = turn(t, coord, 1, "15-12-2024")
	if !strings.Contains(r.Reply, "What time") {
		t.Errorf("expected time prompt, got %q", r.Reply)
	}

	r = turn(t, coord, 1, "14:30")
	if !strings.Contains(r.Reply, "confirmed") {
		t.Errorf("expected confirmation, got %q", r.Reply)
	}

	session, err := st.GetSession(ctx, 1)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.PendingFlow != models.FlowNone {
		t.Errorf("expected cleared flow after commit, got %s", session.PendingFlow)
	}

	slot, err := st.GetSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30")
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if slot.IsAvailable {
		t.Error("expected slot to be booked after confirmation")
	}
}

func TestStickyContinuationRoutesNoiseToBooking(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	// Open a booking flow waiting on a date.
	turn(t, coord, 1, "book appointment with Dr. Mohamed Tajmouati")

	r := turn(t, coord, 1, "xyz123")
	if r.SenderDomain != string(models.DomainBooking) {
		t.Errorf("noise during open flow should stay with booking, got %s", r.SenderDomain)
	}
	if !strings.Contains(r.Reply, "What date") {
		t.Errorf("expected date re-prompt, got %q", r.Reply)
	}

	session, err := st.GetSession(ctx, 1)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.PendingFlow != models.FlowBooking || session.Progress.Step != models.StepAwaitDate {
		t.Errorf("flow state should be unchanged by noise: %+v", session)
	}
	if session.Progress.Doctor != "Dr. Mohamed Tajmouati" {
		t.Errorf("collected doctor lost: %+v", session.Progress)
	}
}

func TestGreetingClearsPendingFlow(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	turn(t, coord, 1, "book appointment")
	r := turn(t, coord, 1, "hello")
	if r.SenderDomain != string(models.DomainFAQ) {
		t.Errorf("greeting should route to FAQ, got %s", r.SenderDomain)
	}

	session, err := st.GetSession(ctx, 1)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.PendingFlow != models.FlowNone {
		t.Errorf("greeting should clear the pending flow, got %s", session.PendingFlow)
	}
}

func TestFAQIsIdempotent(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)

	first := turn(t, coord, 1, "what are your opening hours?")
	second := turn(t, coord, 1, "what are your opening hours?")
	if first.Reply != second.Reply {
		t.Errorf("FAQ should be idempotent: %q vs %q", first.Reply, second.Reply)
	}
	if first.SenderDomain != string(models.DomainFAQ) {
		t.Errorf("expected FAQ domain, got %s", first.SenderDomain)
	}
	if !strings.Contains(first.Reply, "8:00 to 18:00") {
		t.Errorf("expected opening hours answer, got %q", first.Reply)
	}
}

func TestSingleTurnBookingCommits(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)

	r := turn(t, coord, 1, "book me with Dr. Adil Tajmouati on 15-12-2024 at 10:00")
	if !strings.Contains(r.Reply, "confirmed") {
		t.Errorf("fully specified booking should commit in one turn, got %q", r.Reply)
	}
}

func TestBookingRetryAfterSlotTaken(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	// Another patient takes 14:30 first.
	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", 2); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}

	r := turn(t, coord, 1, "book Dr. Mohamed Tajmouati on 15-12-2024 at 14:30")
	if !strings.Contains(r.Reply, "taken") {
		t.Errorf("expected slot-taken apology, got %q", r.Reply)
	}

	session, err := st.GetSession(ctx, 1)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.PendingFlow != models.FlowBooking || session.Progress.Step != models.StepAwaitTime {
		t.Errorf("flow should stay open awaiting another time, got %+v", session)
	}

	// Retry with the free slot succeeds without restarting the flow.
	r = turn(t, coord, 1, "09:00")
	if !strings.Contains(r.Reply, "confirmed") {
		t.Errorf("expected confirmation on retry, got %q", r.Reply)
	}
}

func TestCancelFlow(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", 1); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}

	r := turn(t, coord, 1, "cancel my appointment with Dr. Mohamed Tajmouati on 15-12-2024 at 14:30")
	if !strings.Contains(r.Reply, "cancelled") {
		t.Errorf("expected cancellation confirmation, got %q", r.Reply)
	}

	slot, err := st.GetSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30")
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if !slot.IsAvailable {
		t.Error("slot should be free again after cancellation")
	}
}

func TestRescheduleFlowStepwise(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 1); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}

	turn(t, coord, 1, "I need to reschedule my appointment with Dr. Mohamed Tajmouati on 15-12-2024 at 09:00")
	r := turn(t, coord, 1, "15-12-2024")
	if !strings.Contains(r.Reply, "What time") {
		t.Errorf("expected new-time prompt, got %q", r.Reply)
	}
	r = turn(t, coord, 1, "14:30")
	if !strings.Contains(r.Reply, "moved") {
		t.Errorf("expected reschedule confirmation, got %q", r.Reply)
	}

	old, err := st.GetSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00")
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if !old.IsAvailable {
		t.Error("old slot should be free after reschedule")
	}
}

func TestRescheduleIncompleteIsReportedHonestly(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 1); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}
	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", 2); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}

	turn(t, coord, 1, "reschedule my appointment with Dr. Mohamed Tajmouati on 15-12-2024 at 09:00")
	turn(t, coord, 1, "15-12-2024")
	r := turn(t, coord, 1, "14:30")
	if !strings.Contains(r.Reply, "could not be booked") {
		t.Errorf("incomplete reschedule must be reported, got %q", r.Reply)
	}
}

func TestAvailabilityQueryByDoctor(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)

	r := turn(t, coord, 1, "is Dr. Mohamed Tajmouati available on 15-12-2024?")
	if r.SenderDomain != string(models.DomainAvailability) {
		t.Errorf("expected availability domain, got %s", r.SenderDomain)
	}
	if !strings.Contains(r.Reply, "09:00") || !strings.Contains(r.Reply, "14:30") {
		t.Errorf("expected both free times listed, got %q", r.Reply)
	}
}

func TestAvailabilityExactTime(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 14:30", 2); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}
	r := turn(t, coord, 1, "is Dr. Mohamed Tajmouati free on 15-12-2024 at 14:30?")
	if !strings.Contains(r.Reply, "already booked") {
		t.Errorf("expected booked answer, got %q", r.Reply)
	}
}

func TestPatientRecordsListsAppointments(t *testing.T) {
	coord, st := newTestCoordinator(t)
	seedInventory(t, st)
	ctx := context.Background()

	if _, err := st.ReserveSlot(ctx, "Dr. Mohamed Tajmouati", "15-12-2024 09:00", 1); err != nil {
		t.Fatalf("ReserveSlot failed: %v", err)
	}
	r := turn(t, coord, 1, "show me my appointments please")
	if !strings.Contains(r.Reply, "Dr. Mohamed Tajmouati") || !strings.Contains(r.Reply, "09:00") {
		t.Errorf("expected appointment listing, got %q", r.Reply)
	}
	if !strings.Contains(r.Reply, "Sara Alaoui") {
		t.Errorf("expected patient name in listing, got %q", r.Reply)
	}
}

func TestClassifyByKeywordsTieBreak(t *testing.T) {
	cases := []struct {
		utterance string
		want      models.DomainTag
	}{
		{"I want to book an appointment", models.DomainBooking},
		{"je veux annuler mon rendez-vous", models.DomainBooking},
		{"what slots are available tomorrow", models.DomainAvailability},
		{"show my record", models.DomainPatientRecords},
		{"what are your prices", models.DomainFAQ},
		{"random gibberish", models.DomainFAQ},
		// Booking beats availability when both match.
		{"book whatever is available", models.DomainBooking},
	}
	for _, c := range cases {
		if got := ClassifyByKeywords(c.utterance); got != c.want {
			t.Errorf("ClassifyByKeywords(%q) = %s, want %s", c.utterance, got, c.want)
		}
	}
}

func TestExtractors(t *testing.T) {
	now := time.Date(2024, 12, 14, 10, 0, 0, 0, time.UTC)

	if d, ok := ExtractDate("see you on 15-12-2024", now); !ok || d != "15-12-2024" {
		t.Errorf("explicit date extraction failed: %q %v", d, ok)
	}
	if d, ok := ExtractDate("demain matin", now); !ok || d != "15-12-2024" {
		t.Errorf("relative date extraction failed: %q %v", d, ok)
	}
	if d, ok := ExtractDate("today please", now); !ok || d != "14-12-2024" {
		t.Errorf("today extraction failed: %q %v", d, ok)
	}
	if _, ok := ExtractDate("no date here", now); ok {
		t.Error("expected no date match")
	}

	if tm, ok := ExtractTime("at 9:30 maybe"); !ok || tm != "09:30" {
		t.Errorf("time normalization failed: %q %v", tm, ok)
	}
	if tm, ok := ExtractTime("in the afternoon"); !ok || tm != "14:00" {
		t.Errorf("afternoon bucket failed: %q %v", tm, ok)
	}
	if tm, ok := ExtractTime("le soir"); !ok || tm != "17:00" {
		t.Errorf("evening bucket failed: %q %v", tm, ok)
	}

	if doc, ok := ExtractDoctor("book with dr mohamed tajmouati"); !ok || doc != "Dr. Mohamed Tajmouati" {
		t.Errorf("doctor extraction failed: %q %v", doc, ok)
	}
	if doc, ok := ExtractDoctor("hanane please"); !ok || doc != "Dr. Hanane Louizi" {
		t.Errorf("doctor alias extraction failed: %q %v", doc, ok)
	}
	if _, ok := ExtractDoctor("any dentist"); ok {
		t.Error("expected no doctor match")
	}
}

func TestIsGreeting(t *testing.T) {
	for _, g := range []string{"hi", "Hello!", "BONJOUR", " salut ", "good morning"} {
		if !IsGreeting(g) {
			t.Errorf("expected %q to be a greeting", g)
		}
	}
	for _, g := range []string{"hello I want to book", "hi there friend"} {
		if IsGreeting(g) {
			t.Errorf("expected %q not to be a greeting", g)
		}
	}
}
