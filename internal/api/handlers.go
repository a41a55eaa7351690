package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// httpStatusFor maps turn-processing errors onto status codes. Validation
// problems are the caller's fault; only a dead store is a server failure.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInvalidPatientID), errors.Is(err, models.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPatientNotFound), errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.turnHandler: processing turn request")

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	reply, err := s.coordinator.HandleTurn(r.Context(), req)
	if err != nil {
		slog.Warn("Server.turnHandler: turn failed", "error", err, "patientID", req.PatientID)
		writeJSONResponse(w, httpStatusFor(err), models.Error(err.Error()))
		return
	}

	slog.Debug("Server.turnHandler: turn answered", "patientID", req.PatientID, "domain", reply.SenderDomain)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

func (s *Server) createPatientHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var patient models.PatientRecord
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		slog.Warn("Server.createPatientHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := patient.Validate(); err != nil {
		slog.Warn("Server.createPatientHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	id, err := s.st.CreatePatient(r.Context(), patient)
	if err != nil {
		slog.Error("Server.createPatientHandler: store failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create patient"))
		return
	}

	slog.Info("Server.createPatientHandler: patient created", "patientID", id)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Patient created", map[string]int{"id": id}))
}

// patientIDFromPath parses the {id} path segment.
func patientIDFromPath(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, models.ErrInvalidPatientID
	}
	return id, nil
}

func (s *Server) getPatientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := patientIDFromPath(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	patient, err := s.st.GetPatient(r.Context(), id)
	if err != nil {
		slog.Error("Server.getPatientHandler: store failed", "error", err, "patientID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load patient"))
		return
	}
	if patient == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(patient))
}

func (s *Server) updatePatientHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, err := patientIDFromPath(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	var update models.PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Server.updatePatientHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	// Validate the record as it would look after the update.
	patient, err := s.st.GetPatient(r.Context(), id)
	if err != nil {
		slog.Error("Server.updatePatientHandler: store failed", "error", err, "patientID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load patient"))
		return
	}
	if patient == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
		return
	}
	preview := *patient
	update.ApplyTo(&preview)
	if err := preview.Validate(); err != nil {
		slog.Warn("Server.updatePatientHandler: validation failed", "error", err, "patientID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.UpdatePatient(r.Context(), id, update); err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
			return
		}
		slog.Error("Server.updatePatientHandler: store failed", "error", err, "patientID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update patient"))
		return
	}
	slog.Info("Server.updatePatientHandler: patient updated", "patientID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Patient updated", nil))
}

func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := patientIDFromPath(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	appts, err := s.engine.ListAppointments(r.Context(), id)
	if err != nil {
		slog.Error("Server.appointmentsHandler: engine failed", "error", err, "patientID", id)
		writeJSONResponse(w, httpStatusFor(err), models.Error("Failed to list appointments"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appts))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := patientIDFromPath(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	session, err := s.coordinator.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getSessionHandler: lookup failed", "error", err, "patientID", id)
		writeJSONResponse(w, httpStatusFor(err), models.Error("Failed to load session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := patientIDFromPath(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.coordinator.EndSession(r.Context(), id); err != nil {
		slog.Error("Server.deleteSessionHandler: teardown failed", "error", err, "patientID", id)
		writeJSONResponse(w, httpStatusFor(err), models.Error("Failed to end session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session ended", nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// twilioWebhookHandler accepts Twilio's inbound message callback. The reply
// is sent asynchronously through the messaging client; the webhook response
// itself is empty.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.responder == nil {
		slog.Warn("Server.twilioWebhookHandler: no messaging channel configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Messaging channel not configured"))
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("From and Body are required"))
		return
	}

	if err := s.responder.HandleInbound(r.Context(), from, body); err != nil {
		slog.Error("Server.twilioWebhookHandler: reply delivery failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to deliver reply"))
		return
	}
	w.WriteHeader(http.StatusOK)
}
