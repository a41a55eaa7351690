package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

// SessionManager loads and persists per-patient conversation state.
type SessionManager struct {
	st store.Store
}

// NewSessionManager creates a session manager backed by the given store.
func NewSessionManager(st store.Store) *SessionManager {
	return &SessionManager{st: st}
}

// Load returns the session for a patient, creating a fresh one if none is
// stored yet.
func (m *SessionManager) Load(ctx context.Context, patientID int) (*models.Session, error) {
	session, err := m.st.GetSession(ctx, patientID)
	if err != nil {
		slog.Error("SessionManager Load failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if session == nil {
		now := time.Now()
		session = &models.Session{
			PatientID:   patientID,
			PendingFlow: models.FlowNone,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		slog.Debug("SessionManager created new session", "patientID", patientID)
	}
	return session, nil
}

// Save persists a session, bumping its update time.
func (m *SessionManager) Save(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	if err := m.st.SaveSession(ctx, *session); err != nil {
		slog.Error("SessionManager Save failed", "error", err, "patientID", session.PatientID)
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a patient's session.
func (m *SessionManager) Delete(ctx context.Context, patientID int) error {
	if err := m.st.DeleteSession(ctx, patientID); err != nil {
		slog.Error("SessionManager Delete failed", "error", err, "patientID", patientID)
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}
