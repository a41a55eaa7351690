package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// Coordinator is the dialogue entry point: it loads the session, routes the
// turn, dispatches the owning handler, and persists the updated state.
type Coordinator struct {
	sessions *SessionManager
	router   *Router
	handlers map[models.DomainTag]Handler
}

// NewCoordinator wires the router and handlers together. Every domain tag
// must have a registered handler.
func NewCoordinator(sessions *SessionManager, router *Router, handlers ...Handler) (*Coordinator, error) {
	byDomain := make(map[models.DomainTag]Handler, len(handlers))
	for _, h := range handlers {
		byDomain[h.Domain()] = h
	}
	for _, domain := range keywordPriority {
		if _, ok := byDomain[domain]; !ok {
			return nil, fmt.Errorf("no handler registered for domain %s", domain)
		}
	}
	return &Coordinator{sessions: sessions, router: router, handlers: byDomain}, nil
}

// HandleTurn processes one patient utterance and returns the reply.
func (c *Coordinator) HandleTurn(ctx context.Context, req models.TurnRequest) (*models.TurnReply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := c.sessions.Load(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	domain := c.router.Route(ctx, session, req.Message)
	handler := c.handlers[domain]
	slog.Debug("Coordinator dispatching turn", "patientID", req.PatientID, "domain", domain)

	reply, err := handler.Respond(ctx, session, req.Message)
	if err != nil {
		slog.Error("Coordinator handler failed", "error", err, "patientID", req.PatientID, "domain", domain)
		return nil, err
	}

	now := time.Now().Unix()
	session.ActiveDomain = domain
	session.History = append(session.History,
		models.SessionMessage{Sender: "patient", Body: req.Message, Time: now},
		models.SessionMessage{Sender: string(domain), Body: reply, Time: now},
	)
	if err := c.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return &models.TurnReply{Reply: reply, SenderDomain: string(domain)}, nil
}

// EndSession discards a patient's conversation state. Transport owns session
// teardown.
func (c *Coordinator) EndSession(ctx context.Context, patientID int) error {
	return c.sessions.Delete(ctx, patientID)
}

// Session exposes the stored session for inspection endpoints.
func (c *Coordinator) Session(ctx context.Context, patientID int) (*models.Session, error) {
	session, err := c.sessions.st.GetSession(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if session == nil {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}
