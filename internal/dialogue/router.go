package dialogue

import (
	"context"
	"log/slog"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// Classifier is an optional structured intent classifier. The keyword table
// is a fully specified alternative, not a degraded mode.
type Classifier interface {
	Classify(ctx context.Context, history []models.SessionMessage, utterance string) (models.DomainTag, error)
}

// Router decides which domain answers a turn.
type Router struct {
	classifier Classifier
}

// NewRouter creates a router. classifier may be nil.
func NewRouter(classifier Classifier) *Router {
	return &Router{classifier: classifier}
}

// Route applies the routing priority: greetings reset the conversation and
// go to FAQ; an open flow is sticky and owns the turn; then the structured
// classifier if configured; then the keyword tables with FAQ as default.
func (r *Router) Route(ctx context.Context, session *models.Session, utterance string) models.DomainTag {
	if IsGreeting(utterance) {
		if session.PendingFlow != models.FlowNone {
			slog.Debug("Router greeting cleared pending flow", "flow", session.PendingFlow, "patientID", session.PatientID)
			clearFlow(session)
		}
		return models.DomainFAQ
	}

	if session.PendingFlow != models.FlowNone {
		return session.PendingFlow.FlowDomain()
	}

	if r.classifier != nil {
		tag, err := r.classifier.Classify(ctx, session.History, utterance)
		if err == nil && models.IsValidDomainTag(tag) {
			slog.Debug("Router classifier decision", "domain", tag, "patientID", session.PatientID)
			return tag
		}
		if err != nil {
			slog.Warn("Router classifier failed, falling back to keywords", "error", err, "patientID", session.PatientID)
		}
	}

	return ClassifyByKeywords(utterance)
}
