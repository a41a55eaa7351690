package genai

import (
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, c.model)
	}

	c, err = NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != "gpt-4o" {
		t.Errorf("expected model override, got %q", c.model)
	}
}

func TestParseClassification(t *testing.T) {
	tag, err := parseClassification(`{"domain": "booking", "reasoning": "wants an appointment"}`)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if tag != models.DomainBooking {
		t.Errorf("expected booking, got %s", tag)
	}
}

func TestParseClassificationRejectsUnknownDomain(t *testing.T) {
	if _, err := parseClassification(`{"domain": "smalltalk", "reasoning": "x"}`); err == nil {
		t.Error("expected error for unknown domain")
	}
}

func TestParseClassificationRejectsMalformedJSON(t *testing.T) {
	if _, err := parseClassification(`not json`); err == nil {
		t.Error("expected error for malformed payload")
	}
}
