// Package genai provides the optional OpenAI-backed intent classifier.
//
// The classifier is structured-output only: it returns one of the four
// domain tags plus a short reasoning string. Running without an API key is a
// supported configuration; the dialogue router falls back to its keyword
// tables when no classifier is wired.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model override is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// Opts holds configuration options for the classifier client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the classifier client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client classifies utterances into dialogue domains via OpenAI structured
// output.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a classifier client. An API key is required; callers
// that have none should not construct a client at all.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewClient invoked", "APIKey_set", cfg.APIKey != "", "model", cfg.Model)

	if cfg.APIKey == "" {
		slog.Error("GenAI API key not set")
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}, nil
}

const classifierSystemPrompt = `You route messages for a dental clinic assistant.
Classify the patient's latest message into exactly one domain:
- "faq": general questions about the clinic (services, doctors, hours, prices, location)
- "availability": read-only questions about free or booked appointment slots
- "patient_records": questions about the patient's own record or appointment list
- "booking": requests to book, cancel, or reschedule an appointment
Messages may be in English, French, or Arabic.`

// classification is the structured output contract.
type classification struct {
	Domain    string `json:"domain"`
	Reasoning string `json:"reasoning"`
}

var classificationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"domain": map[string]interface{}{
			"type": "string",
			"enum": []string{"faq", "availability", "patient_records", "booking"},
		},
		"reasoning": map[string]interface{}{
			"type":        "string",
			"description": "One sentence explaining the choice.",
		},
	},
	"required":             []string{"domain", "reasoning"},
	"additionalProperties": false,
}

// historyTailLimit bounds how much conversation context is sent per call.
const historyTailLimit = 10

// Classify returns the domain for an utterance given recent history.
func (c *Client) Classify(ctx context.Context, history []models.SessionMessage, utterance string) (models.DomainTag, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifierSystemPrompt),
	}
	tail := history
	if len(tail) > historyTailLimit {
		tail = tail[len(tail)-historyTailLimit:]
	}
	for _, msg := range tail {
		if msg.Sender == "patient" {
			messages = append(messages, openai.UserMessage(msg.Body))
		} else {
			messages = append(messages, openai.AssistantMessage(msg.Body))
		}
	}
	messages = append(messages, openai.UserMessage(utterance))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "domain_classification",
					Description: openai.String("The dialogue domain for the latest patient message"),
					Schema:      classificationSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		slog.Error("GenAI Classify request failed", "error", err)
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classification returned no choices")
	}

	tag, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("GenAI Classify parse failed", "error", err)
		return "", err
	}
	slog.Debug("GenAI Classify succeeded", "domain", tag)
	return tag, nil
}

// parseClassification decodes the structured output and validates the tag.
func parseClassification(content string) (models.DomainTag, error) {
	var result classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return "", fmt.Errorf("failed to decode classification: %w", err)
	}
	tag := models.DomainTag(result.Domain)
	if !models.IsValidDomainTag(tag) {
		return "", fmt.Errorf("classification returned unknown domain %q", result.Domain)
	}
	return tag, nil
}
