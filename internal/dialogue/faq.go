package dialogue

import (
	"context"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// faqEntry pairs trigger phrases with a canned answer. The first entry whose
// phrase appears in the utterance wins.
type faqEntry struct {
	phrases []string
	answer  string
}

var faqEntries = []faqEntry{
	{
		phrases: []string{"service", "treatment", "soins", "traitement", "خدمات"},
		answer: "We offer orthodontics, prosthetics, and periodontology care, " +
			"including check-ups, cleanings, braces, crowns, and gum treatment.",
	},
	{
		phrases: []string{"doctor", "dentist", "who works", "médecin", "medecin", "dentiste", "طبيب"},
		answer: "Our doctors are Dr. Mohamed Tajmouati (Orthodontics), " +
			"Dr. Adil Tajmouati (Prosthetics), and Dr. Hanane Louizi (Periodontology).",
	},
	{
		phrases: []string{"hour", "open", "close", "when", "horaire", "ouvert", "fermé", "ferme", "توقيت"},
		answer: "We are open Monday to Friday from 8:00 to 18:00 and " +
			"Saturday from 9:00 to 13:00. We are closed on Sunday.",
	},
	{
		phrases: []string{"price", "cost", "fee", "how much", "prix", "tarif", "combien", "سعر", "ثمن"},
		answer: "Prices depend on the treatment. A standard consultation starts at 300 MAD; " +
			"we will give you a detailed quote after your first visit.",
	},
	{
		phrases: []string{"where", "address", "location", "adresse", "où", "ou se trouve", "عنوان"},
		answer:  "The clinic is located in downtown Casablanca. Call us for directions or parking information.",
	},
}

const faqDefaultAnswer = "I can help with questions about our services, doctors, " +
	"opening hours, and prices, or with booking an appointment. What would you like to know?"

// FAQHandler answers general clinic questions from a canned table. It is
// stateless: the same utterance always yields the same answer.
type FAQHandler struct{}

// NewFAQHandler creates the FAQ handler.
func NewFAQHandler() *FAQHandler {
	return &FAQHandler{}
}

// Domain returns the domain tag this handler serves.
func (h *FAQHandler) Domain() models.DomainTag {
	return models.DomainFAQ
}

// Respond matches the utterance against the FAQ table.
func (h *FAQHandler) Respond(ctx context.Context, session *models.Session, utterance string) (string, error) {
	norm := strings.ToLower(utterance)
	for _, entry := range faqEntries {
		for _, phrase := range entry.phrases {
			if strings.Contains(norm, phrase) {
				return entry.answer, nil
			}
		}
	}
	if IsGreeting(utterance) {
		return "Hello! Welcome to the clinic. " + faqDefaultAnswer, nil
	}
	return faqDefaultAnswer, nil
}
