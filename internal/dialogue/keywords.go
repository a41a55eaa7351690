// Package dialogue routes patient turns to domain handlers and drives the
// multi-turn booking flows.
package dialogue

import (
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// greetings is the closed set of phrases that always route to FAQ and clear
// any pending flow. Matching is whole-message, case-insensitive.
var greetings = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
	"bonjour":        {},
	"salut":          {},
	"bonsoir":        {},
	"coucou":         {},
	"salam":          {},
	"سلام":           {},
	"مرحبا":          {},
}

// IsGreeting reports whether the whole utterance is a greeting phrase.
func IsGreeting(utterance string) bool {
	norm := strings.ToLower(strings.TrimSpace(utterance))
	norm = strings.TrimRight(norm, "!.?")
	norm = strings.TrimSpace(norm)
	_, ok := greetings[norm]
	return ok
}

// keywordRule is one row of the normalized keyword table.
type keywordRule struct {
	domain   models.DomainTag
	phrase   string
	language string // "en", "fr", or "ar"
}

// keywordRules maps phrases to domains across the three supported languages.
// Matching is case-insensitive substring.
var keywordRules = []keywordRule{
	// Booking: create, cancel, or move an appointment. Phrases are scoped so
	// "my appointments" still reads as a record listing.
	{models.DomainBooking, "book", "en"},
	{models.DomainBooking, "an appointment", "en"},
	{models.DomainBooking, "appointment with", "en"},
	{models.DomainBooking, "reserve", "en"},
	{models.DomainBooking, "cancel", "en"},
	{models.DomainBooking, "reschedule", "en"},
	{models.DomainBooking, "un rendez-vous", "fr"},
	{models.DomainBooking, "prendre rendez-vous", "fr"},
	{models.DomainBooking, "réserver", "fr"},
	{models.DomainBooking, "reserver", "fr"},
	{models.DomainBooking, "annuler", "fr"},
	{models.DomainBooking, "reporter", "fr"},
	{models.DomainBooking, "موعد", "ar"},
	{models.DomainBooking, "حجز", "ar"},
	{models.DomainBooking, "إلغاء", "ar"},
	{models.DomainBooking, "الغاء", "ar"},

	// Availability: read-only schedule questions.
	{models.DomainAvailability, "available", "en"},
	{models.DomainAvailability, "availability", "en"},
	{models.DomainAvailability, "free", "en"},
	{models.DomainAvailability, "open slot", "en"},
	{models.DomainAvailability, "schedule", "en"},
	{models.DomainAvailability, "disponible", "fr"},
	{models.DomainAvailability, "disponibilité", "fr"},
	{models.DomainAvailability, "disponibilite", "fr"},
	{models.DomainAvailability, "créneau", "fr"},
	{models.DomainAvailability, "creneau", "fr"},
	{models.DomainAvailability, "متاح", "ar"},
	{models.DomainAvailability, "متوفر", "ar"},

	// Patient records: profile and appointment listings.
	{models.DomainPatientRecords, "my record", "en"},
	{models.DomainPatientRecords, "my file", "en"},
	{models.DomainPatientRecords, "my profile", "en"},
	{models.DomainPatientRecords, "my appointments", "en"},
	{models.DomainPatientRecords, "my info", "en"},
	{models.DomainPatientRecords, "update my", "en"},
	{models.DomainPatientRecords, "mon dossier", "fr"},
	{models.DomainPatientRecords, "mes rendez-vous", "fr"},
	{models.DomainPatientRecords, "mes informations", "fr"},
	{models.DomainPatientRecords, "ملفي", "ar"},
	{models.DomainPatientRecords, "مواعيدي", "ar"},
}

// keywordPriority breaks ties when phrases from several domains match.
var keywordPriority = []models.DomainTag{
	models.DomainBooking,
	models.DomainAvailability,
	models.DomainPatientRecords,
	models.DomainFAQ,
}

// ClassifyByKeywords returns the highest-priority domain whose phrase table
// matches the utterance, defaulting to FAQ.
func ClassifyByKeywords(utterance string) models.DomainTag {
	norm := strings.ToLower(utterance)
	matched := make(map[models.DomainTag]bool)
	for _, rule := range keywordRules {
		if strings.Contains(norm, rule.phrase) {
			matched[rule.domain] = true
		}
	}
	for _, domain := range keywordPriority {
		if matched[domain] {
			return domain
		}
	}
	return models.DomainFAQ
}
