package dialogue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// doctorAlias maps a lowercase name fragment to the canonical doctor name.
// Longer aliases are listed first so "mohamed tajmouati" wins over "tajmouati".
type doctorAlias struct {
	alias     string
	canonical string
}

var doctorAliases = []doctorAlias{
	{"mohamed tajmouati", "Dr. Mohamed Tajmouati"},
	{"adil tajmouati", "Dr. Adil Tajmouati"},
	{"hanane louizi", "Dr. Hanane Louizi"},
	{"mohamed", "Dr. Mohamed Tajmouati"},
	{"adil", "Dr. Adil Tajmouati"},
	{"hanane", "Dr. Hanane Louizi"},
	{"louizi", "Dr. Hanane Louizi"},
}

// specializations known to the clinic, used by availability queries.
var specializationAliases = map[string]string{
	"orthodontics":   "Orthodontics",
	"orthodontie":    "Orthodontics",
	"prosthetics":    "Prosthetics",
	"prothèse":       "Prosthetics",
	"prothese":       "Prosthetics",
	"periodontology": "Periodontology",
	"parodontologie": "Periodontology",
}

var (
	dateInTextRe = regexp.MustCompile(`\b(\d{2}-\d{2}-\d{4})\b`)
	timeInTextRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// ExtractDoctor finds a known doctor mentioned in the utterance and returns
// the canonical name.
func ExtractDoctor(utterance string) (string, bool) {
	norm := strings.ToLower(utterance)
	for _, da := range doctorAliases {
		if strings.Contains(norm, da.alias) {
			return da.canonical, true
		}
	}
	return "", false
}

// ExtractSpecialization finds a known specialization in the utterance.
func ExtractSpecialization(utterance string) (string, bool) {
	norm := strings.ToLower(utterance)
	for alias, canonical := range specializationAliases {
		if strings.Contains(norm, alias) {
			return canonical, true
		}
	}
	return "", false
}

// ExtractDate finds an explicit DD-MM-YYYY date or a localized relative term
// (today/tomorrow) in the utterance, resolved against now.
func ExtractDate(utterance string, now time.Time) (string, bool) {
	if m := dateInTextRe.FindStringSubmatch(utterance); m != nil {
		if models.ValidateDate(m[1]) == nil {
			return m[1], true
		}
	}
	norm := strings.ToLower(utterance)
	switch {
	case strings.Contains(norm, "tomorrow"), strings.Contains(norm, "demain"), strings.Contains(norm, "غدا"):
		return now.AddDate(0, 0, 1).Format(models.DateLayout), true
	case strings.Contains(norm, "today"), strings.Contains(norm, "aujourd'hui"), strings.Contains(norm, "aujourdhui"), strings.Contains(norm, "اليوم"):
		return now.Format(models.DateLayout), true
	}
	return "", false
}

// ExtractTime finds an explicit HH:MM time or a localized day-part bucket
// (morning 09:00, afternoon 14:00, evening 17:00) in the utterance.
func ExtractTime(utterance string) (string, bool) {
	if m := timeInTextRe.FindStringSubmatch(utterance); m != nil {
		hour := m[1]
		if len(hour) == 1 {
			hour = "0" + hour
		}
		tm := fmt.Sprintf("%s:%s", hour, m[2])
		if models.ValidateTime(tm) == nil {
			return tm, true
		}
	}
	norm := strings.ToLower(utterance)
	switch {
	case strings.Contains(norm, "morning"), strings.Contains(norm, "matin"), strings.Contains(norm, "صباح"):
		return "09:00", true
	case strings.Contains(norm, "afternoon"), strings.Contains(norm, "après-midi"), strings.Contains(norm, "apres-midi"), strings.Contains(norm, "ظهر"):
		return "14:00", true
	case strings.Contains(norm, "evening"), strings.Contains(norm, "soir"), strings.Contains(norm, "مساء"):
		return "17:00", true
	}
	return "", false
}
