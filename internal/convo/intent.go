package convo

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Intent is the coarse classification of one user utterance, used by the
// text-only conversation path when no tool call arrives.
type Intent string

const (
	IntentNone              Intent = "none"
	IntentGoodbye           Intent = "goodbye"
	IntentAppointment       Intent = "appointment"
	IntentNameChange        Intent = "name_change"
	IntentEmailChange       Intent = "email_change"
	IntentFollowUpPositive  Intent = "follow_up_positive"
	IntentFollowUpAppointment Intent = "follow_up_appointment"
)

// Classification is an intent plus a confidence in [0, 1].
type Classification struct {
	Intent     Intent
	Confidence float64
}

// fuzzyThreshold is the Jaro-Winkler similarity above which a word counts as
// a keyword hit, tolerating transcription slips ("apointment").
const fuzzyThreshold = 0.92

type intentFamily struct {
	intent   Intent
	patterns []*regexp.Regexp
	keywords []string
}

var intentFamilies = []intentFamily{
	{
		intent: IntentGoodbye,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(good\s?bye|bye|see you|hang up|that'?s all|that is all)\b`),
			regexp.MustCompile(`(?i)\bno more questions\b`),
			regexp.MustCompile(`(?i)\b(thanks|thank you).{0,20}\b(bye|all|done)\b`),
		},
		keywords: []string{"goodbye", "bye"},
	},
	{
		intent: IntentAppointment,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(book|schedule|set up|make|arrange)\b.{0,30}\b(appointment|meeting|session|call|demo)\b`),
			regexp.MustCompile(`(?i)\bappointment\b`),
		},
		keywords: []string{"appointment", "schedule", "booking"},
	},
	{
		intent: IntentNameChange,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(my name is(n'?t| not)? (actually |really )?|change my name|name is wrong|it'?s spell?ed)\b`),
		},
	},
	{
		intent: IntentEmailChange,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(change|update|wrong|correct)\b.{0,20}\bemail\b`),
			regexp.MustCompile(`(?i)\bemail\b.{0,20}\b(wrong|incorrect)\b`),
		},
	},
}

var followUpFamilies = []intentFamily{
	{
		intent: IntentFollowUpAppointment,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(yes|yeah|sure|ok(ay)?)\b.{0,30}\b(appointment|book|schedule|demo)\b`),
			regexp.MustCompile(`(?i)\b(book|schedule)\b`),
		},
		keywords: []string{"appointment", "schedule"},
	},
	{
		intent: IntentFollowUpPositive,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|sure|ok(ay)?|sounds good|please|go ahead)\b`),
		},
	},
}

// Classify matches text against the intent families and returns the primary
// intent with a confidence derived from match count and utterance length.
// When awaitingFollowUp is set, the follow-up families are consulted first
// so a bare "yes" resolves against the pending offer.
func Classify(text string, awaitingFollowUp bool) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{Intent: IntentNone}
	}

	if awaitingFollowUp {
		if c := classifyAgainst(text, followUpFamilies); c.Intent != IntentNone {
			return c
		}
	}
	return classifyAgainst(text, intentFamilies)
}

func classifyAgainst(text string, families []intentFamily) Classification {
	best := Classification{Intent: IntentNone}
	words := strings.Fields(strings.ToLower(text))

	for _, fam := range families {
		hits := 0
		for _, p := range fam.patterns {
			if p.MatchString(text) {
				hits++
			}
		}
		for _, kw := range fam.keywords {
			for _, w := range words {
				if w != kw && matchr.JaroWinkler(w, kw, false) >= fuzzyThreshold {
					hits++
					break
				}
			}
		}
		if hits == 0 {
			continue
		}
		conf := confidence(hits, len(words))
		if conf > best.Confidence {
			best = Classification{Intent: fam.intent, Confidence: conf}
		}
	}
	return best
}

// confidence grows with match count and shrinks as the utterance gets
// longer, so a short direct "book an appointment" outranks a rambling
// sentence that happens to mention one keyword.
func confidence(hits, words int) float64 {
	c := 0.5 + 0.2*float64(hits)
	if words > 12 {
		c -= 0.1
	}
	if words <= 4 {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
