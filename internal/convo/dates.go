package convo

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dateLayouts are the accepted spoken and written date forms, tried in
// order. Everything else is rejected with guidance.
var dateLayouts = []string{
	"2006-01-02",      // ISO
	"1/2/2006",        // M/D/YYYY
	"January 2, 2006", // Month D, YYYY
	"January 2 2006",
	"2 January 2006", // D Month YYYY
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)

// ParseDate parses caller-provided date text into midnight in loc. Ordinal
// suffixes ("June 3rd") and mixed casing are tolerated.
func ParseDate(text string, loc *time.Location) (time.Time, error) {
	cleaned := normalizeDateText(text)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("convo: unrecognised date %q", text)
}

func normalizeDateText(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, ".")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")

	// Month names must be capitalised for time.Parse.
	words := strings.Split(s, " ")
	for i, w := range words {
		if len(w) > 0 && w[0] >= 'a' && w[0] <= 'z' {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

var clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|AM|PM|a\.m\.|p\.m\.)?$`)

// ParseClockTime parses caller-provided time text ("2 PM", "2:30pm",
// "14:00") into the 24h "HH:MM" form plus a spoken display form.
func ParseClockTime(text string) (value, display string, err error) {
	s := strings.TrimSpace(strings.ToLower(text))
	s = strings.ReplaceAll(s, "o'clock", "")
	s = strings.TrimSpace(s)

	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", fmt.Errorf("convo: unrecognised time %q", text)
	}

	hour := atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	meridiem := strings.Trim(strings.ReplaceAll(m[3], ".", ""), " ")

	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return "", "", fmt.Errorf("convo: unrecognised time %q", text)
	}

	t := time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC)
	return t.Format("15:04"), t.Format("3:04 PM"), nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
