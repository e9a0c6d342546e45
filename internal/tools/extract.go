package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voxgate-io/voxgate/internal/convo"
)

// The realtime model is instructed to call update_user_info, but it misses
// introductions often enough that identity collection would stall. The
// extractor runs over every finalized caller transcript as a safety net and
// synthesises an acknowledgement item so the model's own view stays in sync.

var namePhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bthis is ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bcall me ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bi'?m ([a-z]+(?: [a-z]+)?)`),
}

// nameStoplist blocks the words that follow "I'm" far more often than a name
// does.
var nameStoplist = map[string]bool{
	"calling": true, "looking": true, "interested": true, "trying": true,
	"wondering": true, "good": true, "fine": true, "okay": true, "sorry": true,
	"not": true, "just": true, "here": true, "sure": true, "ready": true,
	"happy": true, "glad": true, "going": true, "gonna": true, "thinking": true,
	"available": true, "done": true, "back": true, "new": true, "still": true,
}

// spokenEmailPattern finds an email address inside a transcript, tolerating
// the transcriber spelling out " at " and " dot ".
var spokenEmailPattern = regexp.MustCompile(`(?i)\b([a-z0-9._%+-]+)(?:@|\s+at\s+)([a-z0-9.-]+?)(?:\.|\s+dot\s+)([a-z]{2,})\b`)

// ExtractIdentity scans one caller transcript for a name or email the model
// may have missed, applies what it finds to the session, and returns the
// synthetic acknowledgement to inject into the conversation. The empty string
// means nothing new was found.
func ExtractIdentity(sess *convo.Session, transcript string) string {
	patch := convo.UserInfoPatch{}
	info := sess.UserInfo()

	if info.Name == "" {
		if name := extractName(transcript); name != "" {
			patch.Name = &name
		}
	}
	if info.Email == "" {
		if email := extractEmail(transcript); email != "" {
			patch.Email = &email
		}
	}
	if patch.Name == nil && patch.Email == nil {
		return ""
	}

	updated, changed := sess.UpdateUserInfo(patch)
	if !changed {
		return ""
	}

	var parts []string
	if patch.Name != nil {
		parts = append(parts, fmt.Sprintf("name is %s", updated.Name))
	}
	if patch.Email != nil {
		parts = append(parts, fmt.Sprintf("email is %s", updated.Email))
	}
	return fmt.Sprintf("[NOTE] The caller's %s. Treat update_user_info as already called with these values; do not ask again.", strings.Join(parts, " and "))
}

func extractName(text string) string {
	for _, re := range namePhrases {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(candidate)[0])
		if nameStoplist[first] {
			continue
		}
		return titleCase(candidate)
	}
	return ""
}

func extractEmail(text string) string {
	m := spokenEmailPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	email := strings.ToLower(m[1] + "@" + m[2] + "." + m[3])
	if !emailPattern.MatchString(email) {
		return ""
	}
	return email
}

func titleCase(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
