package tools

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/voxgate-io/voxgate/internal/convo"
)

// emailPattern accepts the usual local@domain.tld shape. Anything fancier is
// the mail server's problem.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]{2,}$`)

type userInfoArgs struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Reason  string `json:"reason"`
	Urgency string `json:"urgency"`
}

func (h *Handler) updateUserInfo(arguments string) (string, error) {
	var args userInfoArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return result{Message: "I didn't catch that. Could you repeat it?"}.encode()
	}

	args.Email = strings.TrimSpace(strings.ToLower(args.Email))
	if args.Email != "" && !emailPattern.MatchString(args.Email) {
		return result{
			Message: "That email address doesn't look right. Could you spell it out for me?",
		}.encode()
	}

	patch := convo.UserInfoPatch{}
	if v := strings.TrimSpace(args.Name); v != "" {
		patch.Name = &v
	}
	if args.Email != "" {
		patch.Email = &args.Email
	}
	if v := strings.TrimSpace(args.Phone); v != "" {
		patch.Phone = &v
	}
	if v := strings.TrimSpace(args.Reason); v != "" {
		patch.Reason = &v
	}
	if v := strings.TrimSpace(args.Urgency); v != "" {
		patch.Urgency = &v
	}

	info, changed := h.sess.UpdateUserInfo(patch)
	if changed {
		h.logger.Info("user info updated",
			"has_name", info.Name != "", "has_email", info.Email != "", "collected", info.Collected)
	}

	// New identity details may be exactly what the booking flow is waiting
	// for; let it advance and speak the next step.
	if h.scheduler != nil {
		if res, moved := h.scheduler.IdentityUpdated(h.sess); moved {
			return result{Success: true, Collected: info.Collected, Step: string(res.Step), Message: res.Message}.encode()
		}
	}

	return result{Success: true, Collected: info.Collected}.encode()
}
