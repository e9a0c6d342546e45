package tools

import (
	"context"
	"encoding/json"

	"github.com/voxgate-io/voxgate/internal/convo"
)

type scheduleArgs struct {
	Action       string `json:"action"`
	CalendarType string `json:"calendar_type"`
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

func (h *Handler) scheduleAppointment(ctx context.Context, arguments string) (string, error) {
	var args scheduleArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return result{Message: "Sorry, which part of the booking would you like to work on?"}.encode()
	}

	res, err := h.scheduler.Handle(ctx, h.sess, convo.Action(args.Action), convo.ActionArgs{
		Calendar: args.CalendarType,
		Service:  args.Service,
		Date:     args.Date,
		Time:     args.Time,
	})
	if err != nil {
		return "", err
	}

	out := result{
		Success: res.Success,
		Message: res.Message,
		Step:    string(res.Step),
	}
	if res.EventLink != "" {
		out.EventLink = res.EventLink
	}
	return out.encode()
}
