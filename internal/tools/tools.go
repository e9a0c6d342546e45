// Package tools implements the function tools the realtime model may invoke
// during a call: identity collection, knowledge-base search, and appointment
// booking. The catalogue offered to the model is derived from the business's
// feature flags; every handler returns a JSON result the model speaks from.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/pkg/provider/realtime"
	"github.com/voxgate-io/voxgate/pkg/retrieval"
)

// Tool names as announced to the model.
const (
	ToolUpdateUserInfo      = "update_user_info"
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolScheduleAppointment = "schedule_appointment"
)

// result is the JSON shape shared by all tool outputs.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Knowledge-search payload.
	Context string   `json:"context,omitempty"`
	Sources []string `json:"sources,omitempty"`

	// Identity payload.
	Collected bool `json:"collected,omitempty"`

	// Booking payload. EventLink is for client channels only; the model is
	// instructed not to read URLs aloud.
	Step      string `json:"step,omitempty"`
	EventLink string `json:"event_link,omitempty"`
}

func (r result) encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("tools: encode result: %w", err)
	}
	return string(data), nil
}

// Definitions returns the tool catalogue for one business. The set is a
// function of the feature flags alone: every business collects identity,
// knowledge search requires rag, booking requires appointment_booking.
func Definitions(biz *config.BusinessConfig) []realtime.ToolDefinition {
	defs := []realtime.ToolDefinition{
		{
			Name:        ToolUpdateUserInfo,
			Description: "Record the caller's contact details as soon as they share them. Call this whenever the caller states their name, email, phone number, reason for calling, or how urgent their request is.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string", "description": "The caller's name."},
					"email":   map[string]any{"type": "string", "description": "The caller's email address."},
					"phone":   map[string]any{"type": "string", "description": "The caller's phone number."},
					"reason":  map[string]any{"type": "string", "description": "Why the caller is calling."},
					"urgency": map[string]any{"type": "string", "description": "How urgent the request is (low, normal, high)."},
				},
			},
		},
	}

	if biz.Features.RAG {
		defs = append(defs, realtime.ToolDefinition{
			Name:        ToolSearchKnowledgeBase,
			Description: "Search the business knowledge base to answer questions about services, pricing, hours, or policies. Use the caller's own words as the query.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "The caller's question."},
				},
				"required": []string{"query"},
			},
		})
	}

	if biz.Features.AppointmentBooking {
		defs = append(defs, realtime.ToolDefinition{
			Name:        ToolScheduleAppointment,
			Description: "Drive the appointment booking flow one step at a time. Start with action=start, then follow the step the previous result asked for. Never skip ahead; the flow enforces its own ordering.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": []string{"start", "set_calendar", "set_service", "set_date", "set_time", "confirm", "cancel", "change_date", "change_time", "change_service", "change_name", "change_email"},
					},
					"calendar_type": map[string]any{"type": "string", "enum": []string{"google", "microsoft"}},
					"service":       map[string]any{"type": "string", "description": "The kind of session to book."},
					"date":          map[string]any{"type": "string", "description": "The requested date, e.g. 'October 16, 2026'."},
					"time":          map[string]any{"type": "string", "description": "The requested time, e.g. '2 PM'."},
				},
				"required": []string{"action"},
			},
		})
	}

	return defs
}

// Handler dispatches tool calls for one call's session. It implements the
// realtime event pump's Dispatcher interface.
type Handler struct {
	sess      *convo.Session
	biz       *config.BusinessConfig
	scheduler *convo.Scheduler
	searcher  retrieval.Searcher
	logger    *slog.Logger
}

// NewHandler creates the per-call dispatcher. scheduler may be nil when the
// business has booking disabled, searcher may be nil when rag is disabled.
func NewHandler(sess *convo.Session, biz *config.BusinessConfig, scheduler *convo.Scheduler, searcher retrieval.Searcher, logger *slog.Logger) (*Handler, error) {
	if sess == nil {
		return nil, fmt.Errorf("tools: session must not be nil")
	}
	if biz == nil {
		return nil, fmt.Errorf("tools: business config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sess:      sess,
		biz:       biz,
		scheduler: scheduler,
		searcher:  searcher,
		logger:    logger.With("call_id", sess.CallID, "business_id", biz.ID),
	}, nil
}

// Dispatch executes one tool call. The returned string is the raw JSON result
// handed back to the model. Unknown or disabled tools return a spoken-friendly
// failure rather than an error: tenant isolation means a business only ever
// advertises the tools it can serve, so anything else is a model slip.
func (h *Handler) Dispatch(ctx context.Context, name string, arguments string) (string, error) {
	switch name {
	case ToolUpdateUserInfo:
		return h.updateUserInfo(arguments)
	case ToolSearchKnowledgeBase:
		if !h.biz.Features.RAG || h.searcher == nil {
			return disabledResult()
		}
		return h.searchKnowledge(ctx, arguments)
	case ToolScheduleAppointment:
		if !h.biz.Features.AppointmentBooking || h.scheduler == nil {
			return disabledResult()
		}
		return h.scheduleAppointment(ctx, arguments)
	default:
		h.logger.Warn("model called unknown tool", "tool", name)
		return disabledResult()
	}
}

func disabledResult() (string, error) {
	return result{Message: "That capability isn't available on this line."}.encode()
}
