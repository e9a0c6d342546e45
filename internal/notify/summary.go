package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
)

// Summary is the structured distillation of one call.
type Summary struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	Topics        []string `json:"topics"`
	CustomerNeeds []string `json:"customerNeeds"`
	NextSteps     []string `json:"nextSteps"`
}

const summarySystemPrompt = `You summarize phone call transcripts for a business owner. ` +
	`Respond with a single JSON object with these keys: ` +
	`"summary" (2-3 sentences), "keyPoints" (array of strings), "topics" (array of strings), ` +
	`"customerNeeds" (array of strings), "nextSteps" (array of strings). ` +
	`Be factual; do not invent details that are not in the transcript.`

// summaryMaxTokens bounds the summary completion. Transcripts are short phone
// calls; anything longer than this is the model rambling.
const summaryMaxTokens = 600

// summarize asks the text LLM for a structured summary of the transcript.
// When the provider is unavailable or returns something unparseable the
// neutral fallback below is used so the notification still goes out.
func (n *Notifier) summarize(ctx context.Context, snap convo.Snapshot) Summary {
	if n.summarizer == nil {
		return fallbackSummary(snap)
	}

	transcript := formatTranscript(snap.History)
	if transcript == "" {
		return fallbackSummary(snap)
	}

	resp, err := n.summarizer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Summarize this call transcript:\n\n" + transcript},
		},
		Temperature: 0,
		MaxTokens:   summaryMaxTokens,
		JSONOutput:  true,
	})
	if err != nil || resp == nil {
		n.logger.Warn("summary generation failed, using fallback",
			"call_id", snap.CallID, "error", err)
		return fallbackSummary(snap)
	}

	sum, err := parseSummary(resp.Content)
	if err != nil {
		n.logger.Warn("summary response unparseable, using fallback",
			"call_id", snap.CallID, "error", err)
		return fallbackSummary(snap)
	}
	return sum
}

// parseSummary decodes the model output, tolerating markdown code fences some
// models insist on emitting even in JSON mode.
func parseSummary(content string) (Summary, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var sum Summary
	if err := json.Unmarshal([]byte(text), &sum); err != nil {
		return Summary{}, fmt.Errorf("notify: decode summary: %w", err)
	}
	if sum.Summary == "" {
		return Summary{}, fmt.Errorf("notify: summary field empty")
	}
	return sum, nil
}

// fallbackSummary builds a neutral summary from session facts alone. It never
// fails; a degraded summary beats a dropped notification.
func fallbackSummary(snap convo.Snapshot) Summary {
	sum := Summary{
		Summary: fmt.Sprintf("Call from %s. A full summary could not be generated.", snap.From),
	}
	if snap.UserInfo.Name != "" {
		sum.Summary = fmt.Sprintf("Call from %s (%s). A full summary could not be generated.",
			snap.UserInfo.Name, snap.From)
	}
	if snap.UserInfo.Reason != "" {
		sum.CustomerNeeds = append(sum.CustomerNeeds, snap.UserInfo.Reason)
	}
	if appt := snap.LastAppointment; appt != nil {
		sum.KeyPoints = append(sum.KeyPoints,
			fmt.Sprintf("Booked %s on %s at %s.", appt.Title, appt.Date, appt.TimeDisplay))
	}
	return sum
}

// formatTranscript renders the session history as speaker-labelled lines.
// Tool and system entries are internal plumbing and are left out.
func formatTranscript(history []convo.Entry) string {
	var b strings.Builder
	for _, e := range history {
		switch e.Role {
		case convo.RoleUser:
			b.WriteString("Caller: ")
		case convo.RoleAssistant:
			b.WriteString("Agent: ")
		default:
			continue
		}
		b.WriteString(strings.TrimSpace(e.Text))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
