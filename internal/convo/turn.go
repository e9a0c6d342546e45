package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxgate-io/voxgate/pkg/provider/llm"
)

// historyWindow bounds how much transcript the text path sends to the LLM.
const historyWindow = 20

// confirmThreshold is the minimum classifier confidence for phase-changing
// intents on the text path.
const confirmThreshold = 0.6

// TurnEffects describes what a processed turn did beyond producing text.
type TurnEffects struct {
	// EndCall is set when the caller said goodbye and the call should close.
	EndCall bool

	// Intent is the classification that drove the turn.
	Intent Classification
}

// TurnProcessor drives the text-only conversation path. The realtime audio
// path does not use it; both share the same Session store.
type TurnProcessor struct {
	llm       llm.Provider
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewTurnProcessor creates a turn processor. scheduler may be nil for
// businesses without appointment booking.
func NewTurnProcessor(provider llm.Provider, scheduler *Scheduler, logger *slog.Logger) (*TurnProcessor, error) {
	if provider == nil {
		return nil, fmt.Errorf("convo: turn processor needs an LLM provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnProcessor{llm: provider, scheduler: scheduler, logger: logger}, nil
}

// ProcessTurn appends the user text, resolves intent, and produces the
// assistant reply. Booking-flow turns are routed through the scheduler; all
// other turns go to the LLM with the session history as context.
func (p *TurnProcessor) ProcessTurn(ctx context.Context, sess *Session, systemPrompt, userText string) (string, TurnEffects, error) {
	sess.Append(RoleUser, userText)

	cls := Classify(userText, sess.AwaitingFollowUp())
	sess.SetAwaitingFollowUp(false)
	effects := TurnEffects{Intent: cls}

	if cls.Intent == IntentGoodbye && cls.Confidence >= confirmThreshold {
		sess.SetPhase(PhaseGoodbye)
		effects.EndCall = true
		reply := "Thanks for calling, have a great day. Goodbye!"
		sess.Append(RoleAssistant, reply)
		return reply, effects, nil
	}

	if p.scheduler != nil {
		if b := sess.Booking(); b.Active {
			reply, err := p.bookingTurn(ctx, sess, b, userText)
			if err != nil {
				return "", effects, err
			}
			sess.Append(RoleAssistant, reply)
			return reply, effects, nil
		}
		if (cls.Intent == IntentAppointment || cls.Intent == IntentFollowUpAppointment) && cls.Confidence >= confirmThreshold {
			res, err := p.scheduler.Handle(ctx, sess, ActionStart, ActionArgs{})
			if err != nil {
				return "", effects, err
			}
			sess.Append(RoleAssistant, res.Message)
			return res.Message, effects, nil
		}
	}

	reply, err := p.answer(ctx, sess, systemPrompt)
	if err != nil {
		p.logger.Warn("text turn completion failed", "call_id", sess.CallID, "err", err)
		reply = "I'm sorry, I'm having trouble answering right now. Could you say that again?"
		sess.Append(RoleAssistant, reply)
		return reply, effects, nil
	}
	sess.Append(RoleAssistant, reply)
	sess.SetAwaitingFollowUp(true)
	return reply, effects, nil
}

// bookingTurn maps the raw utterance onto the action the current step
// expects.
func (p *TurnProcessor) bookingTurn(ctx context.Context, sess *Session, b Booking, userText string) (string, error) {
	text := strings.TrimSpace(userText)

	var (
		action Action
		args   ActionArgs
	)
	switch b.Step {
	case StepSelectCalendar:
		action = ActionSetCalendar
		args.Calendar = calendarChoice(text)
	case StepCollectTitle:
		action = ActionSetService
		args.Service = text
	case StepCollectDate:
		action = ActionSetDate
		args.Date = text
	case StepCollectTime:
		action = ActionSetTime
		args.Time = text
	case StepReview:
		switch {
		case soundsLikeConfirmation(text):
			action = ActionConfirm
		case Classify(text, false).Intent == IntentGoodbye:
			action = ActionCancel
		case strings.Contains(strings.ToLower(text), "date"):
			action = ActionChangeDate
		case strings.Contains(strings.ToLower(text), "time"):
			action = ActionChangeTime
		case strings.Contains(strings.ToLower(text), "name"):
			action = ActionChangeName
		case strings.Contains(strings.ToLower(text), "email"):
			action = ActionChangeEmail
		default:
			return guidanceFor(StepReview), nil
		}
	default:
		return guidanceFor(b.Step), nil
	}

	res, err := p.scheduler.Handle(ctx, sess, action, args)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// answer produces a plain conversational reply from the recent history.
func (p *TurnProcessor) answer(ctx context.Context, sess *Session, systemPrompt string) (string, error) {
	history := sess.History()
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]llm.Message, 0, len(history))
	for _, e := range history {
		role := string(e.Role)
		if e.Role == RoleTool {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: e.Text})
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Temperature:  0.8,
		MaxTokens:    300,
	})
	if err != nil {
		return "", fmt.Errorf("convo: complete turn: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// calendarChoice fuzzy-matches a transcribed backend name, tolerating slips
// like "goggle calendar".
func calendarChoice(text string) string {
	lower := strings.ToLower(text)
	for _, kind := range []string{"google", "microsoft"} {
		if strings.Contains(lower, kind) {
			return kind
		}
		for _, w := range strings.Fields(lower) {
			if matchr.JaroWinkler(w, kind, false) >= fuzzyThreshold {
				return kind
			}
		}
	}
	if strings.Contains(lower, "outlook") || strings.Contains(lower, "office") {
		return "microsoft"
	}
	return text
}

// soundsLikeConfirmation accepts "sounds good" and close variants.
func soundsLikeConfirmation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range []string{"sounds good", "sound good", "yes", "yep", "yeah", "confirm", "correct", "that's right", "book it", "perfect"} {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") || strings.HasPrefix(lower, phrase+",") {
			return true
		}
	}
	return matchr.JaroWinkler(lower, "sounds good", false) >= fuzzyThreshold
}
