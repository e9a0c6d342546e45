package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
)

// MaxLookaheadDays bounds the forward walk for the next day with openings.
const MaxLookaheadDays = 14

// Action is one schedule_appointment operation.
type Action string

const (
	ActionStart         Action = "start"
	ActionSetCalendar   Action = "set_calendar"
	ActionSetService    Action = "set_service"
	ActionSetDate       Action = "set_date"
	ActionSetTime       Action = "set_time"
	ActionConfirm       Action = "confirm"
	ActionCancel        Action = "cancel"
	ActionChangeDate    Action = "change_date"
	ActionChangeTime    Action = "change_time"
	ActionChangeService Action = "change_service"
	ActionChangeName    Action = "change_name"
	ActionChangeEmail   Action = "change_email"
)

// ActionArgs carries the optional arguments of one action.
type ActionArgs struct {
	Calendar string
	Service  string
	Date     string
	Time     string
}

// FlowResult is what the tool handler relays to the model. Message is
// always speakable; EventLink is only set after a confirmed booking and is
// never part of the spoken text.
type FlowResult struct {
	Success bool
	Message string
	Step    Step

	Slots       *calendar.DaySlots
	Appointment *calendar.Appointment
	EventLink   string
}

// Scheduler drives the booking sub-flow for one business. It enforces the
// step ordering no matter what action the model sends; out-of-order actions
// return guidance without mutating the flow state.
type Scheduler struct {
	providers map[config.CalendarKind]calendar.Provider
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler over the business's configured calendar
// backends. loc anchors all date interpretation.
func NewScheduler(providers map[config.CalendarKind]calendar.Provider, loc *time.Location, logger *slog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("convo: scheduler needs at least one calendar provider")
	}
	if loc == nil {
		return nil, fmt.Errorf("convo: scheduler needs a timezone")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		providers: providers,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle applies one action to the session's booking flow.
func (s *Scheduler) Handle(ctx context.Context, sess *Session, action Action, args ActionArgs) (*FlowResult, error) {
	b := sess.Booking()

	switch action {
	case ActionStart:
		return s.start(sess, b)
	case ActionCancel:
		sess.SetBooking(Booking{})
		return &FlowResult{Success: true, Message: "No problem, I've cancelled the booking. Is there anything else I can help with?"}, nil
	}

	if !b.Active {
		return &FlowResult{
			Message: "We haven't started booking yet. Would you like to schedule an appointment?",
		}, nil
	}

	switch action {
	case ActionSetCalendar:
		return s.setCalendar(sess, b, args.Calendar)
	case ActionSetService, ActionChangeService:
		return s.setService(sess, b, action, args.Service)
	case ActionSetDate, ActionChangeDate:
		return s.setDate(ctx, sess, b, action, args.Date)
	case ActionSetTime, ActionChangeTime:
		return s.setTime(sess, b, action, args.Time)
	case ActionChangeName:
		return s.editIdentity(sess, b, StepCollectName, "Sure, what name should I use?")
	case ActionChangeEmail:
		return s.editIdentity(sess, b, StepCollectEmail, "Sure, what email address should I use?")
	case ActionConfirm:
		return s.confirm(ctx, sess, b)
	default:
		return &FlowResult{Message: guidanceFor(b.Step), Step: b.Step}, nil
	}
}

func (s *Scheduler) start(sess *Session, b Booking) (*FlowResult, error) {
	if b.Active {
		return &FlowResult{Success: true, Message: guidanceFor(b.Step), Step: b.Step}, nil
	}
	b = Booking{Active: true, Step: StepSelectCalendar}

	// A single configured backend needs no choice from the caller.
	if len(s.providers) == 1 {
		for kind := range s.providers {
			b.CalendarType = kind
		}
		b.Step = StepCollectTitle
		sess.SetBooking(b)
		return &FlowResult{Success: true, Step: b.Step,
			Message: "Great, let's get that scheduled. What kind of session would you like to book?"}, nil
	}

	sess.SetBooking(b)
	return &FlowResult{Success: true, Step: b.Step,
		Message: "Great, let's get that scheduled. Would you like the appointment on Google or Microsoft calendar?"}, nil
}

func (s *Scheduler) setCalendar(sess *Session, b Booking, choice string) (*FlowResult, error) {
	if b.Step != StepSelectCalendar {
		return s.violation(b), nil
	}

	kind := config.CalendarKind(strings.ToLower(strings.TrimSpace(choice)))
	if _, ok := s.providers[kind]; !ok {
		return &FlowResult{Step: b.Step, Message: "Say Google or Microsoft."}, nil
	}

	b.CalendarType = kind
	b.Step = StepCollectTitle
	sess.SetBooking(b)
	return &FlowResult{Success: true, Step: b.Step,
		Message: "Got it. What kind of session would you like to book?"}, nil
}

func (s *Scheduler) setService(sess *Session, b Booking, action Action, service string) (*FlowResult, error) {
	editing := action == ActionChangeService && b.Step == StepReview
	if b.Step != StepCollectTitle && !editing {
		return s.violation(b), nil
	}

	service = strings.TrimSpace(service)
	if service == "" {
		return &FlowResult{Step: b.Step, Message: "Describe the session type."}, nil
	}

	b.Title = service
	// An edit from review keeps date and time if already chosen.
	if editing && b.Date != "" && b.Time != "" {
		b.Step = StepReview
		sess.SetBooking(b)
		return s.review(sess, b), nil
	}
	b.Step = StepCollectDate
	sess.SetBooking(b)
	return &FlowResult{Success: true, Step: b.Step,
		Message: fmt.Sprintf("A %s it is. What date works for you?", service)}, nil
}

func (s *Scheduler) setDate(ctx context.Context, sess *Session, b Booking, action Action, dateText string) (*FlowResult, error) {
	editing := action == ActionChangeDate && b.Step == StepReview
	if editing {
		// Changing the date invalidates any chosen time and slot list.
		b.Time = ""
		b.TimeDisplay = ""
		b.AvailableSlots = nil
		b.Step = StepCollectDate
		if strings.TrimSpace(dateText) == "" {
			sess.SetBooking(b)
			return &FlowResult{Success: true, Step: b.Step, Message: "Sure, what date works better?"}, nil
		}
	}
	if b.Step != StepCollectDate {
		return s.violation(b), nil
	}

	day, err := ParseDate(dateText, s.loc)
	if err != nil {
		return &FlowResult{Step: b.Step,
			Message: "Provide the date as 'Month D, YYYY' or 'D Month YYYY'."}, nil
	}

	today := s.now().In(s.loc)
	if day.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)) {
		return &FlowResult{Step: b.Step,
			Message: "That date has already passed. What future date works for you?"}, nil
	}

	iso := day.Format("2006-01-02")
	provider := s.providers[b.CalendarType]
	slots, err := provider.FindAvailableSlots(ctx, iso)
	if err != nil {
		return nil, fmt.Errorf("convo: find slots for %s: %w", iso, err)
	}

	if len(slots.Slots) == 0 {
		next, err := provider.FindNextAvailableSlot(ctx, iso, MaxLookaheadDays)
		if err != nil {
			return nil, fmt.Errorf("convo: find next slot after %s: %w", iso, err)
		}
		if next == nil || len(next.Slots) == 0 {
			return &FlowResult{Step: b.Step,
				Message: "I couldn't find any openings in the next two weeks. Would you like to try a later date?"}, nil
		}
		// Offer the alternative; the date is only committed once the
		// caller accepts it with another set_date.
		return &FlowResult{Step: b.Step, Slots: next,
			Message: fmt.Sprintf("Nothing is free on %s. The next day with openings is %s, with %s. Would that work?",
				calendar.FormatDay(day), next.FormattedDate, speakSlots(next.Slots))}, nil
	}

	b.Date = iso
	b.AvailableSlots = slots.Slots
	b.Step = StepCollectTime
	sess.SetBooking(b)
	return &FlowResult{Success: true, Step: b.Step, Slots: slots,
		Message: fmt.Sprintf("On %s I have %s. Which time would you like?", slots.FormattedDate, speakSlots(slots.Slots))}, nil
}

func (s *Scheduler) setTime(sess *Session, b Booking, action Action, timeText string) (*FlowResult, error) {
	if action == ActionChangeTime && b.Step == StepReview {
		b.Time = ""
		b.TimeDisplay = ""
		b.Step = StepCollectTime
		if strings.TrimSpace(timeText) == "" {
			sess.SetBooking(b)
			return &FlowResult{Success: true, Step: b.Step,
				Message: fmt.Sprintf("Sure. The available times are %s.", speakSlots(b.AvailableSlots))}, nil
		}
	}
	if b.Step != StepCollectTime {
		return s.violation(b), nil
	}
	if len(b.AvailableSlots) == 0 || b.Date == "" {
		return &FlowResult{Step: b.Step, Message: "Let's pick a date first. What date works for you?"}, nil
	}

	value, _, err := ParseClockTime(timeText)
	if err != nil {
		return &FlowResult{Step: b.Step, Message: "Choose from the listed slots."}, nil
	}

	for _, slot := range b.AvailableSlots {
		if slot.Start != value {
			continue
		}
		b.Time = slot.Start
		b.TimeDisplay = slot.Display
		// Review requires the caller's identity; collect whatever is
		// still missing first.
		info := sess.UserInfo()
		switch {
		case info.Name == "":
			b.Step = StepCollectName
			sess.SetBooking(b)
			return &FlowResult{Success: true, Step: b.Step,
				Message: fmt.Sprintf("%s it is. Before I book this, what name should I use?", slot.Display)}, nil
		case info.Email == "":
			b.Step = StepCollectEmail
			sess.SetBooking(b)
			return &FlowResult{Success: true, Step: b.Step,
				Message: fmt.Sprintf("%s it is. Before I book this, what email address should the confirmation go to?", slot.Display)}, nil
		}
		b.Step = StepReview
		sess.SetBooking(b)
		return s.review(sess, b), nil
	}
	return &FlowResult{Step: b.Step,
		Message: fmt.Sprintf("That time isn't open. Choose from the listed slots: %s.", speakSlots(b.AvailableSlots))}, nil
}

func (s *Scheduler) editIdentity(sess *Session, b Booking, step Step, message string) (*FlowResult, error) {
	if b.Step != StepReview {
		return s.violation(b), nil
	}
	b.Step = step
	sess.SetBooking(b)
	return &FlowResult{Success: true, Step: step, Message: message}, nil
}

// IdentityUpdated moves the flow along after new name or email information
// arrives while it waits in CollectName or CollectEmail. Review is only
// entered once both are present. It reports whether the flow moved.
func (s *Scheduler) IdentityUpdated(sess *Session) (*FlowResult, bool) {
	b := sess.Booking()
	if !b.Active || (b.Step != StepCollectName && b.Step != StepCollectEmail) {
		return nil, false
	}

	info := sess.UserInfo()
	switch {
	case info.Name == "":
		if b.Step == StepCollectName {
			return nil, false
		}
		b.Step = StepCollectName
		sess.SetBooking(b)
		return &FlowResult{Success: true, Step: b.Step, Message: guidanceFor(StepCollectName)}, true
	case info.Email == "":
		if b.Step == StepCollectEmail {
			return nil, false
		}
		b.Step = StepCollectEmail
		sess.SetBooking(b)
		return &FlowResult{Success: true, Step: b.Step, Message: guidanceFor(StepCollectEmail)}, true
	}

	b.Step = StepReview
	sess.SetBooking(b)
	return s.review(sess, b), true
}

func (s *Scheduler) review(sess *Session, b Booking) *FlowResult {
	info := sess.UserInfo()
	day, _ := calendar.ParseISODate(b.Date, s.loc)
	return &FlowResult{Success: true, Step: StepReview,
		Message: fmt.Sprintf("To review: a %s on %s at %s for %s, confirmation to %s. Say 'sounds good' to confirm, or name what to change.",
			b.Title, calendar.FormatDay(day), b.TimeDisplay, info.Name, info.Email)}
}

func (s *Scheduler) confirm(ctx context.Context, sess *Session, b Booking) (*FlowResult, error) {
	// A premature confirm names what is still missing rather than the
	// current step's guidance; an edit rolls fields back, and the caller
	// needs to hear which ones.
	info := sess.UserInfo()
	if missing := missingFields(b, info); len(missing) > 0 {
		return &FlowResult{Step: b.Step,
			Message: fmt.Sprintf("I still need %s before I can book this.", strings.Join(missing, " and "))}, nil
	}
	if b.Step != StepReview {
		return s.violation(b), nil
	}

	provider := s.providers[b.CalendarType]
	appt, err := provider.CreateAppointment(ctx, calendar.AppointmentRequest{
		Title:         b.Title,
		Description:   fmt.Sprintf("Booked by phone for %s (%s).", info.Name, info.Email),
		Date:          b.Date,
		Time:          b.Time,
		CustomerName:  info.Name,
		CustomerEmail: info.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("convo: create appointment: %w", err)
	}

	sess.SetLastAppointment(BookedAppointment{
		EventID:      appt.EventID,
		EventLink:    appt.EventLink,
		Title:        b.Title,
		Date:         b.Date,
		Time:         b.Time,
		TimeDisplay:  b.TimeDisplay,
		CalendarType: b.CalendarType,
	})
	sess.SetBooking(Booking{})

	day, _ := calendar.ParseISODate(b.Date, s.loc)
	s.logger.Info("appointment booked",
		"call_id", sess.CallID, "business_id", sess.BusinessID,
		"calendar", string(b.CalendarType), "date", b.Date, "time", b.Time)

	return &FlowResult{
		Success:     true,
		Appointment: appt,
		EventLink:   appt.EventLink,
		Message: fmt.Sprintf("You're all set. Your %s is booked for %s at %s, and a confirmation is on its way to %s.",
			b.Title, calendar.FormatDay(day), b.TimeDisplay, info.Email),
	}, nil
}

func (s *Scheduler) violation(b Booking) *FlowResult {
	return &FlowResult{Step: b.Step, Message: guidanceFor(b.Step)}
}

// guidanceFor is the step-specific message for an out-of-order action.
func guidanceFor(step Step) string {
	switch step {
	case StepSelectCalendar:
		return "Say Google or Microsoft."
	case StepCollectTitle:
		return "Describe the session type."
	case StepCollectDate:
		return "Provide the date as 'Month D, YYYY' or 'D Month YYYY'."
	case StepCollectTime:
		return "Choose from the listed slots."
	case StepReview:
		return "Say 'sounds good' to confirm, or name what to change."
	case StepCollectName:
		return "What name should I use for the booking?"
	case StepCollectEmail:
		return "What email address should I use for the booking?"
	default:
		return "Would you like to schedule an appointment?"
	}
}

func missingFields(b Booking, info UserInfo) []string {
	var missing []string
	if b.Title == "" {
		missing = append(missing, "the session type")
	}
	if b.Date == "" {
		missing = append(missing, "a date")
	}
	if b.Time == "" {
		missing = append(missing, "a time")
	}
	if b.CalendarType == "" {
		missing = append(missing, "a calendar choice")
	}
	if info.Name == "" {
		missing = append(missing, "your name")
	}
	if info.Email == "" {
		missing = append(missing, "your email address")
	}
	return missing
}

// speakSlots renders up to five slot display times as spoken text.
func speakSlots(slots []calendar.Slot) string {
	const maxSpoken = 5
	names := make([]string, 0, maxSpoken)
	for i, slot := range slots {
		if i == maxSpoken {
			break
		}
		names = append(names, slot.Display)
	}
	switch len(names) {
	case 0:
		return "no openings"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}
