package convo_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
	calendarmock "github.com/voxgate-io/voxgate/pkg/provider/calendar/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func octSlots() *calendar.DaySlots {
	return &calendar.DaySlots{
		Date:          "2026-10-16",
		FormattedDate: "Friday, October 16, 2026",
		Slots: []calendar.Slot{
			{Start: "12:00", End: "12:30", Display: "12:00 PM"},
			{Start: "14:00", End: "14:30", Display: "2:00 PM"},
		},
	}
}

type schedulerEnv struct {
	google    *calendarmock.Provider
	microsoft *calendarmock.Provider
	scheduler *convo.Scheduler
	session   *convo.Session
}

func newSchedulerEnv(t *testing.T, kinds ...config.CalendarKind) *schedulerEnv {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []config.CalendarKind{config.CalendarGoogle, config.CalendarMicrosoft}
	}

	env := &schedulerEnv{
		google:    &calendarmock.Provider{SlotsByDate: map[string]*calendar.DaySlots{"2026-10-16": octSlots()}},
		microsoft: &calendarmock.Provider{SlotsByDate: map[string]*calendar.DaySlots{"2026-10-16": octSlots()}},
	}

	providers := make(map[config.CalendarKind]calendar.Provider)
	for _, k := range kinds {
		switch k {
		case config.CalendarGoogle:
			providers[k] = env.google
		case config.CalendarMicrosoft:
			providers[k] = env.microsoft
		}
	}

	loc := denver(t)
	sched, err := convo.NewScheduler(providers, loc, testLogger(),
		convo.WithClock(func() time.Time {
			return time.Date(2026, 10, 1, 9, 0, 0, 0, loc)
		}))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	env.scheduler = sched
	env.session = convo.NewSession("CA1", "rocky-plumbing", "+1555", "+1556")
	env.session.UpdateUserInfo(convo.UserInfoPatch{Name: str("Dana"), Email: str("dana@example.com")})
	return env
}

func (e *schedulerEnv) handle(t *testing.T, action convo.Action, args convo.ActionArgs) *convo.FlowResult {
	t.Helper()
	res, err := e.scheduler.Handle(context.Background(), e.session, action, args)
	if err != nil {
		t.Fatalf("Handle(%s): %v", action, err)
	}
	return res
}

// walkToReview drives the flow through a complete happy path up to review.
func (e *schedulerEnv) walkToReview(t *testing.T) {
	t.Helper()
	e.handle(t, convo.ActionStart, convo.ActionArgs{})
	e.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "google"})
	e.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "drain inspection"})
	e.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"})
	res := e.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "2 PM"})
	if res.Step != convo.StepReview {
		t.Fatalf("after set_time step = %s, want review", res.Step)
	}
}

func TestScheduler_HappyPath(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.google.CreateResult = &calendar.Appointment{EventID: "ev42", EventLink: "https://cal.example/ev42"}

	res := env.handle(t, convo.ActionStart, convo.ActionArgs{})
	if !res.Success || res.Step != convo.StepSelectCalendar {
		t.Fatalf("start = %+v", res)
	}

	res = env.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "Google"})
	if !res.Success || res.Step != convo.StepCollectTitle {
		t.Fatalf("set_calendar = %+v", res)
	}

	res = env.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "drain inspection"})
	if !res.Success || res.Step != convo.StepCollectDate {
		t.Fatalf("set_service = %+v", res)
	}

	res = env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"})
	if !res.Success || res.Step != convo.StepCollectTime {
		t.Fatalf("set_date = %+v", res)
	}
	if !strings.Contains(res.Message, "2:00 PM") {
		t.Errorf("slot message = %q", res.Message)
	}

	res = env.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "2 PM"})
	if !res.Success || res.Step != convo.StepReview {
		t.Fatalf("set_time = %+v", res)
	}
	if !strings.Contains(res.Message, "drain inspection") || !strings.Contains(res.Message, "dana@example.com") {
		t.Errorf("review message = %q", res.Message)
	}

	res = env.handle(t, convo.ActionConfirm, convo.ActionArgs{})
	if !res.Success || res.Appointment == nil || res.EventLink != "https://cal.example/ev42" {
		t.Fatalf("confirm = %+v", res)
	}
	if strings.Contains(res.Message, "https://") {
		t.Errorf("spoken confirmation leaks the raw link: %q", res.Message)
	}

	if env.google.CreatedCount() != 1 {
		t.Errorf("CreateAppointment calls = %d, want 1", env.google.CreatedCount())
	}
	req := env.google.CreateCalls[0]
	if req.Date != "2026-10-16" || req.Time != "14:00" || req.CustomerEmail != "dana@example.com" {
		t.Errorf("create request = %+v", req)
	}

	snap := env.session.Snapshot()
	if snap.LastAppointment == nil || snap.LastAppointment.EventID != "ev42" {
		t.Errorf("lastAppointment = %+v", snap.LastAppointment)
	}
	if env.session.Booking().Active {
		t.Error("flow still active after confirmation")
	}
}

func TestScheduler_SingleBackendSkipsSelection(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t, config.CalendarGoogle)

	res := env.handle(t, convo.ActionStart, convo.ActionArgs{})
	if res.Step != convo.StepCollectTitle {
		t.Fatalf("start with one backend = %+v, want collect_title", res)
	}
	if env.session.Booking().CalendarType != config.CalendarGoogle {
		t.Errorf("calendar type = %s", env.session.Booking().CalendarType)
	}
}

func TestScheduler_OutOfOrderActionsGuideWithoutMutating(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.handle(t, convo.ActionStart, convo.ActionArgs{})

	cases := []struct {
		action   convo.Action
		args     convo.ActionArgs
		guidance string
	}{
		{convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"}, "Say Google or Microsoft."},
		{convo.ActionSetTime, convo.ActionArgs{Time: "2 PM"}, "Say Google or Microsoft."},
		{convo.ActionConfirm, convo.ActionArgs{}, "I still need the session type and a date and a time and a calendar choice before I can book this."},
		{convo.ActionSetService, convo.ActionArgs{Service: "x"}, "Say Google or Microsoft."},
	}
	for _, tc := range cases {
		res := env.handle(t, tc.action, tc.args)
		if res.Success || res.Message != tc.guidance {
			t.Errorf("%s = %+v, want guidance %q", tc.action, res, tc.guidance)
		}
	}
	if b := env.session.Booking(); b.Step != convo.StepSelectCalendar || b.Date != "" {
		t.Errorf("state mutated by rejected actions: %+v", b)
	}
}

func TestScheduler_InvalidDateGuidance(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.handle(t, convo.ActionStart, convo.ActionArgs{})
	env.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "google"})
	env.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "consult"})

	res := env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "next tuesday"})
	if res.Success || !strings.Contains(res.Message, "Month D, YYYY") {
		t.Errorf("invalid date = %+v", res)
	}

	res = env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "January 2, 2020"})
	if res.Success || !strings.Contains(res.Message, "already passed") {
		t.Errorf("past date = %+v", res)
	}
}

func TestScheduler_FullDayOffersNextOpening(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.handle(t, convo.ActionStart, convo.ActionArgs{})
	env.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "google"})
	env.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "consult"})

	env.google.NextResult = &calendar.DaySlots{
		Date:          "2026-10-19",
		FormattedDate: "Monday, October 19, 2026",
		Slots:         []calendar.Slot{{Start: "12:00", End: "12:30", Display: "12:00 PM"}},
	}

	// 2026-10-15 is not scripted, so the mock reports it fully booked.
	res := env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 15, 2026"})
	if res.Success {
		t.Fatalf("fully booked day accepted: %+v", res)
	}
	if !strings.Contains(res.Message, "Monday, October 19, 2026") {
		t.Errorf("message = %q, want alternative day offered", res.Message)
	}
	if got := env.google.FindNextCalls; len(got) != 1 || got[0].MaxDays != convo.MaxLookaheadDays {
		t.Errorf("FindNextCalls = %+v", got)
	}
	if b := env.session.Booking(); b.Date != "" || b.Step != convo.StepCollectDate {
		t.Errorf("date committed without acceptance: %+v", b)
	}
}

func TestScheduler_TimeOutsideSlotsRejected(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.handle(t, convo.ActionStart, convo.ActionArgs{})
	env.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "google"})
	env.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "consult"})
	env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"})

	res := env.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "3 PM"})
	if res.Success || !strings.Contains(res.Message, "isn't open") {
		t.Errorf("unavailable time = %+v", res)
	}
	res = env.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "whenever"})
	if res.Success || res.Message != "Choose from the listed slots." {
		t.Errorf("unparseable time = %+v", res)
	}
}

func TestScheduler_ChangeDateClearsTimeAndSlots(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.walkToReview(t)

	res := env.handle(t, convo.ActionChangeDate, convo.ActionArgs{})
	if !res.Success || res.Step != convo.StepCollectDate {
		t.Fatalf("change_date = %+v", res)
	}
	b := env.session.Booking()
	if b.Time != "" || b.TimeDisplay != "" || len(b.AvailableSlots) != 0 {
		t.Errorf("time/slots survived a date change: %+v", b)
	}
	if b.Title != "drain inspection" {
		t.Errorf("title lost on date change: %q", b.Title)
	}
}

func TestScheduler_ChangeTimeKeepsSlots(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.walkToReview(t)

	res := env.handle(t, convo.ActionChangeTime, convo.ActionArgs{})
	if !res.Success || res.Step != convo.StepCollectTime {
		t.Fatalf("change_time = %+v", res)
	}
	b := env.session.Booking()
	if len(b.AvailableSlots) != 2 || b.Date != "2026-10-16" {
		t.Errorf("slots/date lost on time change: %+v", b)
	}

	res = env.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "12 PM"})
	if !res.Success || res.Step != convo.StepReview {
		t.Fatalf("re-picking time = %+v", res)
	}
}

func TestScheduler_EmailEditRoundTrip(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.walkToReview(t)

	res := env.handle(t, convo.ActionChangeEmail, convo.ActionArgs{})
	if !res.Success || res.Step != convo.StepCollectEmail {
		t.Fatalf("change_email = %+v", res)
	}

	env.session.UpdateUserInfo(convo.UserInfoPatch{Email: str("dayna@example.com")})
	back, moved := env.scheduler.IdentityUpdated(env.session)
	if !moved || back.Step != convo.StepReview {
		t.Fatalf("IdentityUpdated = %+v %v", back, moved)
	}
	if !strings.Contains(back.Message, "dayna@example.com") {
		t.Errorf("review message = %q", back.Message)
	}
}

func TestScheduler_ConfirmRequiresIdentity(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	// No name or email collected.
	env.session = convo.NewSession("CA2", "rocky-plumbing", "", "")

	env.handle(t, convo.ActionStart, convo.ActionArgs{})
	env.handle(t, convo.ActionSetCalendar, convo.ActionArgs{Calendar: "google"})
	env.handle(t, convo.ActionSetService, convo.ActionArgs{Service: "drain inspection"})
	env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"})

	// Picking a time detours through identity collection, not review.
	res := env.handle(t, convo.ActionSetTime, convo.ActionArgs{Time: "2 PM"})
	if !res.Success || res.Step != convo.StepCollectName {
		t.Fatalf("set_time without identity = %+v, want collect_name", res)
	}

	res = env.handle(t, convo.ActionConfirm, convo.ActionArgs{})
	if res.Success || !strings.Contains(res.Message, "your name") {
		t.Errorf("confirm without identity = %+v", res)
	}

	// A name alone moves on to email collection, still without booking.
	env.session.UpdateUserInfo(convo.UserInfoPatch{Name: str("Dana")})
	moved, ok := env.scheduler.IdentityUpdated(env.session)
	if !ok || moved.Step != convo.StepCollectEmail {
		t.Fatalf("IdentityUpdated after name = %+v %v", moved, ok)
	}

	if env.google.CreatedCount() != 0 {
		t.Error("event created despite missing identity")
	}
}

func TestScheduler_ConfirmAfterDateChangeNeedsTime(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.walkToReview(t)
	env.handle(t, convo.ActionChangeDate, convo.ActionArgs{})

	res := env.handle(t, convo.ActionConfirm, convo.ActionArgs{})
	if res.Success || !strings.Contains(res.Message, "I still need a time") {
		t.Errorf("confirm after date change = %+v", res)
	}
	if env.google.CreatedCount() != 0 {
		t.Error("event created without a re-confirmed time")
	}
	if b := env.session.Booking(); b.Step != convo.StepCollectDate {
		t.Errorf("step after rejected confirm = %s, want collect_date", b.Step)
	}
}

func TestScheduler_CancelResetsFlow(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)
	env.walkToReview(t)

	res := env.handle(t, convo.ActionCancel, convo.ActionArgs{})
	if !res.Success {
		t.Fatalf("cancel = %+v", res)
	}
	if env.session.Booking().Active {
		t.Error("flow still active after cancel")
	}
}

func TestScheduler_StartWithoutFlowGuides(t *testing.T) {
	t.Parallel()
	env := newSchedulerEnv(t)

	res := env.handle(t, convo.ActionSetDate, convo.ActionArgs{Date: "October 16, 2026"})
	if res.Success || !strings.Contains(res.Message, "haven't started") {
		t.Errorf("action before start = %+v", res)
	}
}
