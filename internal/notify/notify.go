// Package notify delivers post-call summaries. When a call ends the notifier
// takes the session snapshot, distils it into a structured summary with the
// text LLM, and fans the result out over email and SMS per the business's
// configuration. Delivery is fire-and-forget from the call path's point of
// view; failures are logged, never surfaced to the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/pkg/provider/email"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
	"github.com/voxgate-io/voxgate/pkg/provider/sms"
)

// defaultTimeout bounds one delivery run: summary generation plus every
// email and SMS handoff.
const defaultTimeout = 45 * time.Second

// Notifier fans post-call summaries out to email and SMS recipients.
type Notifier struct {
	summarizer llm.Provider
	email      email.Provider
	sms        sms.Provider
	logger     *slog.Logger
	timeout    time.Duration

	wg sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithTimeout overrides the per-delivery deadline.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// New creates a Notifier. Any of summarizer, emailProvider, and smsProvider
// may be nil; the corresponding channel is skipped.
func New(summarizer llm.Provider, emailProvider email.Provider, smsProvider sms.Provider, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		summarizer: summarizer,
		email:      emailProvider,
		sms:        smsProvider,
		logger:     logger,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CallEnded schedules delivery for one finished call and returns immediately.
func (n *Notifier) CallEnded(snap convo.Snapshot, biz *config.BusinessConfig) {
	if biz == nil {
		return
	}
	if !shouldNotify(snap, biz) {
		n.logger.Debug("skipping post-call notification",
			"call_id", snap.CallID, "business_id", biz.ID)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.deliver(ctx, snap, biz)
	}()
}

// Close waits for in-flight deliveries to finish.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}

// shouldNotify decides whether a call is worth a notification. A hang-up
// before anything was collected, with no admin recipients configured, only
// produces noise.
func shouldNotify(snap convo.Snapshot, biz *config.BusinessConfig) bool {
	collected := snap.UserInfo.Name != "" || snap.UserInfo.Email != "" ||
		snap.UserInfo.Reason != "" || snap.LastAppointment != nil
	hasAdmins := (biz.Email != nil && len(biz.Email.Recipients) > 0) ||
		(biz.SMS != nil && len(biz.SMS.AdminNumbers) > 0)
	return collected || hasAdmins
}

func (n *Notifier) deliver(ctx context.Context, snap convo.Snapshot, biz *config.BusinessConfig) {
	log := n.logger.With("call_id", snap.CallID, "business_id", biz.ID)
	sum := n.summarize(ctx, snap)

	if err := n.sendEmails(ctx, snap, biz, sum); err != nil {
		log.Error("summary email delivery failed", "error", err)
	}
	n.sendTexts(ctx, snap, biz, sum, log)
	log.Info("post-call notification delivered")
}

// sendEmails sends the summary email to the business recipients plus the
// caller when an address was collected.
func (n *Notifier) sendEmails(ctx context.Context, snap convo.Snapshot, biz *config.BusinessConfig, sum Summary) error {
	if n.email == nil {
		return nil
	}

	var to []string
	if biz.Email != nil {
		to = append(to, biz.Email.Recipients...)
	}
	if snap.UserInfo.Email != "" {
		to = append(to, snap.UserInfo.Email)
	}
	if len(to) == 0 {
		return nil
	}

	textBody, htmlBody, err := renderEmail(snap, biz.DisplayName, sum)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Call summary — %s", snap.From)
	if snap.UserInfo.Name != "" {
		subject = fmt.Sprintf("Call summary — %s", snap.UserInfo.Name)
	}

	return n.email.Send(ctx, email.Message{
		To:       dedupe(to),
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}

// sendTexts sends the summary SMS to the admin numbers and, when the business
// opted in and the caller's number is known, to the caller. A booked
// appointment upgrades the caller's text to the booking confirmation. Each
// send is independent; one failure does not stop the rest.
func (n *Notifier) sendTexts(ctx context.Context, snap convo.Snapshot, biz *config.BusinessConfig, sum Summary, log *slog.Logger) {
	if n.sms == nil || biz.SMS == nil {
		return
	}

	body := renderSMS(snap, biz.DisplayName, sum)
	for _, number := range dedupe(biz.SMS.AdminNumbers) {
		if _, err := n.sms.SendMessage(ctx, number, body); err != nil {
			log.Error("summary SMS failed", "to", number, "error", err)
		}
	}

	if biz.SMS.NotifyCaller && snap.From != "" {
		callerBody := body
		if snap.LastAppointment != nil {
			callerBody = renderCallerConfirmation(biz.DisplayName, snap.LastAppointment)
		}
		if _, err := n.sms.SendMessage(ctx, snap.From, callerBody); err != nil {
			log.Error("caller SMS failed", "to", snap.From, "error", err)
		}
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
