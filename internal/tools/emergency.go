package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxgate-io/voxgate/internal/config"
)

// DefaultEmergencyDigit triggers the transfer when a business leaves the
// digit unset.
const DefaultEmergencyDigit = "#"

// Transfer is the carrier hook that moves a live call to another number.
// Redirecting ends the media stream; the bridge tears down on the carrier's
// stop event.
type Transfer interface {
	RedirectCall(ctx context.Context, callSID, target string) error
}

// Emergency handles DTMF-triggered live transfer for all businesses.
type Emergency struct {
	transfer Transfer
	logger   *slog.Logger
}

// NewEmergency creates the emergency handler. transfer may be nil when no
// carrier redirect credentials are configured; triggers then log and decline.
func NewEmergency(transfer Transfer, logger *slog.Logger) *Emergency {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emergency{transfer: transfer, logger: logger}
}

// Digit returns the transfer digit configured for biz.
func Digit(biz *config.BusinessConfig) string {
	if biz.Emergency != nil && biz.Emergency.Digit != "" {
		return biz.Emergency.Digit
	}
	return DefaultEmergencyDigit
}

// Trigger checks the pressed digit against the business's emergency config
// and redirects the call when it matches. It reports whether the transfer was
// initiated; a non-matching digit is (false, nil).
func (e *Emergency) Trigger(ctx context.Context, callSID string, biz *config.BusinessConfig, digit string) (bool, error) {
	if !biz.Features.Emergency || biz.Emergency == nil {
		return false, nil
	}
	if digit != Digit(biz) {
		return false, nil
	}

	log := e.logger.With("call_id", callSID, "business_id", biz.ID)
	if e.transfer == nil {
		log.Error("emergency digit pressed but no carrier redirect is configured")
		return false, fmt.Errorf("tools: emergency transfer unavailable")
	}

	target := biz.Emergency.TransferNumber
	log.Warn("emergency transfer triggered", "target", target)
	if err := e.transfer.RedirectCall(ctx, callSID, target); err != nil {
		return false, fmt.Errorf("tools: emergency redirect: %w", err)
	}
	return true, nil
}
