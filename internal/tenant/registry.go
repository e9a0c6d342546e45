// Package tenant resolves inbound calls to business configurations.
//
// The registry is rebuilt wholesale on config reload; lookups during a swap
// see either the old or the new table, never a mix. Calls already in flight
// keep the business config they resolved at setup.
package tenant

import (
	"strings"
	"sync"

	"github.com/voxgate-io/voxgate/internal/config"
)

// Registry maps incoming phone numbers to business configs. It is safe for
// concurrent use; returned configs must be treated as read-only.
type Registry struct {
	mu       sync.RWMutex
	byNumber map[string]*config.BusinessConfig
	byID     map[string]*config.BusinessConfig
}

// NewRegistry builds a registry from cfg. An empty or nil config yields an
// uninitialized registry that rejects every call.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{}
	r.Reload(cfg)
	return r
}

// Reload replaces the full lookup table with the businesses in cfg.
func (r *Registry) Reload(cfg *config.Config) {
	byNumber := make(map[string]*config.BusinessConfig)
	byID := make(map[string]*config.BusinessConfig)

	if cfg != nil {
		for i := range cfg.Businesses {
			biz := &cfg.Businesses[i]
			byID[biz.ID] = biz
			for _, num := range biz.IncomingNumbers {
				byNumber[NormalizeNumber(num)] = biz
			}
		}
	}

	r.mu.Lock()
	r.byNumber = byNumber
	r.byID = byID
	r.mu.Unlock()
}

// BusinessFromNumber resolves the dialed number to its business config.
// The number may carry formatting (spaces, dashes, parentheses).
func (r *Registry) BusinessFromNumber(number string) (*config.BusinessConfig, bool) {
	key := NormalizeNumber(number)

	r.mu.RLock()
	defer r.mu.RUnlock()
	biz, ok := r.byNumber[key]
	return biz, ok
}

// Get resolves a business by its stable ID.
func (r *Registry) Get(id string) (*config.BusinessConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	biz, ok := r.byID[id]
	return biz, ok
}

// Initialized reports whether at least one business is registered. The
// signaling handler answers with a temporary-unavailability message until
// this is true.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID) > 0
}

// Count returns the number of registered businesses.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// NormalizeNumber reduces a phone number to canonical E.164 form for lookup:
// formatting characters are stripped, a "tel:" scheme is removed, and bare
// 11-digit NANP numbers gain the leading plus.
func NormalizeNumber(number string) string {
	s := strings.TrimSpace(number)
	s = strings.TrimPrefix(s, "tel:")

	var b strings.Builder
	b.Grow(len(s))
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && i == 0:
			b.WriteRune(c)
		}
	}
	s = b.String()

	if s == "" || s[0] == '+' {
		return s
	}
	return "+" + s
}
