package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
	"github.com/voxgate-io/voxgate/pkg/provider/embeddings"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pluggable provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
	calendar   map[CalendarKind]func(context.Context, CalendarConfig) (calendar.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		calendar:   make(map[CalendarKind]func(context.Context, CalendarConfig) (calendar.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterCalendar registers a calendar backend factory under kind.
// Calendar providers are constructed per business, from its calendar block.
func (r *Registry) RegisterCalendar(kind CalendarKind, factory func(context.Context, CalendarConfig) (calendar.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calendar[kind] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCalendar instantiates a calendar backend for one business using the
// factory registered under cal.Provider.
func (r *Registry) CreateCalendar(ctx context.Context, cal CalendarConfig) (calendar.Provider, error) {
	r.mu.RLock()
	factory, ok := r.calendar[cal.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: calendar/%q", ErrProviderNotRegistered, cal.Provider)
	}
	return factory(ctx, cal)
}
