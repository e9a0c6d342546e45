// Package mock provides a test double for the calendar.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
)

// Compile-time interface assertion.
var _ calendar.Provider = (*Provider)(nil)

// FindNextCall records one FindNextAvailableSlot invocation.
type FindNextCall struct {
	Date    string
	MaxDays int
}

// Provider is a mock implementation of calendar.Provider. Zero-value response
// fields yield empty results and nil errors.
type Provider struct {
	mu sync.Mutex

	// SlotsByDate maps an ISO date to the DaySlots FindAvailableSlots
	// returns for it. Dates not in the map return an empty DaySlots.
	SlotsByDate map[string]*calendar.DaySlots

	// FindSlotsErr, if non-nil, is returned from FindAvailableSlots.
	FindSlotsErr error

	// NextResult is returned by FindNextAvailableSlot when set; otherwise
	// the mock walks SlotsByDate like a real provider would not — it just
	// returns an empty DaySlots for the start date.
	NextResult *calendar.DaySlots

	// NextErr, if non-nil, is returned from FindNextAvailableSlot.
	NextErr error

	// CreateResult is returned by CreateAppointment.
	CreateResult *calendar.Appointment

	// CreateErr, if non-nil, is returned from CreateAppointment.
	CreateErr error

	// Call records.
	FindSlotsCalls []string
	FindNextCalls  []FindNextCall
	CreateCalls    []calendar.AppointmentRequest
}

// FindAvailableSlots records the call and returns the scripted DaySlots.
func (p *Provider) FindAvailableSlots(_ context.Context, date string) (*calendar.DaySlots, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindSlotsCalls = append(p.FindSlotsCalls, date)
	if p.FindSlotsErr != nil {
		return nil, p.FindSlotsErr
	}
	if ds, ok := p.SlotsByDate[date]; ok {
		return ds, nil
	}
	return &calendar.DaySlots{Date: date}, nil
}

// FindNextAvailableSlot records the call and returns NextResult, NextErr.
func (p *Provider) FindNextAvailableSlot(_ context.Context, date string, maxDays int) (*calendar.DaySlots, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindNextCalls = append(p.FindNextCalls, FindNextCall{Date: date, MaxDays: maxDays})
	if p.NextErr != nil {
		return nil, p.NextErr
	}
	if p.NextResult != nil {
		return p.NextResult, nil
	}
	return &calendar.DaySlots{Date: date}, nil
}

// CreateAppointment records the call and returns CreateResult, CreateErr.
func (p *Provider) CreateAppointment(_ context.Context, req calendar.AppointmentRequest) (*calendar.Appointment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls = append(p.CreateCalls, req)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	if p.CreateResult != nil {
		return p.CreateResult, nil
	}
	return &calendar.Appointment{EventID: "mock-event"}, nil
}

// CreatedCount returns the number of CreateAppointment calls.
func (p *Provider) CreatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CreateCalls)
}
