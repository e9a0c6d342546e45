package tenant_test

import (
	"strings"
	"testing"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/tenant"
)

func TestInstructions(t *testing.T) {
	t.Parallel()

	biz := &config.BusinessConfig{
		ID:          "rocky-plumbing",
		DisplayName: "Rocky Plumbing",
		Prompt:      "You are Sam, the cheerful scheduler for a plumbing company.",
		Features:    config.FeatureFlags{AppointmentBooking: true, RAG: true},
		CompanyInfo: config.CompanyInfo{
			Address: "12 Canyon Rd, Denver, CO",
			Hours:   "Mon-Fri 8am-5pm",
			Notes:   "Emergency service available around the clock.",
		},
	}

	got := tenant.Instructions(biz)

	for _, want := range []string{
		"You are Sam",
		"Rocky Plumbing",
		"12 Canyon Rd",
		"Mon-Fri 8am-5pm",
		"Emergency service available",
		"update_user_info",
		"schedule_appointment",
		"search_knowledge_base",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q:\n%s", want, got)
		}
	}
}

func TestInstructionsDefaultsPersona(t *testing.T) {
	t.Parallel()

	biz := &config.BusinessConfig{ID: "b1", DisplayName: "Acme"}
	got := tenant.Instructions(biz)

	if !strings.Contains(got, "phone receptionist") {
		t.Errorf("default persona missing:\n%s", got)
	}
	if strings.Contains(got, "schedule_appointment") {
		t.Error("booking guidance present for business without booking")
	}
	if strings.Contains(got, "search_knowledge_base") {
		t.Error("knowledge guidance present for business without rag")
	}
}
