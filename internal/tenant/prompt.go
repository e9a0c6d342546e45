package tenant

import (
	"fmt"
	"strings"

	"github.com/voxgate-io/voxgate/internal/config"
)

// basePersona is the fallback instruction block for businesses that ship no
// prompt of their own.
const basePersona = "You are a friendly and professional phone receptionist. Keep replies short and conversational; the caller hears them spoken aloud."

// identityDirective instructs the model to collect caller identity early.
// Both the voice and text paths depend on name and email for the post-call
// summary, so the directive is always appended.
const identityDirective = "Early in the call, naturally ask for the caller's name and email address, and record them with the update_user_info tool the moment they are given. Never ask again for details you already have."

// Instructions assembles the full system instruction block for one business:
// its persona prompt, the company profile, and the standing directives.
func Instructions(biz *config.BusinessConfig) string {
	var b strings.Builder

	persona := strings.TrimSpace(biz.Prompt)
	if persona == "" {
		persona = basePersona
	}
	b.WriteString(persona)

	b.WriteString("\n\nYou are answering for ")
	b.WriteString(biz.DisplayName)
	b.WriteString(".")

	if info := companyBlock(biz.CompanyInfo); info != "" {
		b.WriteString("\n\nCompany details:\n")
		b.WriteString(info)
	}

	b.WriteString("\n\n")
	b.WriteString(identityDirective)

	if biz.Features.AppointmentBooking {
		b.WriteString("\n\nWhen the caller wants an appointment, use the schedule_appointment tool and follow the step it asks for next. Offer concrete dates and times; never invent availability.")
	}
	if biz.Features.RAG {
		b.WriteString("\n\nAnswer questions about services, pricing, hours, or policies with the search_knowledge_base tool. If the search finds nothing, say so honestly.")
	}

	return b.String()
}

// companyBlock renders the static company profile as prompt lines.
func companyBlock(info config.CompanyInfo) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Address", info.Address)
	add("Phone", info.Phone)
	add("Website", info.Website)
	add("Hours", info.Hours)
	if info.Notes != "" {
		lines = append(lines, "- "+info.Notes)
	}
	return strings.Join(lines, "\n")
}
