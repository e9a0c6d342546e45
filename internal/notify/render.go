package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/voxgate-io/voxgate/internal/convo"
)

// emailData is the merged view handed to the email templates.
type emailData struct {
	Business    string
	CallerName  string
	CallerPhone string
	CallTime    string
	Summary     Summary
	Appointment *convo.BookedAppointment
}

var htmlTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 600px;">
  <h2 style="color: #1a4d80;">Call Summary — {{.Business}}</h2>
  <p>
    <strong>Caller:</strong> {{if .CallerName}}{{.CallerName}} ({{.CallerPhone}}){{else}}{{.CallerPhone}}{{end}}<br>
    <strong>Time:</strong> {{.CallTime}}
  </p>
  <p>{{.Summary.Summary}}</p>
{{if .Summary.KeyPoints}}  <h3>Key Points</h3>
  <ul>{{range .Summary.KeyPoints}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if .Summary.CustomerNeeds}}  <h3>Customer Needs</h3>
  <ul>{{range .Summary.CustomerNeeds}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if .Summary.NextSteps}}  <h3>Next Steps</h3>
  <ul>{{range .Summary.NextSteps}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if .Appointment}}  <h3>Appointment</h3>
  <p>{{.Appointment.Title}} on {{.Appointment.Date}} at {{.Appointment.TimeDisplay}}.
{{if .Appointment.EventLink}}  <a href="{{.Appointment.EventLink}}">Calendar event</a>{{end}}</p>
{{end}}</body>
</html>
`))

// renderEmail produces the text and HTML bodies for the summary email.
func renderEmail(snap convo.Snapshot, businessName string, sum Summary) (textBody, htmlBody string, err error) {
	data := emailData{
		Business:    businessName,
		CallerName:  snap.UserInfo.Name,
		CallerPhone: snap.From,
		CallTime:    snap.CreatedAt.Format(time.RFC1123),
		Summary:     sum,
		Appointment: snap.LastAppointment,
	}

	var html strings.Builder
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("notify: render email: %w", err)
	}
	return renderText(data), html.String(), nil
}

func renderText(data emailData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call Summary — %s\n\n", data.Business)
	if data.CallerName != "" {
		fmt.Fprintf(&b, "Caller: %s (%s)\n", data.CallerName, data.CallerPhone)
	} else {
		fmt.Fprintf(&b, "Caller: %s\n", data.CallerPhone)
	}
	fmt.Fprintf(&b, "Time: %s\n\n%s\n", data.CallTime, data.Summary.Summary)

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "  - %s\n", item)
		}
	}
	writeList("Key points", data.Summary.KeyPoints)
	writeList("Customer needs", data.Summary.CustomerNeeds)
	writeList("Next steps", data.Summary.NextSteps)

	if appt := data.Appointment; appt != nil {
		fmt.Fprintf(&b, "\nAppointment: %s on %s at %s\n", appt.Title, appt.Date, appt.TimeDisplay)
		if appt.EventLink != "" {
			fmt.Fprintf(&b, "%s\n", appt.EventLink)
		}
	}
	return b.String()
}

// smsMaxLen keeps the summary inside a reasonable segment count. Carriers
// split longer bodies; admins don't want a five-part text.
const smsMaxLen = 480

// renderSMS produces the plain-text body for summary texts.
func renderSMS(snap convo.Snapshot, businessName string, sum Summary) string {
	caller := snap.From
	if snap.UserInfo.Name != "" {
		caller = fmt.Sprintf("%s (%s)", snap.UserInfo.Name, snap.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s call summary\nCaller: %s\n%s", businessName, caller, sum.Summary)
	if appt := snap.LastAppointment; appt != nil {
		fmt.Fprintf(&b, "\nBooked: %s %s %s", appt.Title, appt.Date, appt.TimeDisplay)
	}

	body := b.String()
	if len(body) > smsMaxLen {
		body = body[:smsMaxLen-1] + "…"
	}
	return body
}

// renderCallerConfirmation is the booking confirmation text sent to the
// caller when the business enables notify_caller.
func renderCallerConfirmation(businessName string, appt *convo.BookedAppointment) string {
	return fmt.Sprintf("Hi from %s! Your %s is confirmed for %s at %s. Reply to this number if you need to make changes.",
		businessName, appt.Title, appt.Date, appt.TimeDisplay)
}
