package twilio_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/voxgate-io/voxgate/pkg/provider/sms/twilio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestNew_Validation requires credentials and a sender identity.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := twilio.New("", "tok", testLogger(), twilio.WithFromNumber("+15550001111")); err == nil {
		t.Error("expected error for empty accountSID")
	}
	if _, err := twilio.New("AC1", "tok", testLogger()); err == nil {
		t.Error("expected error when neither messaging SID nor from number is set")
	}
	if _, err := twilio.New("AC1", "tok", testLogger(), twilio.WithFromNumber("+15550001111")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestSendMessage_FromNumber posts the form payload with basic auth.
func TestSendMessage_FromNumber(t *testing.T) {
	t.Parallel()

	received := make(chan *http.Request, 1)
	forms := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		received <- r
		forms <- map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM123", "status": "queued"})
	}))
	defer srv.Close()

	c, err := twilio.New("AC1", "tok", testLogger(),
		twilio.WithBaseURL(srv.URL), twilio.WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sid, err := c.SendMessage(t.Context(), "+15552223333", "Your appointment is booked.")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sid != "SM123" {
		t.Errorf("sid = %q, want SM123", sid)
	}

	r := <-received
	if !strings.Contains(r.URL.Path, "/Accounts/AC1/Messages.json") {
		t.Errorf("path = %q", r.URL.Path)
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != "AC1" || pass != "tok" {
		t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
	}
	form := <-forms
	if form["To"] != "+15552223333" || form["From"] != "+15550001111" {
		t.Errorf("form = %v", form)
	}
	if form["Body"] != "Your appointment is booked." {
		t.Errorf("body = %q", form["Body"])
	}
}

// TestSendMessage_MessagingService uses the service SID instead of From.
func TestSendMessage_MessagingService(t *testing.T) {
	t.Parallel()

	forms := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		forms <- map[string]string{
			"MessagingServiceSid": r.PostForm.Get("MessagingServiceSid"),
			"From":                r.PostForm.Get("From"),
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM456"})
	}))
	defer srv.Close()

	c, err := twilio.New("AC1", "tok", testLogger(),
		twilio.WithBaseURL(srv.URL), twilio.WithMessagingServiceSID("MG9"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SendMessage(t.Context(), "+15552223333", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	form := <-forms
	if form["MessagingServiceSid"] != "MG9" {
		t.Errorf("MessagingServiceSid = %q", form["MessagingServiceSid"])
	}
	if form["From"] != "" {
		t.Errorf("From should be empty, got %q", form["From"])
	}
}

// TestSendMessage_ErrorStatus surfaces API failures.
func TestSendMessage_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":21211,"message":"invalid to number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := twilio.New("AC1", "tok", testLogger(),
		twilio.WithBaseURL(srv.URL), twilio.WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.SendMessage(t.Context(), "bogus", "hi")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want 400 surfaced", err)
	}
}

// TestSendMessage_EmptyInputs fail fast without a request.
func TestSendMessage_EmptyInputs(t *testing.T) {
	t.Parallel()

	c, err := twilio.New("AC1", "tok", testLogger(),
		twilio.WithBaseURL("http://127.0.0.1:1"), twilio.WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SendMessage(t.Context(), "", "hi"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := c.SendMessage(t.Context(), "+15552223333", ""); err == nil {
		t.Error("expected error for empty body")
	}
}
