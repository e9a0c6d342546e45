package carrier_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxgate-io/voxgate/internal/carrier"
)

// newWSServer starts an httptest server for h and returns its ws:// URL.
func newWSServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewRedirector_Validation(t *testing.T) {
	t.Parallel()

	if _, err := carrier.NewRedirector("", "tok", testLogger()); err == nil {
		t.Error("expected error for empty accountSID")
	}
	if _, err := carrier.NewRedirector("AC1", "", testLogger()); err == nil {
		t.Error("expected error for empty authToken")
	}
	if _, err := carrier.NewRedirector("AC1", "tok", testLogger()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestRedirectCall posts dial instructions for the live call.
func TestRedirectCall(t *testing.T) {
	t.Parallel()

	received := make(chan *http.Request, 1)
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		received <- r
		bodies <- r.PostForm.Get("Twiml")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rd, err := carrier.NewRedirector("AC1", "tok", testLogger(), carrier.WithRedirectBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewRedirector: %v", err)
	}

	if err := rd.RedirectCall(t.Context(), "CA123", "+15557778888"); err != nil {
		t.Fatalf("RedirectCall: %v", err)
	}

	r := <-received
	if !strings.Contains(r.URL.Path, "/Accounts/AC1/Calls/CA123.json") {
		t.Errorf("path = %q", r.URL.Path)
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != "AC1" || pass != "tok" {
		t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
	}
	twiml := <-bodies
	if !strings.Contains(twiml, "<Dial>+15557778888</Dial>") {
		t.Errorf("twiml = %q", twiml)
	}
}

// TestRedirectCall_ErrorStatus surfaces API failures.
func TestRedirectCall_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":20404,"message":"call not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	rd, err := carrier.NewRedirector("AC1", "tok", testLogger(), carrier.WithRedirectBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewRedirector: %v", err)
	}

	err = rd.RedirectCall(t.Context(), "CA404", "+15557778888")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want 404 surfaced", err)
	}
}

// TestRedirectCall_EmptyInputs fail fast without a request.
func TestRedirectCall_EmptyInputs(t *testing.T) {
	t.Parallel()

	rd, err := carrier.NewRedirector("AC1", "tok", testLogger(),
		carrier.WithRedirectBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("NewRedirector: %v", err)
	}
	if err := rd.RedirectCall(t.Context(), "", "+15557778888"); err == nil {
		t.Error("expected error for empty callSID")
	}
	if err := rd.RedirectCall(t.Context(), "CA123", ""); err == nil {
		t.Error("expected error for empty target")
	}
}
