package deepgram_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxgate-io/voxgate/pkg/provider/stt"
	"github.com/voxgate-io/voxgate/pkg/provider/stt/deepgram"
)

const responseBody = `{
  "results": {
    "channels": [
      {
        "alternatives": [
          {"transcript": "I need to book a plumber.", "confidence": 0.97}
        ]
      }
    ]
  }
}`

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := deepgram.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotReq *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody))
	}))
	defer srv.Close()

	tr, err := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio := []byte{0x01, 0x02, 0x03, 0x04}
	res, err := tr.Transcribe(context.Background(), audio, stt.AudioConfig{
		SampleRate: 16000,
		Encoding:   "linear16",
		Language:   "en-US",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "I need to book a plumber." {
		t.Errorf("text = %q", res.Text)
	}
	if res.Confidence != 0.97 {
		t.Errorf("confidence = %v, want 0.97", res.Confidence)
	}

	if got := gotReq.Header.Get("Authorization"); got != "Token dg-key" {
		t.Errorf("Authorization = %q", got)
	}
	q := gotReq.URL.Query()
	if q.Get("encoding") != "linear16" || q.Get("sample_rate") != "16000" || q.Get("language") != "en-US" {
		t.Errorf("query = %v", q)
	}
	if string(gotBody) != string(audio) {
		t.Errorf("body = %v, want raw audio", gotBody)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	tr, _ := deepgram.New("dg-key")
	if _, err := tr.Transcribe(context.Background(), nil, stt.AudioConfig{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_msg":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr, _ := deepgram.New("bad-key", deepgram.WithBaseURL(srv.URL))
	if _, err := tr.Transcribe(context.Background(), []byte{1}, stt.AudioConfig{}); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestTranscribe_NoAlternatives(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	tr, _ := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))
	if _, err := tr.Transcribe(context.Background(), []byte{1}, stt.AudioConfig{}); err == nil {
		t.Fatal("expected error for empty result set")
	}
}
