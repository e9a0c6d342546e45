// Package deepgram provides a Deepgram-backed one-shot transcriber using the
// prerecorded REST API. It implements the stt.Transcriber interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/voxgate-io/voxgate/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"

	listenPath = "/v1/listen"
)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model (e.g., "nova-2").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(base string) Option {
	return func(t *Transcriber) {
		t.baseURL = base
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements stt.Transcriber backed by the Deepgram prerecorded
// API.
type Transcriber struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// response mirrors the slice of the Deepgram prerecorded response we consume.
type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe posts the audio clip to the prerecorded endpoint and returns the
// top alternative of the first channel.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, cfg stt.AudioConfig) (*stt.Result, error) {
	if len(audio) == 0 {
		return nil, errors.New("deepgram: audio must not be empty")
	}

	q := url.Values{}
	q.Set("model", t.model)
	q.Set("smart_format", "true")
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
		q.Set("channels", "1")
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+listenPath+"?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return nil, errors.New("deepgram: response contains no alternatives")
	}

	alt := out.Results.Channels[0].Alternatives[0]
	return &stt.Result{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
