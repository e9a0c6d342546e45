package openai

import (
	"testing"

	"github.com/voxgate-io/voxgate/pkg/provider/llm"
)

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
	if _, err := New("sk-test", "gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestBuildParams_RolesAndOptions checks message conversion and request options.
func TestBuildParams_RolesAndOptions(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You summarise phone calls.",
		Messages: []llm.Message{
			{Role: "user", Content: "Hi, I'm Ada."},
			{Role: "assistant", Content: "Hello Ada!"},
		},
		Temperature: 0.2,
		MaxTokens:   500,
		JSONOutput:  true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	// System prompt + two conversation messages.
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be system")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be user")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected third message to be assistant")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("temperature not applied: %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 500 {
		t.Errorf("max tokens not applied: %+v", params.MaxCompletionTokens)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON response format to be set")
	}
}

// TestBuildParams_UnknownRole checks that unknown roles return an error.
func TestBuildParams_UnknownRole(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "narrator", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// TestCapabilities_ModelFamilies checks per-model capability mapping.
func TestCapabilities_ModelFamilies(t *testing.T) {
	tests := []struct {
		model           string
		wantMaxOut      int
		wantContextSize int
	}{
		{"gpt-4o-mini", 16_384, 128_000},
		{"gpt-4o", 16_384, 128_000},
		{"gpt-4", 4_096, 8_192},
		{"gpt-3.5-turbo", 4_096, 16_385},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := New("sk-test", tt.model)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			caps := p.Capabilities()
			if caps.MaxOutputTokens != tt.wantMaxOut {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantMaxOut)
			}
			if caps.ContextWindow != tt.wantContextSize {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantContextSize)
			}
		})
	}
}
