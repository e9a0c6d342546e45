package openai

import "testing"

// TestNew_Validation checks constructor argument validation and the model
// default.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID = %q, want default %q", p.ModelID(), DefaultModel)
	}
}

// TestModelDimensions covers the known-model dimension table.
func TestModelDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-unknown-model", 1536},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := modelDimensions(tt.model); got != tt.want {
				t.Errorf("modelDimensions(%q) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

// TestDimensions_MatchesModel checks that Dimensions reflects the configured
// model.
func TestDimensions_MatchesModel(t *testing.T) {
	p, err := New("sk-test", "text-embedding-3-large")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Dimensions() != 3072 {
		t.Errorf("Dimensions = %d, want 3072", p.Dimensions())
	}
}

// TestNarrow checks element-wise conversion to the stored float32 form.
func TestNarrow(t *testing.T) {
	in := []float64{0.5, -1.25, 0}
	out := narrow(in)
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i, v := range in {
		if out[i] != float32(v) {
			t.Errorf("out[%d] = %v, want %v", i, out[i], float32(v))
		}
	}
}
