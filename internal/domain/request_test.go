package domain

import (
	"errors"
	"testing"
)

func TestGenerationRequestNormalizeDefaults(t *testing.T) {
	r := &GenerationRequest{Prompt: "  a red fox in the snow  "}
	r.Normalize()

	if r.Prompt != "a red fox in the snow" {
		t.Fatalf("Prompt = %q, want trimmed prompt", r.Prompt)
	}
	if r.DurationSeconds != DefaultDurationSeconds {
		t.Fatalf("DurationSeconds = %d, want %d", r.DurationSeconds, DefaultDurationSeconds)
	}
	if r.AspectRatio != DefaultAspectRatio {
		t.Fatalf("AspectRatio = %q, want %q", r.AspectRatio, DefaultAspectRatio)
	}
	if r.Model != DefaultModel {
		t.Fatalf("Model = %q, want %q", r.Model, DefaultModel)
	}
}

func TestGenerationRequestNormalizeKeepsExplicitValues(t *testing.T) {
	r := &GenerationRequest{
		Prompt:          "city timelapse",
		DurationSeconds: 8,
		AspectRatio:     "9:16",
		Model:           "veo-custom",
	}
	r.Normalize()

	if r.DurationSeconds != 8 {
		t.Fatalf("DurationSeconds should keep explicit value, got %d", r.DurationSeconds)
	}
	if r.AspectRatio != "9:16" {
		t.Fatalf("AspectRatio should keep explicit value, got %q", r.AspectRatio)
	}
	if r.Model != "veo-custom" {
		t.Fatalf("Model should keep explicit value, got %q", r.Model)
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       GenerationRequest
		wantField string
	}{
		{
			name: "valid",
			req:  GenerationRequest{Prompt: "ok", DurationSeconds: 5, AspectRatio: "16:9", Model: DefaultModel},
		},
		{
			name:      "empty prompt",
			req:       GenerationRequest{Prompt: "   ", DurationSeconds: 5, AspectRatio: "16:9", Model: DefaultModel},
			wantField: "prompt",
		},
		{
			name:      "duration too short",
			req:       GenerationRequest{Prompt: "ok", DurationSeconds: 0, AspectRatio: "16:9", Model: DefaultModel},
			wantField: "duration_seconds",
		},
		{
			name:      "duration too long",
			req:       GenerationRequest{Prompt: "ok", DurationSeconds: 9, AspectRatio: "16:9", Model: DefaultModel},
			wantField: "duration_seconds",
		},
		{
			name:      "unsupported aspect ratio",
			req:       GenerationRequest{Prompt: "ok", DurationSeconds: 5, AspectRatio: "4:3", Model: DefaultModel},
			wantField: "aspect_ratio",
		},
		{
			name:      "missing model",
			req:       GenerationRequest{Prompt: "ok", DurationSeconds: 5, AspectRatio: "16:9"},
			wantField: "model",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate error = %v, want *ValidationError", err)
			}
			if vErr.Field != tc.wantField {
				t.Fatalf("Field = %q, want %q", vErr.Field, tc.wantField)
			}
		})
	}
}

func TestGenerationRequestValidateBounds(t *testing.T) {
	for d := MinDurationSeconds; d <= MaxDurationSeconds; d++ {
		req := GenerationRequest{Prompt: "ok", DurationSeconds: d, AspectRatio: "1:1", Model: DefaultModel}
		if err := req.Validate(); err != nil {
			t.Fatalf("duration %d should be valid, got %v", d, err)
		}
	}
}
