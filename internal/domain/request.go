package domain

import (
	"fmt"
	"strings"
)

var allowedAspectRatios = map[string]struct{}{
	"16:9": {},
	"1:1":  {},
	"9:16": {},
}

const (
	// DefaultModel is the publisher model used when the request omits one.
	DefaultModel = "veo-2.0-generate-001"
	// DefaultAspectRatio is applied when the request omits the aspect ratio.
	DefaultAspectRatio = "16:9"
	// DefaultDurationSeconds is the clip length used when none is requested.
	DefaultDurationSeconds = 5
	// MinDurationSeconds is the shortest clip the model family supports.
	MinDurationSeconds = 1
	// MaxDurationSeconds is the longest clip the model family supports.
	MaxDurationSeconds = 8
)

// GenerationRequest captures one user submission. It is a value: normalize
// and validate it once, then treat it as immutable for the rest of the run.
type GenerationRequest struct {
	Prompt          string
	DurationSeconds int
	AspectRatio     string
	Model           string
}

// Normalize trims the prompt and fills server defaults without overriding
// explicit choices.
func (r *GenerationRequest) Normalize() {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	r.Model = strings.TrimSpace(r.Model)
	if r.DurationSeconds == 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
}

// Validate checks the request against the documented constraints before any
// network call. Violations are reported as *ValidationError naming the field.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "prompt is required"}
	}
	if r.DurationSeconds < MinDurationSeconds || r.DurationSeconds > MaxDurationSeconds {
		return &ValidationError{
			Field:  "duration_seconds",
			Reason: fmt.Sprintf("duration must be between %d and %d seconds", MinDurationSeconds, MaxDurationSeconds),
		}
	}
	if _, ok := allowedAspectRatios[r.AspectRatio]; !ok {
		return &ValidationError{Field: "aspect_ratio", Reason: "aspect_ratio must be one of 16:9, 1:1, 9:16"}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Reason: "model is required"}
	}
	return nil
}
