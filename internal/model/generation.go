package model

import (
	"math"
	"strconv"
	"strings"
)

// Duration bounds in seconds.
const (
	MinDuration     = 8
	MaxDuration     = 30
	DefaultDuration = MinDuration
)

// ModelVersion is the MusicGen variant requested from the upstream model.
type ModelVersion string

const (
	ModelMelodyLarge ModelVersion = "melody-large"
	ModelLarge       ModelVersion = "large"
)

// Fixed upstream input parameters.
const (
	OutputFormatMP3               = "mp3"
	NormalizationStrategyLoudness = "loudness"
)

// GenerateRequestBody is the raw JSON accepted by POST /api/generate. Fields
// are loosely typed because the browser may send numbers as strings.
type GenerateRequestBody struct {
	Prompt       interface{} `json:"prompt"`
	Duration     interface{} `json:"duration"`
	ModelVersion interface{} `json:"model_version"`
}

// GenerationRequest is the normalized form of a generate call.
type GenerationRequest struct {
	Prompt       string       `json:"prompt" validate:"required"`
	Duration     int          `json:"duration" validate:"min=8,max=30"`
	ModelVersion ModelVersion `json:"model_version" validate:"oneof=melody-large large"`
}

// GenerateResponse is returned once the upstream has accepted the job.
type GenerateResponse struct {
	PredictionID string         `json:"prediction_id"`
	Status       LifecycleState `json:"status"`
}

// NewGenerationRequest normalizes a raw body: the prompt is trimmed, the
// duration clamped and the model variant mapped onto the closed set.
func NewGenerationRequest(body GenerateRequestBody) GenerationRequest {
	prompt, _ := body.Prompt.(string)
	return GenerationRequest{
		Prompt:       strings.TrimSpace(prompt),
		Duration:     ClampDuration(body.Duration),
		ModelVersion: NormalizeModelVersion(body.ModelVersion),
	}
}

// ClampDuration converts a loosely typed duration into whole seconds within
// [MinDuration, MaxDuration]. Missing or unparseable input yields
// DefaultDuration.
func ClampDuration(raw interface{}) int {
	var seconds float64
	switch v := raw.(type) {
	case float64:
		seconds = math.Trunc(v)
	case int:
		seconds = float64(v)
	case int64:
		seconds = float64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return DefaultDuration
		}
		seconds = float64(n)
	case bool:
		if v {
			seconds = 1
		}
	default:
		return DefaultDuration
	}

	if math.IsNaN(seconds) {
		return DefaultDuration
	}
	if seconds < MinDuration {
		return MinDuration
	}
	if seconds > MaxDuration {
		return MaxDuration
	}
	return int(seconds)
}

// NormalizeModelVersion maps any input onto the supported variants. Only the
// literal "large" selects ModelLarge; "melody", empty and unknown values all
// select ModelMelodyLarge.
func NormalizeModelVersion(raw interface{}) ModelVersion {
	if s, ok := raw.(string); ok && s == string(ModelLarge) {
		return ModelLarge
	}
	return ModelMelodyLarge
}
