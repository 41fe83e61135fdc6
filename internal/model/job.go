package model

// LifecycleState is the phase of an upstream job as reported by the
// generation service. Values outside the known set are passed through
// verbatim.
type LifecycleState string

const (
	StateStarting   LifecycleState = "starting"
	StateProcessing LifecycleState = "processing"
	StateSucceeded  LifecycleState = "succeeded"
	StateFailed     LifecycleState = "failed"
	StateCanceled   LifecycleState = "canceled"
)

// Messages surfaced for negative terminal states.
const (
	MsgGenerationFailed   = "Music generation failed."
	MsgGenerationCanceled = "Generation was canceled."
	MsgNoAudioURL         = "No audio URL in output."
)

// IsKnown reports whether s is one of the recognized lifecycle states.
func (s LifecycleState) IsKnown() bool {
	switch s {
	case StateStarting, StateProcessing, StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can follow s.
func (s LifecycleState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// IsNegative reports whether s is a failed or canceled terminal state.
func (s LifecycleState) IsNegative() bool {
	return s == StateFailed || s == StateCanceled
}

// StatusReport is the normalized answer to a status poll. Its shape depends
// on Status:
//   - starting, processing and unrecognized states carry PredictionID only
//   - succeeded carries AudioURL, StreamURL and DownloadURL
//   - failed and canceled carry Error
type StatusReport struct {
	Status       LifecycleState `json:"status"`
	PredictionID string         `json:"prediction_id,omitempty"`
	AudioURL     string         `json:"audio_url,omitempty"`
	StreamURL    string         `json:"stream_url,omitempty"`
	DownloadURL  string         `json:"download_url,omitempty"`
	Error        string         `json:"error,omitempty"`
}
