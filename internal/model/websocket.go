package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypeError  = "error"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage carries one status report for the subscribed job
type WSStatusMessage struct {
	Type string `json:"type"`
	StatusReport
}

// WSErrorMessage represents an error that ended the subscription
type WSErrorMessage struct {
	Type         string  `json:"type"`
	PredictionID string  `json:"prediction_id"`
	Error        WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
