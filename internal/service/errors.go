package service

import (
	"errors"
	"net/http"

	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/model"
)

// ErrorKind classifies a failure for the HTTP layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindServiceUnavailable
	KindPaymentRequired
	KindUpstream
	KindUpstreamFetch
	KindUpstreamProtocol
	KindGenerationFailed
	KindGenerationCanceled
)

// HTTPStatus maps the kind onto a response status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindUpstream, KindUpstreamFetch, KindUpstreamProtocol:
		return http.StatusBadGateway
	case KindGenerationFailed, KindGenerationCanceled:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error code sent next to the message.
func (k ErrorKind) Code() string {
	switch k {
	case KindInvalidInput:
		return "VALIDATION_ERROR"
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindPaymentRequired:
		return "PAYMENT_REQUIRED"
	case KindUpstream:
		return "UPSTREAM_ERROR"
	case KindUpstreamFetch:
		return "UPSTREAM_FETCH_ERROR"
	case KindUpstreamProtocol:
		return "UPSTREAM_PROTOCOL_ERROR"
	case KindGenerationFailed:
		return "GENERATION_FAILED"
	case KindGenerationCanceled:
		return "GENERATION_CANCELED"
	default:
		return "SERVICE_ERROR"
	}
}

// Error is a classified service failure. Message is safe to show to the
// browser; Err keeps the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// ReportFailure reports whether a status report describes a negative
// terminal state and which kind it maps to.
func ReportFailure(report *model.StatusReport) (ErrorKind, bool) {
	if !report.Status.IsNegative() {
		return KindInternal, false
	}
	switch report.Status {
	case model.StateFailed:
		return KindGenerationFailed, true
	case model.StateCanceled:
		return KindGenerationCanceled, true
	}
	return KindInternal, false
}

// protocolFailure maps an undecodable upstream reply, or returns nil.
func protocolFailure(err error) *Error {
	var protoErr *client.ProtocolError
	if errors.As(err, &protoErr) {
		return &Error{Kind: KindUpstreamProtocol, Message: MsgMalformedReply, Err: err}
	}
	return nil
}

// User-facing messages.
const (
	MsgMissingPrompt    = "Please provide a text prompt."
	MsgInvalidRequest   = "Invalid generation request."
	MsgMissingToken     = "Replicate API token not set. Set REPLICATE_API_TOKEN in your environment or .env file."
	MsgOutOfCredit      = "Your Replicate account is out of credit. Add credit at https://replicate.com/account/billing and try again in a few minutes."
	MsgMissingJobID     = "Prediction ID is required."
	MsgMissingURL       = "Missing url parameter"
	MsgURLNotAllowed    = "The url parameter must point to an allowed audio host."
	MsgNoPredictionID   = "Replicate accepted the request but returned no prediction id."
	MsgMalformedReply   = "Replicate returned a response that could not be read."
	MsgUnexpectedFault  = "An unexpected error occurred."
	msgUpstreamFallback = "Replicate request failed."
)
