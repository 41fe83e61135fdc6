package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/config"
)

// MusicGenerator defines the operations used against the generation service
type MusicGenerator interface {
	CreatePrediction(ctx context.Context, req *CreatePredictionRequest) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	IsConfigured() bool
}

// ReplicateClient implements MusicGenerator for the Replicate predictions API
type ReplicateClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	log        logrus.FieldLogger
}

// PredictionInput is the MusicGen input object
type PredictionInput struct {
	Prompt                string `json:"prompt"`
	Duration              int    `json:"duration"`
	ModelVersion          string `json:"model_version"`
	OutputFormat          string `json:"output_format"`
	NormalizationStrategy string `json:"normalization_strategy"`
}

// CreatePredictionRequest represents the job creation body
type CreatePredictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

// Prediction represents a job as reported by Replicate. Output and Error are
// kept raw because their shape depends on the model.
type Prediction struct {
	ID      string          `json:"id"`
	Version string          `json:"version,omitempty"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ErrorMessage returns the upstream error as text. String errors are
// returned as-is, structured ones as their JSON encoding, null as "".
func (p *Prediction) ErrorMessage() string {
	raw := bytes.TrimSpace(p.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// APIError is returned for non-2xx responses and carries the raw body
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate API error (status %d): %s", e.StatusCode, e.Body)
}

// ProtocolError is returned when a successful response cannot be decoded
type ProtocolError struct {
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed replicate response (status %d): %v", e.StatusCode, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewReplicateClient creates a new Replicate API client. The timeout only has
// to cover job acceptance and status reads, never a full generation.
func NewReplicateClient(cfg *config.ReplicateConfig, log logrus.FieldLogger) *ReplicateClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReplicateClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		log:      log,
	}
}

// CreatePrediction submits a generation job and returns as soon as the
// upstream has accepted it
func (c *ReplicateClient) CreatePrediction(ctx context.Context, req *CreatePredictionRequest) (*Prediction, error) {
	var result Prediction
	if err := c.post(ctx, "/v1/predictions", req, anySuccess, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrediction reads the current state of a job. It never mutates it.
func (c *ReplicateClient) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	endpoint := "/v1/predictions/" + url.PathEscape(id)
	var result Prediction
	if err := c.get(ctx, endpoint, onlyOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has an API token
func (c *ReplicateClient) IsConfigured() bool {
	return c.apiToken != ""
}

// acceptStatus decides which response codes count as success
type acceptStatus func(code int) bool

func anySuccess(code int) bool { return code >= 200 && code < 300 }

func onlyOK(code int) bool { return code == http.StatusOK }

// post sends a POST request with JSON body
func (c *ReplicateClient) post(ctx context.Context, endpoint string, body interface{}, accept acceptStatus, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, accept, result)
}

// get sends a GET request and parses JSON response
func (c *ReplicateClient) get(ctx context.Context, endpoint string, accept acceptStatus, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, accept, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ReplicateClient) doRequest(req *http.Request, accept acceptStatus, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	log := c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})
	log.Debug("[Replicate API] →")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("[Replicate API] ✗ request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("[Replicate API] ✗ failed to read response")
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.WithField("status", resp.StatusCode).Debugf("[Replicate API] ← %s", string(respBody))

	if !accept(resp.StatusCode) {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.WithError(err).Warn("[Replicate API] ✗ unmarshal error")
		return &ProtocolError{StatusCode: resp.StatusCode, Err: err}
	}

	return nil
}
