package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralis/api/internal/config"
	"github.com/auralis/api/internal/logging"
)

func newTestReplicateClient(t *testing.T, handler http.HandlerFunc) *ReplicateClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewReplicateClient(&config.ReplicateConfig{
		APIToken: "r8_test",
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
	}, logging.Discard())
}

func TestCreatePrediction_SendsVersionInputAndToken(t *testing.T) {
	var got CreatePredictionRequest
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p-123","status":"starting"}`))
	})

	pred, err := c.CreatePrediction(context.Background(), &CreatePredictionRequest{
		Version: "v1",
		Input: PredictionInput{
			Prompt:                "lofi",
			Duration:              12,
			ModelVersion:          "large",
			OutputFormat:          "mp3",
			NormalizationStrategy: "loudness",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-123", pred.ID)
	assert.Equal(t, "starting", pred.Status)

	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, "lofi", got.Input.Prompt)
	assert.Equal(t, 12, got.Input.Duration)
	assert.Equal(t, "mp3", got.Input.OutputFormat)
	assert.Equal(t, "loudness", got.Input.NormalizationStrategy)
}

func TestCreatePrediction_NonSuccessReturnsAPIError(t *testing.T) {
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"You have insufficient credit"}`))
	})

	_, err := c.CreatePrediction(context.Background(), &CreatePredictionRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "insufficient credit")
}

func TestGetPrediction_EscapesID(t *testing.T) {
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/predictions/a%2Fb", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id":"a/b","status":"succeeded","output":["http://x/a.mp3"]}`))
	})

	pred, err := c.GetPrediction(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", pred.Status)
	assert.JSONEq(t, `["http://x/a.mp3"]`, string(pred.Output))
}

func TestGetPrediction_MalformedBody(t *testing.T) {
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.GetPrediction(context.Background(), "p")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	var protoErr *ProtocolError
	assert.True(t, errors.As(err, &protoErr))
}

func TestCreatePrediction_MalformedSuccessIsProtocolError(t *testing.T) {
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := c.CreatePrediction(context.Background(), &CreatePredictionRequest{})
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, http.StatusCreated, protoErr.StatusCode)
}

func TestGetPrediction_NonOKSuccessIsAPIError(t *testing.T) {
	c := newTestReplicateClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"p","status":"processing"}`))
	})

	_, err := c.GetPrediction(context.Background(), "p")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusAccepted, apiErr.StatusCode)
}

func TestPredictionErrorMessage(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"CUDA out of memory"`, "CUDA out of memory"},
		{`{"code":"E1"}`, `{"code":"E1"}`},
	}
	for _, tc := range tests {
		p := &Prediction{Error: json.RawMessage(tc.raw)}
		assert.Equal(t, tc.want, p.ErrorMessage(), "raw %q", tc.raw)
	}
}

func TestIsConfigured(t *testing.T) {
	assert.False(t, NewReplicateClient(&config.ReplicateConfig{}, logging.Discard()).IsConfigured())
	assert.True(t, NewReplicateClient(&config.ReplicateConfig{APIToken: "x"}, logging.Discard()).IsConfigured())
}
