package e2e

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func submit(t *testing.T, ta *testApp) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate",
		`{"prompt":"dreamy synthwave","duration":20,"model_version":"large"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	id, _ := result["prediction_id"].(string)
	if id == "" {
		t.Fatalf("expected 'prediction_id' in response, got %v", result)
	}
	if result["status"] != "starting" {
		t.Errorf("expected status 'starting', got %v", result["status"])
	}
	return id
}

func TestGeneration_FullFlow(t *testing.T) {
	ta := setupApp(t, 0)
	id := submit(t, ta)

	input, _ := ta.upstream.input(id)
	if input.Duration != 20 || input.ModelVersion != "large" || input.OutputFormat != "mp3" {
		t.Errorf("unexpected upstream input: %+v", input)
	}

	// First poll: still running.
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/status/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["status"] != "processing" || result["prediction_id"] != id {
		t.Fatalf("expected processing report, got %v", result)
	}

	// Second poll: done.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/status/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result = parseJSON(t, resp)
	if result["status"] != "succeeded" {
		t.Fatalf("expected succeeded report, got %v", result)
	}
	audioURL, _ := result["audio_url"].(string)
	if !strings.HasSuffix(audioURL, "/files/"+id+"/out.mp3") {
		t.Errorf("unexpected audio_url %q", audioURL)
	}
	if result["stream_url"] != audioURL {
		t.Errorf("expected stream_url to equal audio_url, got %v", result["stream_url"])
	}

	// Download through the relay.
	downloadURL, _ := result["download_url"].(string)
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, downloadURL, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="auralis-generated.mp3"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if body := readBody(t, resp); body != testAudio {
		t.Errorf("relayed body mismatch: %q", body)
	}
}

func TestGeneration_NoAuth(t *testing.T) {
	ta := setupApp(t, 0)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", `{"prompt":"x"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestGeneration_EmptyPrompt(t *testing.T) {
	ta := setupApp(t, 0)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate", `{"prompt":"   "}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if result := parseJSON(t, resp); result["error"] != "Please provide a text prompt." {
		t.Errorf("unexpected error %v", result["error"])
	}
	if ta.upstream.jobCount() != 0 {
		t.Error("expected no upstream job to be created")
	}
}

func TestStatus_UnknownJobIsBadGateway(t *testing.T) {
	ta := setupApp(t, 0)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/status/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadGateway)
}

func TestStatus_PollThrottle(t *testing.T) {
	ta := setupApp(t, 10*time.Second)
	id := submit(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/status/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/status/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRelay_RejectsForeignHost(t *testing.T) {
	ta := setupApp(t, 0)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/stream?url=https%3A%2F%2Fexample.com%2Fa.mp3", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestHealth(t *testing.T) {
	ta := setupApp(t, 0)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result["status"])
	}
}
