package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/auralis/api/internal/auth"
	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/config"
	"github.com/auralis/api/internal/handler"
	"github.com/auralis/api/internal/logging"
	"github.com/auralis/api/internal/middleware"
	"github.com/auralis/api/internal/service"
	ws "github.com/auralis/api/internal/websocket"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testAudio     = "ID3\x03\x00fake-mp3-frames"
)

// fakeReplicate serves the predictions API and the generated files. A job
// reports processing on its first status read and succeeded afterwards.
type fakeReplicate struct {
	*httptest.Server

	mu     sync.Mutex
	reads  map[string]int
	inputs map[string]client.PredictionInput
}

func newFakeReplicate(t *testing.T) *fakeReplicate {
	t.Helper()
	f := &fakeReplicate{reads: map[string]int{}, inputs: map[string]client.PredictionInput{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		var req client.CreatePredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"bad body"}`, http.StatusBadRequest)
			return
		}
		id := uuid.NewString()
		f.mu.Lock()
		f.inputs[id] = req.Input
		f.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q,"status":"starting"}`, id)
	})
	mux.HandleFunc("/v1/predictions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/predictions/")
		f.mu.Lock()
		_, known := f.inputs[id]
		f.reads[id]++
		reads := f.reads[id]
		f.mu.Unlock()

		if !known {
			http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
			return
		}
		if reads == 1 {
			fmt.Fprintf(w, `{"id":%q,"status":"processing"}`, id)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"status":"succeeded","output":[%q]}`, id, f.URL+"/files/"+id+"/out.mp3")
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, testAudio)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeReplicate) input(id string) (client.PredictionInput, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.inputs[id]
	return in, ok
}

func (f *fakeReplicate) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	upstream *fakeReplicate
}

// setupApp creates a Fiber app wired like main.go against a fake upstream.
func setupApp(t *testing.T, pollInterval time.Duration) *testApp {
	t.Helper()
	upstream := newFakeReplicate(t)
	log := logging.Discard()

	replicateCfg := config.ReplicateConfig{
		APIToken:     "r8_e2e",
		BaseURL:      upstream.URL,
		ModelVersion: "e2e-version",
		Timeout:      2 * time.Second,
	}
	relayCfg := config.RelayConfig{
		StreamTimeout:   2 * time.Second,
		DownloadTimeout: 2 * time.Second,
		ChunkSize:       8192,
		UserAgent:       "Auralis/1.0",
		Filename:        "auralis-generated.mp3",
		AllowedHosts:    []string{"127.0.0.1"},
	}

	replicateClient := client.NewReplicateClient(&replicateCfg, log)
	audioClient := client.NewAudioClient(&relayCfg, log)

	generateService := service.NewGenerateService(replicateClient, validator.New(), replicateCfg.ModelVersion, nil, log)
	statusService := service.NewStatusService(replicateClient, nil, log)
	relayService := service.NewRelayService(audioClient, relayCfg, nil, log)

	generateHandler := handler.NewGenerateHandler(generateService, log)
	statusHandler := handler.NewStatusHandler(statusService, log)
	audioHandler := handler.NewAudioHandler(relayService, log)
	pageHandler := handler.NewPageHandler(replicateClient, nil)

	authMiddleware := middleware.NewAuthMiddleware(auth.NewHMACVerifier(testJWTSecret, "", ""))
	rateLimiter := middleware.NewRateLimiter(nil, nil, log)

	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler(log)})
	app.Get("/health", pageHandler.Health)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/generate", rateLimiter.GenerateLimit(10000), generateHandler.Generate)
	api.Get("/status/:jobId", rateLimiter.PollThrottle(pollInterval), statusHandler.Status)
	api.Get("/stream", audioHandler.Stream)
	api.Get("/download", audioHandler.Download)

	hub := ws.NewHub(statusService, 20*time.Millisecond, log)
	wsGroup := app.Group("/ws", authMiddleware.AuthenticateUpgrade(), func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsGroup.Get("/status/:jobId", rateLimiter.WatchLimit(10000), fiberws.New(func(c *fiberws.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	return &testApp{app: app, upstream: upstream}
}

// generateToken creates an HMAC JWT for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.NewHMACVerifier(testJWTSecret, "", "").Sign("test-user-123", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
