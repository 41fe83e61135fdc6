package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/config"
)

// AudioFetcher defines the interface for fetching remote audio assets
type AudioFetcher interface {
	Fetch(ctx context.Context, url string) (*AudioResponse, error)
}

// AudioClient implements AudioFetcher over plain HTTPS
type AudioClient struct {
	httpClient *http.Client
	userAgent  string
	log        logrus.FieldLogger
}

// AudioResponse is an open remote audio body. The caller must close Body.
type AudioResponse struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// FetchError is returned when the remote host answers with a non-2xx status
type FetchError struct {
	StatusCode int
	URL        string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("remote audio returned status %d", e.StatusCode)
}

// NewAudioClient creates a new audio fetch client. Certificate verification
// stays on. The transport only bounds the wait for response headers; idle
// deadlines during the body come from the caller's context because they
// differ per relay mode.
func NewAudioClient(cfg *config.RelayConfig, log logrus.FieldLogger) *AudioClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = max(cfg.StreamTimeout, cfg.DownloadTimeout)

	return &AudioClient{
		httpClient: &http.Client{
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		log:       log,
	}
}

// Fetch opens the remote resource. On success the body is left unread so the
// caller can stream it; any non-2xx answer is turned into a FetchError before
// a single byte reaches the caller.
func (c *AudioClient) Fetch(ctx context.Context, url string) (*AudioResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("url", url).Warn("[Audio] ✗ fetch failed")
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		c.log.WithFields(logrus.Fields{"url": url, "status": resp.StatusCode}).Warn("[Audio] ✗ unexpected status")
		return nil, &FetchError{StatusCode: resp.StatusCode, URL: url}
	}

	c.log.WithFields(logrus.Fields{
		"url":            url,
		"content_length": resp.ContentLength,
	}).Debug("[Audio] ← opened")

	return &AudioResponse{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
