package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/config"
	"github.com/auralis/api/internal/observe"
)

// RelayMode selects how relayed audio is presented to the browser.
type RelayMode string

const (
	ModeInline     RelayMode = "inline"
	ModeAttachment RelayMode = "attachment"
)

const audioContentType = "audio/mpeg"

// RelayService fetches generated audio from the upstream host and forwards
// it to the caller chunk by chunk.
type RelayService struct {
	fetcher client.AudioFetcher
	cfg     config.RelayConfig
	metrics *observe.Metrics
	log     logrus.FieldLogger
}

func NewRelayService(fetcher client.AudioFetcher, cfg config.RelayConfig, metrics *observe.Metrics, log logrus.FieldLogger) *RelayService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 60 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 120 * time.Second
	}
	if cfg.Filename == "" {
		cfg.Filename = "auralis-generated.mp3"
	}
	return &RelayService{
		fetcher: fetcher,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
	}
}

// Open validates rawURL and opens the remote audio. Every failure happens
// here, before the caller has written any response byte. The returned Stream
// owns the remote connection and must be closed.
func (s *RelayService) Open(ctx context.Context, rawURL string, mode RelayMode) (*Stream, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: MsgMissingURL}
	}

	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: MsgURLNotAllowed, Err: err}
	}
	if !hostAllowed(target.Hostname(), s.cfg.AllowedHosts) {
		s.log.WithField("host", target.Hostname()).Warn("relay host rejected")
		return nil, &Error{Kind: KindInvalidInput, Message: MsgURLNotAllowed}
	}

	// The timeout bounds silence from the remote host, not the transfer.
	timeout := s.cfg.StreamTimeout
	if mode == ModeAttachment {
		timeout = s.cfg.DownloadTimeout
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	idle := time.AfterFunc(timeout, cancel)

	resp, err := s.fetcher.Fetch(fetchCtx, target.String())
	if err != nil {
		idle.Stop()
		cancel()
		s.metrics.RecordRelayFailure(ctx, string(mode))
		return nil, &Error{
			Kind:    KindUpstreamFetch,
			Message: fmt.Sprintf("Failed to fetch audio: %v", err),
			Err:     err,
		}
	}

	return &Stream{
		ContentType: audioContentType,
		Disposition: s.disposition(mode),
		body:        resp.Body,
		reader:      bufio.NewReaderSize(resp.Body, s.cfg.ChunkSize),
		cancel:      cancel,
		idle:        idle,
		idleTimeout: timeout,
		mode:        mode,
		metrics:     s.metrics,
		log:         s.log.WithFields(logrus.Fields{"mode": mode, "host": target.Hostname()}),
	}, nil
}

func (s *RelayService) disposition(mode RelayMode) string {
	if mode == ModeAttachment {
		return fmt.Sprintf(`attachment; filename="%s"`, s.cfg.Filename)
	}
	return "inline"
}

// hostAllowed matches host against the allow list. An entry allows the host
// itself and its subdomains; "*" or an empty list allows any host.
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimPrefix(entry, "."))
		if entry == "*" || host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// Stream is an open relay. Reads pull from the remote host in ChunkSize
// units. A failure after streaming started surfaces as a non-EOF read error,
// which makes the HTTP server drop the connection instead of finishing the
// chunked body. A remote host that stays silent for longer than the idle
// timeout cancels the transfer.
type Stream struct {
	ContentType string
	Disposition string

	body        io.ReadCloser
	reader      *bufio.Reader
	cancel      context.CancelFunc
	idle        *time.Timer
	idleTimeout time.Duration
	mode        RelayMode
	metrics     *observe.Metrics
	log         logrus.FieldLogger
	written     int64
	closeOnce   sync.Once
}

func (s *Stream) Read(p []byte) (int, error) {
	s.idle.Reset(s.idleTimeout)
	n, err := s.reader.Read(p)
	s.written += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		s.log.WithError(err).WithField("bytes", s.written).Warn("relay interrupted")
		return n, fmt.Errorf("relay interrupted after %d bytes: %w", s.written, err)
	}
	return n, err
}

// Close releases the remote connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.idle.Stop()
		err = s.body.Close()
		s.cancel()
		s.metrics.AddRelayBytes(context.Background(), string(s.mode), s.written)
		s.log.WithField("bytes", s.written).Debug("relay finished")
	})
	return err
}
