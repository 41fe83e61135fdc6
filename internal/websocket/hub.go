package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/model"
	"github.com/auralis/api/internal/service"
)

// StatusPoller reads the current status of a job.
type StatusPoller interface {
	Poll(ctx context.Context, jobID string) (*model.StatusReport, error)
}

// Client is one subscriber to a job feed. Send is closed when the feed ends
// or the client is dropped.
type Client struct {
	JobID string
	Send  chan []byte
}

// feed polls one job on behalf of all its subscribers. A send on kick asks
// the loop for an immediate poll.
type feed struct {
	clients map[*Client]struct{}
	kick    chan struct{}
	cancel  context.CancelFunc
}

// Hub fans job status out to WebSocket subscribers. Each job with at least
// one subscriber gets a single poll loop, regardless of how many browsers
// watch it.
type Hub struct {
	poller   StatusPoller
	interval time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	feeds map[string]*feed
}

func NewHub(poller StatusPoller, interval time.Duration, log logrus.FieldLogger) *Hub {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Hub{
		poller:   poller,
		interval: interval,
		log:      log,
		feeds:    make(map[string]*feed),
	}
}

// Subscribe registers a client for jobID, starting the job's poll loop if
// it is the first subscriber. Joining a running feed triggers a fresh poll,
// so every subscriber's first message reflects the current upstream state.
func (h *Hub) Subscribe(jobID string) *Client {
	client := &Client{JobID: jobID, Send: make(chan []byte, 16)}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[jobID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{
			clients: make(map[*Client]struct{}),
			kick:    make(chan struct{}, 1),
			cancel:  cancel,
		}
		h.feeds[jobID] = f
		go h.run(ctx, jobID, f)
	} else {
		select {
		case f.kick <- struct{}{}:
		default:
		}
	}
	f.clients[client] = struct{}{}

	h.log.WithField("prediction_id", jobID).Debug("websocket subscriber added")
	return client
}

// Unsubscribe removes a client. The poll loop stops with its last client.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[client.JobID]
	if !ok {
		return
	}
	if _, ok := f.clients[client]; !ok {
		return
	}
	delete(f.clients, client)
	close(client.Send)

	if len(f.clients) == 0 {
		f.cancel()
		delete(h.feeds, client.JobID)
	}
}

// Subscribers returns the number of clients watching jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[jobID]; ok {
		return len(f.clients)
	}
	return 0
}

func (h *Hub) run(ctx context.Context, jobID string, f *feed) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if done := h.pollOnce(ctx, jobID, f); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-f.kick:
		}
	}
}

// pollOnce reads the job once and broadcasts the result to f. It returns
// true when the feed is over.
func (h *Hub) pollOnce(ctx context.Context, jobID string, f *feed) bool {
	report, err := h.poller.Poll(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}

	var (
		msg      interface{}
		terminal bool
	)
	if err != nil {
		msg = errorMessage(jobID, err)
		terminal = true
	} else {
		msg = model.WSStatusMessage{Type: model.WSMessageTypeStatus, StatusReport: *report}
		terminal = report.Status.IsTerminal()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal websocket message")
		return false
	}

	return h.broadcast(jobID, f, data, terminal)
}

// broadcast sends data to the clients of f. It returns true when f is over,
// including when f was already replaced by a newer feed for the same job.
func (h *Hub) broadcast(jobID string, f *feed, data []byte, terminal bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.feeds[jobID] != f {
		return true
	}

	for client := range f.clients {
		select {
		case client.Send <- data:
		default:
			// Slow consumer; drop it rather than stall the feed.
			delete(f.clients, client)
			close(client.Send)
		}
	}

	if terminal || len(f.clients) == 0 {
		for client := range f.clients {
			close(client.Send)
		}
		f.cancel()
		delete(h.feeds, jobID)
		return true
	}
	return false
}

func errorMessage(jobID string, err error) model.WSErrorMessage {
	kind := service.KindOf(err)
	message := service.MsgUnexpectedFault
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}
	return model.WSErrorMessage{
		Type:         model.WSMessageTypeError,
		PredictionID: jobID,
		Error: model.WSError{
			Code:    kind.Code(),
			Message: message,
		},
	}
}
