package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/auralis/api/internal/model"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// HandleConnection streams status updates for jobID to c until the job ends
// or the browser goes away.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := h.Subscribe(jobID)
	writerDone := make(chan struct{})
	// The connection is recycled once this returns, so the writer has to be
	// gone by then.
	defer func() {
		h.Unsubscribe(client)
		<-writerDone
	}()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		return c.WriteMessage(messageType, data)
	}

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					_ = c.Close()
					return
				}
				if err := write(websocket.TextMessage, message); err != nil {
					_ = c.Close()
					return
				}

			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					_ = c.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("prediction_id", jobID).Debug("websocket read error")
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
