package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/metrics"
)

// wsConnection defines the WebSocket operations the channel needs, so tests
// can substitute a fake connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// DeriveWebSocketURL maps the REST base URL onto a WebSocket endpoint:
// http becomes ws, https becomes wss, host is reused, and the bearer token
// rides the query string because WebSocket handshakes cannot carry headers
// from every client environment.
func DeriveWebSocketURL(base *url.URL, path, token string) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     base.Host,
		Path:     path,
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return u.String()
}

// Channel is a single-writer wrapper over one WebSocket connection. Sends
// after close are dropped and counted, never an error or a panic, so event
// handlers can fire against a dying socket without crashing the session.
type Channel struct {
	conn wsConnection

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send      chan []byte
	onMessage func([]byte)
	onClose   func(ch *Channel, err error)
	closeErr  error
	notify    sync.Once
}

// Dial opens a WebSocket channel and starts its pumps. onMessage receives
// every raw frame in arrival order on a single goroutine; onClose fires
// exactly once when the socket dies, with a nil error for a deliberate
// Close and the read error otherwise. The closed channel is handed to the
// callback so owners juggling replacement connections can tell which one
// died.
func Dial(ctx context.Context, wsURL string, onMessage func([]byte), onClose func(ch *Channel, err error)) (*Channel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake rejected with %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	ch := &Channel{
		conn:      conn,
		send:      make(chan []byte, 256),
		onMessage: onMessage,
		onClose:   onClose,
	}
	metrics.IncConnection()
	go ch.writePump()
	go ch.readPump()
	return ch, nil
}

// IsOpen reports whether the channel still accepts sends.
func (c *Channel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send marshals v and queues it for transmission. If the channel is closed
// or the queue is full the envelope is dropped and counted; Send never
// blocks, errors, or panics.
func (c *Channel) Send(v any) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		metrics.SignalingDroppedSends.Inc()
		return
	}
	c.mu.RUnlock()

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound envelope", zap.Error(err))
		return
	}

	// Safety net against a send racing the channel close
	defer func() {
		if r := recover(); r != nil {
			metrics.SignalingDroppedSends.Inc()
			logging.Warn(context.Background(), "recovered from send on closing channel", zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		metrics.SignalingDroppedSends.Inc()
		logging.Warn(context.Background(), "outbound queue full, dropping envelope")
	}
}

// Close shuts the channel down. Safe to call more than once and safe to
// call concurrently with Send.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		// Closing send lets the writePump drain, send the close frame, and
		// tear down the connection.
		close(c.send)
	})
}

func (c *Channel) writePump() {
	defer func() { _ = c.conn.Close() }()
	writeWait := 10 * time.Second

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing frame", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Channel) readPump() {
	defer func() {
		metrics.DecConnection()
		c.notifyClose()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			deliberate := c.closed
			c.mu.RUnlock()
			if !deliberate {
				c.closeErr = err
			}
			c.Close()
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

func (c *Channel) notifyClose() {
	c.notify.Do(func() {
		if c.onClose != nil {
			c.onClose(c, c.closeErr)
		}
	})
}
