package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendQueue    = 256
)

// WebSocket is a Relay client for the relay server's /ws/:code endpoint.
type WebSocket struct {
	handlers
	baseURL string
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

var _ Relay = (*WebSocket)(nil)

// NewWebSocket creates a client for the relay at baseURL, e.g. ws://localhost:8080.
func NewWebSocket(baseURL string, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:  logger,
		conns:   make(map[string]*wsConn),
	}
}

// WebSocketFactory returns a Factory producing WebSocket clients for baseURL.
func WebSocketFactory(baseURL string, logger *slog.Logger) Factory {
	return func() Relay { return NewWebSocket(baseURL, logger) }
}

func (w *WebSocket) Join(ctx context.Context, code string) error {
	w.mu.Lock()
	_, joined := w.conns[code]
	w.mu.Unlock()
	if joined {
		return nil
	}

	u, err := url.Parse(w.baseURL + "/ws/" + url.PathEscape(code))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	conn, resp, err := w.dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return fmt.Errorf("%w: upgrade failed (%d): %s", ErrRelayUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	c := &wsConn{
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
		logger: w.logger,
	}

	w.mu.Lock()
	w.conns[code] = c
	w.mu.Unlock()

	go c.writeLoop()
	go c.readLoop(w.dispatch)

	w.logger.Debug("Joined relay topic", "code", code, "relay", w.baseURL)
	return nil
}

func (w *WebSocket) Broadcast(ctx context.Context, code string, sig protocol.Signal) error {
	w.mu.Lock()
	c, ok := w.conns[code]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, code)
	}

	data, err := protocol.EncodeSignal(sig)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: connection closed", ErrRelayUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WebSocket) Leave(code string) error {
	w.mu.Lock()
	c, ok := w.conns[code]
	delete(w.conns, code)
	w.mu.Unlock()

	if ok {
		c.close()
	}
	return nil
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Relay write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) readLoop(dispatch func(protocol.Signal)) {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("Relay read failed", "error", err)
				}
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		sig, err := protocol.DecodeSignal(data)
		if err != nil {
			c.logger.Warn("Ignoring invalid relay message", "error", err)
			continue
		}
		dispatch(sig)
	}
}
