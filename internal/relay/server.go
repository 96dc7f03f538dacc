package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const serverPingInterval = 54 * time.Second

// Server exposes a Hub to WebSocket clients.
type Server struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type client struct {
	id     string
	code   string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
}

func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origins are checked by the HTTP middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleSignaling upgrades GET /ws/:code and joins the connection to the topic.
func (s *Server) HandleSignaling(c *gin.Context) {
	code := c.Param("code")
	if !protocol.ValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room code must be 6 digits"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade relay connection", "error", err)
		return
	}

	cl := &client{
		id:     uuid.New().String(),
		code:   code,
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	unsubscribe := s.hub.Subscribe(code, cl.id, cl.enqueue)
	s.logger.Info("Peer joined room", "code", code, "peer", cl.id, "members", s.hub.Members(code))

	go cl.writePump()
	cl.readPump(s.hub)

	unsubscribe()
	s.logger.Info("Peer left room", "code", code, "peer", cl.id)
}

func (cl *client) enqueue(sig protocol.Signal) {
	data, err := protocol.EncodeSignal(sig)
	if err != nil {
		cl.logger.Warn("Failed to encode relay message", "error", err)
		return
	}
	select {
	case cl.send <- data:
	case <-cl.done:
	default:
		cl.logger.Warn("Dropping relay message, buffer full", "peer", cl.id)
	}
}

func (cl *client) readPump(hub *Hub) {
	defer func() {
		close(cl.done)
		_ = cl.conn.Close()
	}()

	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				cl.logger.Warn("Relay connection error", "peer", cl.id, "error", err)
			}
			return
		}

		sig, err := protocol.DecodeSignal(data)
		if err != nil {
			cl.logger.Debug("Ignoring invalid message", "peer", cl.id, "error", err)
			continue
		}

		switch sig.Event {
		case protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate:
			hub.Publish(cl.code, cl.id, sig)
		default:
			// Presence is generated by the hub only.
			cl.logger.Debug("Ignoring client event", "peer", cl.id, "event", sig.Event.String())
		}
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(serverPingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}
