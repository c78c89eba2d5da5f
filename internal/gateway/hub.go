package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval = 20 * time.Second
	// idleTimeout must outlast the ping interval so a live client is never
	// dropped between pings.
	idleTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
)

// Client is the connection surface handed to the orchestrator.
type Client interface {
	ID() string
	Send(Frame)
}

// Handler receives each accepted question together with its connection.
type Handler interface {
	Handle(ctx context.Context, client Client, sessionID, text string)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, client Client, sessionID, text string)

func (f HandlerFunc) Handle(ctx context.Context, client Client, sessionID, text string) {
	f(ctx, client, sessionID, text)
}

// Hub tracks live connections and upgrades incoming HTTP requests.
type Hub struct {
	handler  Handler
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates a hub dispatching questions to handler.
func NewHub(handler Handler, logger zerolog.Logger) *Hub {
	return &Hub{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients connect from arbitrary chat-UI origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*Conn]struct{}{},
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP makes the hub mountable as an HTTP handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	id := uuid.New().String()
	conn := &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan Frame, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger.With().Str("conn_id", id).Logger(),
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	conn.logger.Info().Msg("client connected")

	conn.Send(NewFrame(FrameConnected, "", "연결되었습니다."))

	go conn.writePump(func() { h.drop(conn) })
	conn.readPump(h.handler)
	h.drop(conn)
}

func (h *Hub) drop(conn *Conn) {
	h.mu.Lock()
	_, live := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if !live {
		return
	}
	conn.cancel()
	conn.ws.Close()
	conn.logger.Info().Msg("client disconnected")
}

// Conn is one live client connection. Frames queued with Send are written
// in order by a single writer goroutine.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan Frame
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// ID returns the connection's identity.
func (c *Conn) ID() string { return c.id }

// Context is cancelled when the connection closes; orchestration for this
// connection must stop emitting once it is done.
func (c *Conn) Context() context.Context { return c.ctx }

// Send queues a frame. Frames for a closed or saturated connection are
// dropped rather than blocking the caller.
func (c *Conn) Send(frame Frame) {
	select {
	case <-c.ctx.Done():
	case c.send <- frame:
	default:
		c.logger.Warn().Str("frame_type", frame.Type).Msg("send buffer full, frame dropped")
	}
}

// inboundFrame is the JSON shape clients send. Raw non-JSON text is treated
// as a bare question.
type inboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (c *Conn) readPump(handler Handler) {
	c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(idleTimeout))

		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
			// Raw text frame: treat the whole payload as a question.
			in = inboundFrame{Type: FrameMessage, Message: text}
		}

		switch in.Type {
		case FramePing:
			c.Send(NewFrame(FramePong, in.SessionID, ""))
		case FramePong:
			// Keepalive only; the read deadline was already reset.
		case FrameMessage:
			sessionID := in.SessionID
			if sessionID == "" {
				sessionID = uuid.New().String()
			}
			handler.Handle(c.ctx, c, sessionID, in.Message)
		default:
			c.logger.Debug().Str("frame_type", in.Type).Msg("unhandled inbound frame type")
		}
	}
}

func (c *Conn) writePump(onExit func()) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		onExit()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(NewFrame(FramePing, "", "")); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
