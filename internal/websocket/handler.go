package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"debatehall/internal/auth"
	"debatehall/internal/session"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the bearer token is the access control
		return true
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// SessionGate looks up sessions and admits connections to them
type SessionGate interface {
	interfaces.SessionReader
	ValidateConnection(ctx context.Context, session *types.DebateSession, user *types.User) error
}

// EventHandler receives lifecycle and inbound events for joined connections.
// OnDisconnect runs exactly once per joined connection, after it left its group.
type EventHandler interface {
	OnConnect(conn interfaces.Connection)
	OnMessage(conn interfaces.Connection, data []byte)
	OnPong(conn interfaces.Connection)
	OnDisconnect(conn interfaces.Connection)
}

// HandlerOptions configure keep-alive and buffering
type HandlerOptions struct {
	ReadTimeout    time.Duration
	MaxMessageSize int64
	Connection     ConnectionOptions
}

func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 16 * 1024,
		Connection:     DefaultConnectionOptions(),
	}
}

// Handler is the real-time gateway: authenticate, validate, upgrade, join, read
type Handler struct {
	resolver interfaces.IdentityResolver
	sessions SessionGate
	registry *Registry
	events   EventHandler
	opts     HandlerOptions

	wg sync.WaitGroup
}

func NewHandler(resolver interfaces.IdentityResolver, sessions SessionGate, registry *Registry, events EventHandler, opts HandlerOptions) *Handler {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultHandlerOptions().ReadTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultHandlerOptions().MaxMessageSize
	}
	return &Handler{
		resolver: resolver,
		sessions: sessions,
		registry: registry,
		events:   events,
		opts:     opts,
	}
}

// HandleWebSocket serves GET /ws/debate/{sessionID}/
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn := newConnection()

	sessionID, err := strconv.ParseInt(r.PathValue("sessionID"), 10, 64)
	if err != nil || !types.IsValidID(sessionID) {
		conn.Close()
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn.advance(StateAuthenticating)
	user, err := h.resolver.Resolve(r.Context(), auth.ExtractToken(r))
	if err != nil {
		// never tell the client why the credential was rejected
		log.Printf("WebSocket authentication failed: connection=%s session=%d error=%v", conn.ID(), sessionID, err)
		conn.Close()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn.advance(StateValidating)
	debate, err := h.sessions.GetSession(r.Context(), sessionID)
	if err == nil {
		err = h.sessions.ValidateConnection(r.Context(), debate, user)
	}
	if err != nil {
		conn.Close()
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrSessionInactive):
			log.Printf("WebSocket rejected: user=%d session=%d reason=%v", user.ID, sessionID, err)
			http.Error(w, "Not authorized to join this session", http.StatusForbidden)
		default:
			log.Printf("Session validation failed: user=%d session=%d error=%v", user.ID, sessionID, err)
			http.Error(w, "Session validation failed", http.StatusInternalServerError)
		}
		return
	}

	// upgrade only after validation so rejected requests get plain HTTP errors
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: user=%d session=%d error=%v", user.ID, sessionID, err)
		conn.Close()
		return
	}

	conn.attach(ws, user, sessionID, h.opts.Connection)
	if !conn.advance(StateJoined) {
		conn.Close()
		return
	}
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		conn.Close()
		return
	}

	log.Printf("Connection joined: connection=%s user=%d session=%d", conn.ID(), user.ID, sessionID)
	h.events.OnConnect(conn)

	h.wg.Add(1)
	go h.handleConnection(conn)
}

// handleConnection owns the read side; every exit path runs cleanup
func (h *Handler) handleConnection(conn *Connection) {
	defer h.wg.Done()
	defer h.cleanup(conn)

	ws := conn.conn
	ws.SetReadLimit(h.opts.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		h.events.OnPong(conn)
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: connection=%s user=%d error=%v", conn.ID(), conn.UserID(), err)
			}
			return
		}

		if err := ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
			return
		}
		if messageType == websocket.TextMessage {
			h.events.OnMessage(conn, data)
		}
	}
}

func (h *Handler) cleanup(conn *Connection) {
	conn.leaveOnce.Do(func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.events.OnDisconnect(conn)
		log.Printf("Connection closed: connection=%s user=%d session=%d", conn.ID(), conn.UserID(), conn.SessionID())
	})
}

// Shutdown closes every connection and waits for their cleanup to finish
func (h *Handler) Shutdown(ctx context.Context) error {
	h.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
