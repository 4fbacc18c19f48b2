// Package hub handles events from joined real-time connections: chat,
// typing, heartbeats, presence changes and notification dispatch.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"debatehall/internal/keylock"
	"debatehall/internal/membership"
	"debatehall/internal/messagelog"
	"debatehall/internal/notify"
	"debatehall/internal/presence"
	"debatehall/internal/typing"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

const (
	notifyBuffer     = 1000
	operationTimeout = 5 * time.Second
)

// Membership is the read side of session membership the hub needs
type Membership interface {
	presence.MemberCounter
	notify.ParticipantLister
}

// ConnectionLookup finds a user's remaining connections in a session
type ConnectionLookup interface {
	UserConnections(sessionID, userID int64) []interfaces.Connection
}

// Metrics observes hub activity. Nil means no metrics.
type Metrics interface {
	ConnectionOpened(sessionID int64)
	ConnectionClosed(sessionID int64)
	MessagePosted(sessionID int64)
	EventRejected(sessionID int64, reason string)
	TypingChanged(sessionID int64, typing bool)
	NotificationSent(ok bool)
}

// Dependencies wires the hub to the session components
type Dependencies struct {
	Sessions    interfaces.SessionReader
	Members     Membership
	Presence    *presence.Tracker
	Typing      *typing.Coordinator
	Messages    *messagelog.Log
	Broadcaster interfaces.Broadcaster
	Connections ConnectionLookup
	Sink        interfaces.NotificationSink
	Limiter     *RateLimiter
	Metrics     Metrics
}

type notification struct {
	session *types.DebateSession
	message *types.Message
}

// Hub implements websocket.EventHandler.
// Event handling runs on each connection's read goroutine; the hub's own
// goroutine only delivers notifications and prunes the rate limiter.
type Hub struct {
	sessions    interfaces.SessionReader
	members     Membership
	presence    *presence.Tracker
	typing      *typing.Coordinator
	messages    *messagelog.Log
	broadcaster interfaces.Broadcaster
	connections ConnectionLookup
	sink        interfaces.NotificationSink
	limiter     *RateLimiter
	metrics     Metrics
	now         func() time.Time

	// userLocks orders connect and disconnect handling per user
	userLocks *keylock.Map

	notifyChannel   chan *notification
	shutdownChannel chan struct{}
	done            chan struct{}

	running bool
	mu      sync.RWMutex
}

func NewHub(deps Dependencies) *Hub {
	h := &Hub{
		sessions:        deps.Sessions,
		members:         deps.Members,
		presence:        deps.Presence,
		typing:          deps.Typing,
		messages:        deps.Messages,
		broadcaster:     deps.Broadcaster,
		connections:     deps.Connections,
		sink:            deps.Sink,
		limiter:         deps.Limiter,
		metrics:         deps.Metrics,
		now:             time.Now,
		userLocks:       keylock.New(),
		notifyChannel:   make(chan *notification, notifyBuffer),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
	}
	if h.sink == nil {
		h.sink = notify.LogSink{}
	}
	if h.limiter == nil {
		h.limiter = NewRateLimiter(60, time.Minute)
	}
	if h.metrics == nil {
		h.metrics = noopMetrics{}
	}
	h.typing.SetOnExpire(h.onTypingExpired)
	return h
}

// Start begins notification processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)
	return nil
}

// Stop ends notification processing after queued notifications are delivered
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping event hub...")
	<-h.done
	return nil
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case n := <-h.notifyChannel:
			h.deliver(ctx, n)

		case <-cleanup.C:
			h.limiter.Cleanup()

		case <-h.shutdownChannel:
			for {
				select {
				case n := <-h.notifyChannel:
					h.deliver(ctx, n)
				default:
					return
				}
			}

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// OnConnect registers presence, greets the connection and tells the others
func (h *Hub) OnConnect(conn interfaces.Connection) {
	user, sessionID := conn.User(), conn.SessionID()

	unlock := h.userLocks.Lock(user.ID)
	defer unlock()

	h.presence.Attach(user.ID, sessionID, conn.ID(), h.now())
	h.metrics.ConnectionOpened(sessionID)

	online, total := h.counts(sessionID)
	if err := conn.WriteJSON(&ConnectionEstablishedEvent{
		Type:              types.EventConnectionEstablished,
		SessionID:         sessionID,
		OnlineCount:       online,
		TotalParticipants: total,
	}); err != nil {
		log.Printf("Failed to send connection_established: connection=%s error=%v", conn.ID(), err)
	}

	h.broadcaster.SendExcept(sessionID, &OnlineCountUpdateEvent{
		Type:              types.EventOnlineCountUpdate,
		OnlineCount:       online,
		TotalParticipants: total,
		UserJoined:        refOf(user),
	}, interfaces.Exclude{ConnectionID: conn.ID()})
}

// OnMessage dispatches one inbound frame. Failures answer the sender and
// never close the connection.
func (h *Hub) OnMessage(conn interfaces.Connection, data []byte) {
	event, err := parseInbound(data)
	if err != nil {
		h.reject(conn, err)
		return
	}

	switch event.Type {
	case types.EventChatMessage:
		h.handleChat(conn, event.text())
	case types.EventTyping:
		h.handleTyping(conn, event.IsTyping != nil && *event.IsTyping)
	case types.EventPing:
		h.handlePing(conn)
	default:
		h.reject(conn, ErrUnknownEvent)
	}
}

// OnPong treats a transport-level pong as activity
func (h *Hub) OnPong(conn interfaces.Connection) {
	h.presence.Touch(conn.User().ID, conn.SessionID(), h.now())
}

// OnDisconnect runs after the connection left its group. Presence and
// typing are only cleared once the user's last connection is gone.
// A reconnect racing this check waits in OnConnect until the detach is done.
func (h *Hub) OnDisconnect(conn interfaces.Connection) {
	user, sessionID := conn.User(), conn.SessionID()
	h.metrics.ConnectionClosed(sessionID)

	unlock := h.userLocks.Lock(user.ID)
	defer unlock()

	if remaining := h.connections.UserConnections(sessionID, user.ID); len(remaining) > 0 {
		log.Printf("Connection closed, user still online: user=%d session=%d remaining=%d", user.ID, sessionID, len(remaining))
		return
	}

	h.presence.Detach(user.ID, sessionID)
	if h.typing.ClearTyping(user.ID, sessionID) {
		h.broadcastTyping(sessionID, refOf(user), false)
	}

	online, total := h.counts(sessionID)
	h.broadcaster.Send(sessionID, &OnlineCountUpdateEvent{
		Type:              types.EventOnlineCountUpdate,
		OnlineCount:       online,
		TotalParticipants: total,
		UserLeft:          refOf(user),
	})
}

func (h *Hub) handleChat(conn interfaces.Connection, content string) {
	user, sessionID := conn.User(), conn.SessionID()

	if !h.limiter.Allow(user.ID) {
		h.reject(conn, ErrRateLimitExceeded)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		h.reject(conn, err)
		return
	}

	message, err := h.messages.Append(ctx, session, user, content, h.now())
	if err != nil {
		h.reject(conn, err)
		return
	}
	h.metrics.MessagePosted(sessionID)

	h.broadcaster.Send(sessionID, &ChatMessageEvent{Type: types.EventChatMessage, Message: message})

	if h.typing.ClearTyping(user.ID, sessionID) {
		h.broadcastTyping(sessionID, refOf(user), false)
	}

	h.enqueueNotification(&notification{session: session, message: message})
}

// handleTyping applies the posting rules to typing. Stopping is always
// accepted and only broadcast when an indicator was actually removed.
func (h *Hub) handleTyping(conn interfaces.Connection, isTyping bool) {
	user, sessionID := conn.User(), conn.SessionID()

	if !isTyping {
		if h.typing.ClearTyping(user.ID, sessionID) {
			h.broadcastTyping(sessionID, refOf(user), false)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		h.reject(conn, err)
		return
	}

	now := h.now()
	if err := h.messages.Authorize(ctx, session, user.ID, "type in", now); err != nil {
		h.reject(conn, err)
		return
	}

	h.typing.SetTyping(user.ID, sessionID, now)
	h.broadcastTyping(sessionID, refOf(user), true)
}

func (h *Hub) handlePing(conn interfaces.Connection) {
	now := h.now()
	h.presence.Touch(conn.User().ID, conn.SessionID(), now)
	if err := conn.WriteJSON(&PongEvent{Type: types.EventPong, Timestamp: now}); err != nil {
		log.Printf("Failed to send pong: connection=%s error=%v", conn.ID(), err)
	}
}

// broadcastTyping never reaches the typing user's own connections
func (h *Hub) broadcastTyping(sessionID int64, user *UserRef, isTyping bool) {
	h.metrics.TypingChanged(sessionID, isTyping)
	h.broadcaster.SendExcept(sessionID, typingEvent(user, isTyping), interfaces.Exclude{UserID: user.ID})
}

func (h *Hub) onTypingExpired(userID, sessionID int64) {
	ref := &UserRef{ID: userID}
	if conns := h.connections.UserConnections(sessionID, userID); len(conns) > 0 && conns[0].User() != nil {
		ref = refOf(conns[0].User())
	}
	h.broadcastTyping(sessionID, ref, false)
}

func (h *Hub) counts(sessionID int64) (online, total int) {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	online, total, err := h.presence.Counts(ctx, sessionID)
	if err != nil {
		log.Printf("Failed to count participants: session=%d error=%v", sessionID, err)
	}
	return online, total
}

func (h *Hub) reject(conn interfaces.Connection, err error) {
	message, reason := describe(err)
	if reason == "internal" {
		log.Printf("Event failed: connection=%s user=%d session=%d error=%v", conn.ID(), conn.User().ID, conn.SessionID(), err)
	}
	h.metrics.EventRejected(conn.SessionID(), reason)
	if writeErr := conn.WriteJSON(errorEvent(message)); writeErr != nil {
		log.Printf("Failed to send error event: connection=%s error=%v", conn.ID(), writeErr)
	}
}

// describe maps an error to the text shown to the client and a metric reason
func describe(err error) (message, reason string) {
	var statusErr *membership.StatusError
	switch {
	case errors.Is(err, ErrMalformedEvent):
		return "Invalid message format", "malformed"
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown message type", "unknown_type"
	case errors.Is(err, ErrRateLimitExceeded):
		return "Rate limit exceeded, slow down", "rate_limited"
	case errors.Is(err, messagelog.ErrEmptyContent):
		return "Message cannot be empty", "empty"
	case errors.Is(err, messagelog.ErrMessageTooLong):
		return "Message is too long", "too_long"
	case errors.As(err, &statusErr):
		return statusErr.Error(), "not_ongoing"
	case errors.Is(err, membership.ErrNotAParticipant):
		return "You are not a participant in this session", "not_participant"
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return "Session not found", "session_not_found"
	default:
		return "Internal error", "internal"
	}
}

func (h *Hub) enqueueNotification(n *notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		log.Printf("Notification dropped, hub not running: message=%d", n.message.ID)
		return
	}
	select {
	case h.notifyChannel <- n:
	default:
		log.Printf("Notification dropped: message=%d error=%v", n.message.ID, ErrNotifyChannelFull)
	}
}

func (h *Hub) deliver(ctx context.Context, n *notification) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	recipients, err := notify.Recipients(ctx, h.members, n.session, n.message.Sender.ID)
	if err != nil {
		log.Printf("Notification skipped: message=%d error=%v", n.message.ID, err)
		h.metrics.NotificationSent(false)
		return
	}

	err = h.sink.MessagePosted(ctx, &types.MessagePostedEvent{
		MessageID:  n.message.ID,
		SessionID:  n.session.ID,
		SenderID:   n.message.Sender.ID,
		SenderName: n.message.Sender.Username,
		Content:    n.message.Content,
		Recipients: recipients,
		Timestamp:  n.message.Timestamp,
	})
	if err != nil {
		log.Printf("Notification failed: message=%d error=%v", n.message.ID, err)
	}
	h.metrics.NotificationSent(err == nil)
}

// GetStats returns hub statistics for the health endpoint
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	return map[string]interface{}{
		"running":               running,
		"pending_notifications": len(h.notifyChannel),
		"rate_limited_users":    h.limiter.Len(),
	}
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened(int64)      {}
func (noopMetrics) ConnectionClosed(int64)      {}
func (noopMetrics) MessagePosted(int64)         {}
func (noopMetrics) EventRejected(int64, string) {}
func (noopMetrics) TypingChanged(int64, bool)   {}
func (noopMetrics) NotificationSent(bool)       {}
