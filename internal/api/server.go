package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"debatehall/internal/auth"
	"debatehall/internal/membership"
	"debatehall/internal/messagelog"
	"debatehall/internal/moderation"
	"debatehall/internal/presence"
	"debatehall/internal/session"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Registry is the part of the connection registry the API reads and closes
type Registry interface {
	UserConnections(sessionID, userID int64) []interfaces.Connection
	GetStats() map[string]int
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider contributes a section to the health response
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Dependencies wires the API to the session components
type Dependencies struct {
	Resolver   interfaces.IdentityResolver
	Sessions   *session.Manager
	Members    *membership.Manager
	Messages   *messagelog.Log
	Presence   *presence.Tracker
	Moderation *moderation.Service
	Registry   Registry
	Health     HealthChecker
	Hub        StatsProvider
}

// Server is a thin HTTP layer: it authenticates, decodes, calls one
// component and encodes the result
type Server struct {
	deps      Dependencies
	router    *http.ServeMux
	startedAt time.Time
	now       func() time.Time
}

func NewServer(deps Dependencies) *Server {
	s := &Server{
		deps:      deps,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
		now:       time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.handle("POST /api/sessions/{id}/join", s.authenticated(s.joinSession))
	s.handle("POST /api/sessions/{id}/leave", s.authenticated(s.leaveSession))
	s.handle("GET /api/sessions/{id}/messages", s.authenticated(s.listMessages))
	s.handle("GET /api/sessions/{id}/presence", s.authenticated(s.sessionPresence))
	s.handle("POST /api/sessions/{id}/start-now", s.authenticated(s.startNow))
	s.handle("POST /api/sessions/{id}/reschedule", s.authenticated(s.reschedule))
	s.handle("POST /api/sessions/{id}/moderate", s.authenticated(s.moderate))
	s.handle("DELETE /api/messages/{id}", s.authenticated(s.deleteMessage))
	s.handle("POST /api/messages/{id}", s.authenticated(s.restoreMessage))
	s.handle("GET /health", s.healthCheck)

	// preflight for every route
	s.handle("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {})
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, s.corsMiddleware(s.jsonMiddleware(h)))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type SessionResponse struct {
	*types.DebateSession
	Status types.SessionStatus `json:"status"`
}

type ParticipantResponse struct {
	Participant *types.Participant `json:"participant"`
}

type MessagesResponse struct {
	Messages []*types.Message `json:"messages"`
}

type PresenceResponse struct {
	SessionID         int64                  `json:"session_id"`
	OnlineCount       int                    `json:"online_count"`
	TotalParticipants int                    `json:"total_participants"`
	Online            []types.OnlinePresence `json:"online"`
}

type RescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
}

type ModerateRequest struct {
	ParticipantID int64  `json:"participant_id"`
	Action        string `json:"action"`
}

type ModerationResponse struct {
	Action *types.ModerationAction `json:"action"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	Sessions    map[string]interface{} `json:"sessions,omitempty"`
	Hub         map[string]interface{} `json:"hub,omitempty"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authenticated resolves the bearer token before calling next
func (s *Server) authenticated(next func(w http.ResponseWriter, r *http.Request, user *types.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			s.sendError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		user, err := s.deps.Resolver.Resolve(r.Context(), token)
		if err != nil {
			s.sendError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r, user)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// loadSession resolves the {id} path segment or writes the error response
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*types.DebateSession, bool) {
	id, ok := pathID(r)
	if !ok {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return nil, false
	}
	sess, err := s.deps.Sessions.GetSession(r.Context(), id)
	if err != nil {
		s.sendFailure(w, err)
		return nil, false
	}
	return sess, true
}

// POST /api/sessions/{id}/join
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, user *types.User) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	participant, err := s.deps.Members.Join(r.Context(), user.ID, sess, s.now())
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ParticipantResponse{Participant: participant})
}

// POST /api/sessions/{id}/leave
func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request, user *types.User) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if err := s.deps.Members.Leave(r.Context(), user.ID, sess.ID); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.closeConnections(sess.ID, user.ID)

	json.NewEncoder(w).Encode(map[string]string{"message": "Left session successfully"})
}

// GET /api/sessions/{id}/messages
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, user *types.User) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	messages, err := s.deps.Messages.History(r.Context(), sess, user.ID)
	if errors.Is(err, membership.ErrNotAParticipant) {
		s.sendError(w, "Not authorized to view this session", http.StatusForbidden)
		return
	}
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	json.NewEncoder(w).Encode(MessagesResponse{Messages: messages})
}

// GET /api/sessions/{id}/presence
func (s *Server) sessionPresence(w http.ResponseWriter, r *http.Request, user *types.User) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if sess.CreatedBy != user.ID {
		active, err := s.deps.Members.IsActiveParticipant(r.Context(), user.ID, sess.ID)
		if err != nil {
			s.sendFailure(w, err)
			return
		}
		if !active {
			s.sendError(w, "Not authorized to view this session", http.StatusForbidden)
			return
		}
	}

	online, total, err := s.deps.Presence.Counts(r.Context(), sess.ID)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	records := s.deps.Presence.Online(sess.ID)
	if records == nil {
		records = []types.OnlinePresence{}
	}

	json.NewEncoder(w).Encode(PresenceResponse{
		SessionID:         sess.ID,
		OnlineCount:       online,
		TotalParticipants: total,
		Online:            records,
	})
}

// POST /api/sessions/{id}/start-now
func (s *Server) startNow(w http.ResponseWriter, r *http.Request, user *types.User) {
	id, ok := pathID(r)
	if !ok {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	now := s.now()
	sess, err := s.deps.Sessions.StartNow(r.Context(), user.ID, id, now)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{DebateSession: sess, Status: sess.Status(now)})
}

// POST /api/sessions/{id}/reschedule
func (s *Server) reschedule(w http.ResponseWriter, r *http.Request, user *types.User) {
	id, ok := pathID(r)
	if !ok {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StartTime.IsZero() {
		s.sendError(w, "start_time is required", http.StatusBadRequest)
		return
	}

	now := s.now()
	sess, err := s.deps.Sessions.Reschedule(r.Context(), user.ID, id, req.StartTime, now)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{DebateSession: sess, Status: sess.Status(now)})
}

// POST /api/sessions/{id}/moderate
func (s *Server) moderate(w http.ResponseWriter, r *http.Request, user *types.User) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req ModerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	kind, err := types.ParseModerationKind(req.Action)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	action, err := s.deps.Moderation.Moderate(r.Context(), user.ID, sess, req.ParticipantID, kind, s.now())
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	if kind == types.ModerationRemove {
		s.closeConnections(sess.ID, req.ParticipantID)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ModerationResponse{Action: action})
}

// DELETE /api/messages/{id}
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request, user *types.User) {
	s.setMessageVisibility(w, r, user, true)
}

// POST /api/messages/{id}
func (s *Server) restoreMessage(w http.ResponseWriter, r *http.Request, user *types.User) {
	s.setMessageVisibility(w, r, user, false)
}

// setMessageVisibility is restricted to the creator of the message's session
func (s *Server) setMessageVisibility(w http.ResponseWriter, r *http.Request, user *types.User, deleted bool) {
	id, ok := pathID(r)
	if !ok {
		s.sendError(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	message, err := s.deps.Messages.Get(r.Context(), id)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	sess, err := s.deps.Sessions.GetSession(r.Context(), message.SessionID)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	if sess.CreatedBy != user.ID {
		s.sendError(w, "Only the session creator can change messages", http.StatusForbidden)
		return
	}

	if deleted {
		err = s.deps.Messages.SoftDelete(r.Context(), id)
	} else {
		err = s.deps.Messages.Restore(r.Context(), id)
	}
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "is_deleted": deleted})
}

// closeConnections drops the live connections of a user who lost membership;
// the gateway's cleanup takes care of presence
func (s *Server) closeConnections(sessionID, userID int64) {
	for _, conn := range s.deps.Registry.UserConnections(sessionID, userID) {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection: connection=%s error=%v", conn.ID(), err)
		}
	}
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.deps.Health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.deps.Registry.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	}
	if s.deps.Sessions != nil {
		response.Sessions = s.deps.Sessions.GetStats()
	}
	if s.deps.Hub != nil {
		response.Hub = s.deps.Hub.GetStats()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// sendFailure maps a component error onto a status code
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	var statusErr *membership.StatusError
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, messagelog.ErrMessageNotFound):
		s.sendError(w, "Message not found", http.StatusNotFound)
	case errors.Is(err, session.ErrUnauthorized),
		errors.Is(err, session.ErrModeratorRequired),
		errors.Is(err, moderation.ErrNotSessionCreator):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &statusErr),
		errors.Is(err, membership.ErrAlreadyActiveParticipant),
		errors.Is(err, membership.ErrCapacityExceeded),
		errors.Is(err, membership.ErrNotAParticipant),
		errors.Is(err, session.ErrSessionAlreadyStarted),
		errors.Is(err, session.ErrStartInPast),
		errors.Is(err, moderation.ErrSelfModeration):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Request failed: %v", err)
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows browser clients from any origin; the bearer token
// is the access control
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
