package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/identity"
	"github.com/ashureev/parla/internal/practice"
	"github.com/ashureev/parla/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	writeTimeout     = 5 * time.Second
	defaultReadLimit = 64 << 10
	channelName      = "ws"
)

// Config tunes the relay handler.
type Config struct {
	AllowedOrigin string
	IsDev         bool
	ReadLimit     int64
}

// TurnRunner processes practice turns for a connection.
// *practice.Runner satisfies it.
type TurnRunner interface {
	NewHistory() *conversation.History
	LoadHistory(ctx context.Context, sessionID string) *conversation.History
	ProcessTurn(ctx context.Context, turn practice.Turn) (*practice.Outcome, error)
}

// Handler upgrades requests to the practice relay.
type Handler struct {
	repo     store.Repository
	runner   TurnRunner
	registry *Registry
	limiter  *RateLimiter
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a relay handler. limiter may be nil.
func NewHandler(repo store.Repository, runner TurnRunner, registry *Registry, limiter *RateLimiter, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Handler{
		repo:     repo,
		runner:   runner,
		registry: registry,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// conn is the per-connection state. It is owned by the read loop goroutine.
type conn struct {
	id        string
	userID    string
	ws        *websocket.Conn
	sessionID string
	topicID   string
	history   *conversation.History
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	requested := identity.SessionIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	c := &conn{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		history: h.runner.NewHistory(),
	}
	h.logger.Info("Relay connection opened", "conn_id", c.id, "user_id", userID, "ip", identity.IPFromRequest(r))

	h.registry.Register(c.id, userID, ws)
	defer func() {
		h.registry.Unregister(c.id)
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection closed"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "conn_id", c.id)
		}
	}()

	ctx := r.Context()
	if requested != "" {
		if err := h.attach(ctx, c, requested); err != nil {
			h.logger.Info("Requested session not attached", "conn_id", c.id, "session_id", requested, "error", err)
		}
	}

	h.readLoop(ctx, c)
	h.logger.Info("Relay connection ended", "conn_id", c.id, "session_id", c.sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" || origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

// readLoop handles each envelope to completion before reading the next.
func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "conn_id", c.id)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "conn_id", c.id)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.sendStatus(c, StatusError, "malformed message")
			continue
		}
		h.dispatch(ctx, c, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *conn, env Envelope) {
	switch env.Type {
	case TypeAudioStart:
		payload, ok := h.decodeContent(c, env)
		if !ok {
			return
		}
		if _, err := h.ensureSession(ctx, c, env.SessionID, payload.TopicID); err != nil {
			h.sendStatus(c, StatusError, "could not start session")
			return
		}
		h.sendStatus(c, StatusListening, "")
	case TypeAudioChunk:
		// Speech recognition happens in the browser; chunks are ignored
		// whatever their payload shape.
	case TypeAudioEnd:
		payload, ok := h.decodeContent(c, env)
		if !ok {
			return
		}
		if strings.TrimSpace(payload.content()) == "" {
			h.sendStatus(c, StatusNoSpeech, "")
			return
		}
		h.handleContent(ctx, c, env, payload)
	case TypeTextMessage:
		payload, ok := h.decodeContent(c, env)
		if !ok {
			return
		}
		h.handleContent(ctx, c, env, payload)
	default:
		h.sendStatus(c, StatusError, "unknown message type: "+env.Type)
	}
}

// decodeContent reads a text or transcript payload. It sends an error frame
// and reports false when the payload is not an object of that shape.
func (h *Handler) decodeContent(c *conn, env Envelope) (contentPayload, bool) {
	var payload contentPayload
	if len(env.Payload) == 0 {
		return payload, true
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		h.sendStatus(c, StatusError, "malformed payload")
		return payload, false
	}
	return payload, true
}

func (h *Handler) handleContent(ctx context.Context, c *conn, env Envelope, payload contentPayload) {
	text := strings.TrimSpace(payload.content())
	if text == "" {
		h.sendStatus(c, StatusError, "text is required")
		return
	}
	// Keyed by user so reconnecting does not reset the budget.
	if h.limiter != nil && !h.limiter.Allow(c.userID) {
		h.sendStatus(c, StatusError, "rate limit exceeded")
		return
	}

	created, err := h.ensureSession(ctx, c, env.SessionID, payload.TopicID)
	if err != nil {
		h.sendStatus(c, StatusError, "could not start session")
		return
	}
	if created {
		h.sendStatus(c, StatusSessionStarted, "")
	}

	out, err := h.runner.ProcessTurn(ctx, practice.Turn{
		SessionID: c.sessionID,
		UserID:    c.userID,
		TopicID:   c.topicID,
		Text:      text,
		Channel:   channelName,
		History:   c.history,
	})
	if err != nil {
		h.logger.Warn("Turn failed", "conn_id", c.id, "session_id", c.sessionID, "error", err)
		h.sendStatus(c, StatusError, "could not process message")
		return
	}

	reply := ReplyPayload{
		Reply:         out.Reply,
		Corrections:   out.Corrections,
		Encouragement: out.Encouragement,
		NextPrompt:    out.NextPrompt,
		Accuracy:      out.Accuracy,
		Degraded:      out.Degraded,
	}
	if out.BotMessage != nil {
		reply.MessageID = out.BotMessage.ID
	}
	h.send(c, TypeTextMessage, reply)

	if len(out.Corrections) > 0 {
		h.send(c, TypeCorrection, CorrectionPayload{Corrections: out.Corrections, Original: text})
	}
}

// ensureSession binds a session to c, attaching to requested when it exists
// and creating a new one otherwise. It reports whether a session was created.
// topicID only applies to a session created here; a bound session keeps its topic.
func (h *Handler) ensureSession(ctx context.Context, c *conn, requested, topicID string) (bool, error) {
	if requested != "" && requested != c.sessionID {
		err := h.attach(ctx, c, requested)
		if err == nil {
			return false, nil
		}
		h.logger.Info("Requested session not attached", "conn_id", c.id, "session_id", requested, "error", err)
	}
	if c.sessionID != "" {
		return false, nil
	}
	if topicID != "" {
		c.topicID = topicID
	}

	session, err := h.repo.CreateSession(ctx, domain.SessionDraft{UserID: c.userID, TopicID: c.topicID})
	if err != nil {
		h.logger.Error("Failed to create session", "conn_id", c.id, "error", err)
		return false, err
	}
	c.sessionID = session.ID
	c.history = h.runner.NewHistory()
	h.registry.Bind(c.id, session.ID)
	h.logger.Info("Session started", "conn_id", c.id, "session_id", session.ID, "topic_id", c.topicID)
	return true, nil
}

func (h *Handler) attach(ctx context.Context, c *conn, sessionID string) error {
	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return errors.New("session is not active")
	}
	c.sessionID = session.ID
	c.topicID = session.TopicID
	c.history = h.runner.LoadHistory(ctx, session.ID)
	h.registry.Bind(c.id, session.ID)
	h.logger.Info("Session attached", "conn_id", c.id, "session_id", session.ID)
	return nil
}

func (h *Handler) sendStatus(c *conn, status, message string) {
	h.send(c, TypeSessionUpdate, StatusPayload{Status: status, SessionID: c.sessionID, Message: message})
}

// send writes on its own bounded context so a reply still goes out when the
// request context is already done.
func (h *Handler) send(c *conn, typ string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, outbound{Type: typ, Payload: payload, SessionID: c.sessionID}); err != nil {
		h.logger.Debug("WebSocket write failed", "error", err, "conn_id", c.id, "type", typ)
	}
}
