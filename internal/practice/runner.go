// Package practice runs one learner turn end to end: persistence, model
// calls, counters and the transcript.
package practice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/store"
	"github.com/ashureev/parla/internal/transcript"
)

// FallbackReply is sent when the model cannot produce a reply.
const FallbackReply = "Thanks for sharing that! I had a little trouble thinking of an answer just now. Could you tell me a bit more?"

const (
	defaultTurnTimeout  = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Config tunes a Runner.
type Config struct {
	// TurnTimeout bounds the model calls of one turn.
	TurnTimeout time.Duration
	// WriteTimeout bounds each store write of a turn.
	WriteTimeout time.Duration
	HistoryLimit int
}

// Runner processes user turns for both the relay and the REST endpoint.
type Runner struct {
	repo   store.Repository
	conv   *conversation.Service
	log    transcript.Logger
	cfg    Config
	logger *slog.Logger
}

// NewRunner creates a turn runner. log may be nil.
func NewRunner(repo store.Repository, conv *conversation.Service, log transcript.Logger, cfg Config, logger *slog.Logger) *Runner {
	if log == nil {
		log = transcript.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = conversation.DefaultHistoryLimit
	}
	return &Runner{repo: repo, conv: conv, log: log, cfg: cfg, logger: logger}
}

// Turn is one user utterance. An empty SessionID skips persistence.
type Turn struct {
	SessionID string
	UserID    string
	TopicID   string
	Text      string
	Channel   string
	History   *conversation.History
}

// Outcome is what the caller sends back to the learner.
type Outcome struct {
	conversation.Result
	Accuracy    int             `json:"accuracy"`
	Degraded    bool            `json:"degraded,omitempty"`
	BotMessage  *domain.Message `json:"-"`
	UserMessage *domain.Message `json:"-"`
	Session     *domain.Session `json:"-"`
}

// NewHistory returns an empty history sized for this runner.
func (r *Runner) NewHistory() *conversation.History {
	return conversation.NewHistory(r.cfg.HistoryLimit)
}

// LoadHistory rebuilds the rolling context of a session from the store.
func (r *Runner) LoadHistory(ctx context.Context, sessionID string) *conversation.History {
	if sessionID == "" {
		return r.NewHistory()
	}
	msgs, err := r.repo.ListMessages(ctx, sessionID)
	if err != nil {
		r.logger.Warn("Failed to load session history", "session_id", sessionID, "error", err)
		return r.NewHistory()
	}
	return conversation.HistoryFromMessages(msgs, r.cfg.HistoryLimit)
}

// ProcessTurn persists the user message, asks the conversation service for a
// reply, persists the bot message and updates the session counters.
// Model failures are replaced by FallbackReply; store failures are logged.
// The work is detached from ctx cancellation, so a disconnecting client does
// not abort it. Model calls share the turn timeout; every store write gets its
// own write timeout, so a reply that timed out is still persisted.
// The only error returned is conversation.ErrEmptyText.
func (r *Runner) ProcessTurn(ctx context.Context, turn Turn) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	turn.Text = strings.TrimSpace(turn.Text)
	if turn.Text == "" {
		return nil, conversation.ErrEmptyText
	}
	if turn.History == nil {
		turn.History = r.NewHistory()
	}
	if turn.UserID == "" {
		turn.UserID = domain.GuestUserID
	}

	out := &Outcome{}
	if turn.SessionID != "" {
		wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
		msg, err := r.repo.CreateMessage(wctx, domain.MessageDraft{
			SessionID: turn.SessionID,
			Type:      domain.MessageUser,
			Content:   turn.Text,
		})
		cancel()
		if err != nil {
			r.logger.Error("Failed to persist user message", "session_id", turn.SessionID, "error", err)
		}
		out.UserMessage = msg
	}
	r.logEvent(turn, "outbound", "user_message", turn.Text, nil)

	start := time.Now()
	turnCtx, cancelTurn := context.WithTimeout(ctx, r.cfg.TurnTimeout)
	result, err := r.conv.Process(turnCtx, turn.History, turn.Text, turn.TopicID)
	cancelTurn()
	switch {
	case errors.Is(err, conversation.ErrEmptyText):
		return nil, err
	case err != nil:
		r.logger.Warn("Reply generation failed, using fallback",
			"session_id", turn.SessionID,
			"error", err,
			"elapsed", time.Since(start),
		)
		result = &conversation.Result{
			Reply:         FallbackReply,
			Corrections:   []domain.Correction{},
			Encouragement: r.conv.Encouragement(0),
		}
		out.Degraded = true
		turn.History.Append(conversation.RoleAssistant, FallbackReply)
	}
	out.Result = *result
	out.Accuracy = conversation.Accuracy(turn.Text, len(result.Corrections))

	r.logEvent(turn, "inbound", "bot_message", result.Reply, map[string]any{
		"corrections": len(result.Corrections),
		"accuracy":    out.Accuracy,
		"degraded":    out.Degraded,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	if turn.SessionID == "" {
		return out, nil
	}

	wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	bot, err := r.repo.CreateMessage(wctx, domain.MessageDraft{
		SessionID:   turn.SessionID,
		Type:        domain.MessageBot,
		Content:     result.Reply,
		Corrections: result.Corrections,
		Metadata: &domain.MessageMetadata{
			TopicID:       turn.TopicID,
			Encouragement: result.Encouragement,
			NextPrompt:    result.NextPrompt,
		},
	})
	cancel()
	if err != nil {
		r.logger.Error("Failed to persist bot message", "session_id", turn.SessionID, "error", err)
	}
	out.BotMessage = bot

	// One user and one bot message were written; only the bot message carries corrections.
	accuracy := out.Accuracy
	wctx, cancel = context.WithTimeout(ctx, r.cfg.WriteTimeout)
	session, err := r.repo.ApplySessionStats(wctx, turn.SessionID, domain.StatsDelta{
		Messages:    2,
		Corrections: len(result.Corrections),
		Accuracy:    &accuracy,
	})
	cancel()
	if err != nil {
		r.logger.Error("Failed to update session counters", "session_id", turn.SessionID, "error", err)
	}
	out.Session = session

	return out, nil
}

func (r *Runner) logEvent(turn Turn, direction, eventType, content string, meta map[string]any) {
	r.log.Log(transcript.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     turn.UserID,
		SessionID:  turn.SessionID,
		Channel:    turn.Channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    transcript.CleanForReadability(content),
		Meta:       meta,
	})
}
