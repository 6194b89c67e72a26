// Package conversation turns a learner's utterance into a reply, grammar
// corrections and an encouragement line.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ashureev/parla/internal/domain"
)

var (
	// ErrReplyFailed wraps any failure of the reply generation call.
	ErrReplyFailed = errors.New("reply generation failed")
	// ErrEmptyText is returned when the utterance has no content.
	ErrEmptyText = errors.New("empty utterance")
)

// ReplyWordBudget is the target upper bound of a generated reply.
const ReplyWordBudget = 150

// Provider is the external language model.
type Provider interface {
	// AnalyzeCorrections returns the language issues found in text. Zero is a valid answer.
	AnalyzeCorrections(ctx context.Context, text string) ([]domain.Correction, error)

	// GenerateReply produces a conversational answer to the latest user turn.
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// ReplyRequest is the input of a reply generation call.
type ReplyRequest struct {
	Text        string
	Corrections []domain.Correction
	History     []Turn // includes the current user turn as its last entry
	MaxWords    int
}

// TopicSource resolves topic ids to their prompt lists.
type TopicSource interface {
	GetTopic(ctx context.Context, id string) (*domain.Topic, error)
}

// Result is the outcome of one processed utterance.
type Result struct {
	Reply         string              `json:"reply"`
	Corrections   []domain.Correction `json:"corrections"`
	Encouragement string              `json:"encouragement"`
	NextPrompt    string              `json:"nextPrompt,omitempty"`
}

// Service composes correction analysis and reply generation.
type Service struct {
	provider Provider
	topics   TopicSource
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithRand sets the randomness source for phrase and prompt selection.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a conversation service. topics may be nil.
func NewService(provider Provider, topics TopicSource, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		topics:   topics,
		logger:   slog.Default(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process handles one user utterance within the given session history.
// A correction analysis failure degrades to zero corrections; a reply
// failure fails the whole call with ErrReplyFailed.
func (s *Service) Process(ctx context.Context, history *History, text, topicID string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if history == nil {
		history = NewHistory(DefaultHistoryLimit)
	}
	history.Append(RoleUser, text)

	corrections, err := s.provider.AnalyzeCorrections(ctx, text)
	if err != nil {
		s.logger.Warn("Correction analysis failed, continuing without corrections", "error", err)
		corrections = nil
	}
	if corrections == nil {
		corrections = []domain.Correction{}
	}

	reply, err := s.provider.GenerateReply(ctx, ReplyRequest{
		Text:        text,
		Corrections: corrections,
		History:     history.Turns(),
		MaxWords:    ReplyWordBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrReplyFailed)
	}
	history.Append(RoleAssistant, reply)

	return &Result{
		Reply:         reply,
		Corrections:   corrections,
		Encouragement: s.Encouragement(len(corrections)),
		NextPrompt:    s.nextPrompt(ctx, topicID),
	}, nil
}

// Encouragement picks a random phrase from the tier matching the correction count.
func (s *Service) Encouragement(corrections int) string {
	phrases := tierPhrases[TierFor(corrections)]
	return phrases[s.intN(len(phrases))]
}

func (s *Service) nextPrompt(ctx context.Context, topicID string) string {
	if topicID == "" || s.topics == nil {
		return ""
	}
	topic, err := s.topics.GetTopic(ctx, topicID)
	if err != nil || len(topic.Prompts) == 0 {
		return ""
	}
	return topic.Prompts[s.intN(len(topic.Prompts))]
}

func (s *Service) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}
