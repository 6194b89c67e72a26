package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/parla/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore implements Repository with process-local maps.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	messages map[string][]*domain.Message // sessionID -> messages in insertion order
	topics   map[string]*domain.Topic
	progress map[string]*domain.UserProgress // userID -> progress
	now      func() time.Time
}

// NewMemory creates an in-memory repository seeded with DefaultTopics.
func NewMemory() *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]*domain.Message),
		topics:   make(map[string]*domain.Topic),
		progress: make(map[string]*domain.UserProgress),
		now:      time.Now,
	}
	for _, t := range DefaultTopics() {
		s.topics[t.ID] = cloneTopic(&t)
	}
	return s
}

// CreateSession stores a new session.
func (s *MemoryStore) CreateSession(_ context.Context, draft domain.SessionDraft) (*domain.Session, error) {
	if err := draft.Normalize(); err != nil {
		return nil, err
	}
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    draft.UserID,
		StartTime: s.now().UTC(),
		TopicID:   draft.TopicID,
		IsActive:  draft.Active(),
		Accuracy:  100,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return cloneSession(session), nil
}

// GetSession retrieves a session by id.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return cloneSession(session), nil
}

// UpdateSession merges patch into the stored session.
func (s *MemoryStore) UpdateSession(_ context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	patch.Apply(session)
	return cloneSession(session), nil
}

// ApplySessionStats increments the session counters.
func (s *MemoryStore) ApplySessionStats(_ context.Context, id string, delta domain.StatsDelta) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delta.Apply(session)
	return cloneSession(session), nil
}

// ListActiveSessions returns every active session.
func (s *MemoryStore) ListActiveSessions(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.IsActive {
			out = append(out, cloneSession(session))
		}
	}
	return out, nil
}

// CreateMessage stores a message. Timestamps never go backwards within a session.
func (s *MemoryStore) CreateMessage(_ context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if err := draft.Normalize(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	log := s.messages[draft.SessionID]
	if n := len(log); n > 0 && ts.Before(log[n-1].Timestamp) {
		ts = log[n-1].Timestamp
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   draft.SessionID,
		Type:        draft.Type,
		Content:     draft.Content,
		Timestamp:   ts,
		AudioURL:    draft.AudioURL,
		Corrections: slices.Clone(draft.Corrections),
		Metadata:    cloneMetadata(draft.Metadata),
	}
	s.messages[draft.SessionID] = append(log, msg)
	return cloneMessage(msg), nil
}

// ListMessages returns a session's messages by timestamp ascending.
func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[sessionID]
	out := make([]*domain.Message, 0, len(log))
	for _, m := range log {
		out = append(out, cloneMessage(m))
	}
	slices.SortStableFunc(out, func(a, b *domain.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

// ListTopics returns all active topics ordered by id.
func (s *MemoryStore) ListTopics(_ context.Context) ([]*domain.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		if t.IsActive {
			out = append(out, cloneTopic(t))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Topic) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// GetTopic retrieves a topic by id.
func (s *MemoryStore) GetTopic(_ context.Context, id string) (*domain.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	return cloneTopic(t), nil
}

// GetProgress retrieves the progress record of a user.
func (s *MemoryStore) GetProgress(_ context.Context, userID string) (*domain.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[userID]
	if !ok {
		return nil, fmt.Errorf("progress %s: %w", userID, ErrNotFound)
	}
	return cloneProgress(p), nil
}

// UpsertProgress merges patch into the user's progress.
func (s *MemoryStore) UpsertProgress(_ context.Context, userID string, patch domain.ProgressPatch) (*domain.UserProgress, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[userID]
	if !ok {
		p = newProgress(userID)
		s.progress[userID] = p
	}
	patch.Apply(p)
	return cloneProgress(p), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func newProgress(userID string) *domain.UserProgress {
	return &domain.UserProgress{
		ID:           uuid.NewString(),
		UserID:       userID,
		Achievements: []string{},
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	c.Corrections = slices.Clone(m.Corrections)
	c.Metadata = cloneMetadata(m.Metadata)
	return &c
}

func cloneMetadata(m *domain.MessageMetadata) *domain.MessageMetadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func cloneTopic(t *domain.Topic) *domain.Topic {
	c := *t
	c.Prompts = slices.Clone(t.Prompts)
	return &c
}

func cloneProgress(p *domain.UserProgress) *domain.UserProgress {
	c := *p
	c.Achievements = slices.Clone(p.Achievements)
	if c.Achievements == nil {
		c.Achievements = []string{}
	}
	if p.LastSessionDate != nil {
		t := *p.LastSessionDate
		c.LastSessionDate = &t
	}
	return &c
}

var _ Repository = (*MemoryStore)(nil)
