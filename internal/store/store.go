// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/parla/internal/domain"
)

// ErrNotFound is returned when a session, topic or progress record is absent.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting practice sessions and their data.
// Every method is atomic for a single key; there are no cross-key transactions.
type Repository interface {
	// CreateSession stores a new session with a fresh id and a start time of now.
	CreateSession(ctx context.Context, draft domain.SessionDraft) (*domain.Session, error)

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// UpdateSession merges patch into the stored session and returns the result.
	UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error)

	// ApplySessionStats atomically increments the session counters.
	ApplySessionStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Session, error)

	// ListActiveSessions returns every session with IsActive set, unordered.
	ListActiveSessions(ctx context.Context) ([]*domain.Session, error)

	// CreateMessage stores a message with a fresh id and a timestamp of now.
	CreateMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error)

	// ListMessages returns a session's messages ordered by timestamp ascending.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// ListTopics returns all active topics.
	ListTopics(ctx context.Context) ([]*domain.Topic, error)

	// GetTopic retrieves a topic by id.
	GetTopic(ctx context.Context, id string) (*domain.Topic, error)

	// GetProgress retrieves the progress record of a user.
	GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error)

	// UpsertProgress merges patch into the user's progress, creating a zeroed record first if absent.
	UpsertProgress(ctx context.Context, userID string, patch domain.ProgressPatch) (*domain.UserProgress, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Open returns the repository for the named driver.
func Open(driver, dbPath string) (Repository, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		s, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)
