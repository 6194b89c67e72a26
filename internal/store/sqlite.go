package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/parla/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes read-modify-write so single-key updates stay atomic
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository and seeds the topic table.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := store.seedTopics(context.Background()); err != nil {
		return nil, fmt.Errorf("seed topics: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		messages_count INTEGER NOT NULL DEFAULT 0,
		corrections_count INTEGER NOT NULL DEFAULT 0,
		accuracy INTEGER NOT NULL DEFAULT 100,
		topic_id TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		audio_url TEXT NOT NULL DEFAULT '',
		corrections_json TEXT,
		metadata_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		icon TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		prompts_json TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS progress (
		user_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		total_sessions INTEGER NOT NULL DEFAULT 0,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		last_session_date INTEGER,
		average_accuracy INTEGER NOT NULL DEFAULT 0,
		achievements_json TEXT NOT NULL DEFAULT '[]'
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) seedTopics(ctx context.Context) error {
	query := `
	INSERT OR IGNORE INTO topics (id, title, description, icon, difficulty, prompts_json, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, t := range DefaultTopics() {
		prompts, err := json.Marshal(t.Prompts)
		if err != nil {
			return fmt.Errorf("marshal prompts for %s: %w", t.ID, err)
		}
		if _, err := s.db.ExecContext(ctx, query,
			t.ID, t.Title, t.Description, t.Icon, string(t.Difficulty), string(prompts), t.IsActive,
		); err != nil {
			return fmt.Errorf("insert topic %s: %w", t.ID, err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, start_time, end_time, duration_minutes,
	messages_count, corrections_count, accuracy, topic_id, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var startTime int64
	var endTime sql.NullInt64

	if err := row.Scan(
		&session.ID, &session.UserID, &startTime, &endTime, &session.DurationMinutes,
		&session.MessagesCount, &session.CorrectionsCount, &session.Accuracy,
		&session.TopicID, &session.IsActive,
	); err != nil {
		return nil, err
	}

	session.StartTime = time.Unix(0, startTime).UTC()
	if endTime.Valid {
		t := time.Unix(0, endTime.Int64).UTC()
		session.EndTime = &t
	}
	return &session, nil
}

// CreateSession stores a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, draft domain.SessionDraft) (*domain.Session, error) {
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

	query := `
	INSERT INTO sessions (id, user_id, start_time, duration_minutes, messages_count,
		corrections_count, accuracy, topic_id, is_active)
	VALUES (?, ?, ?, 0, 0, 0, ?, ?, ?)`
	err := withRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.UserID, session.StartTime.UnixNano(),
			session.Accuracy, session.TopicID, session.IsActive,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// UpdateSession merges patch into the stored session.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(session)

	var endTime any
	if session.EndTime != nil {
		endTime = session.EndTime.UnixNano()
	}

	query := `
	UPDATE sessions SET end_time = ?, duration_minutes = ?, messages_count = ?,
		corrections_count = ?, accuracy = ?, topic_id = ?, is_active = ?
	WHERE id = ?`
	err = withRetry(ctx, "update session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			endTime, session.DurationMinutes, session.MessagesCount,
			session.CorrectionsCount, session.Accuracy, session.TopicID, session.IsActive,
			id,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// ApplySessionStats increments the session counters in a single statement.
func (s *SQLiteStore) ApplySessionStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var accuracy any
	if delta.Accuracy != nil {
		accuracy = domain.ClampPercent(*delta.Accuracy)
	}

	query := `
	UPDATE sessions SET
		messages_count = messages_count + ?,
		corrections_count = corrections_count + ?,
		accuracy = COALESCE(?, accuracy)
	WHERE id = ?`

	var rows int64
	err := withRetry(ctx, "apply session stats", func() error {
		result, err := s.db.ExecContext(ctx, query, delta.Messages, delta.Corrections, accuracy, id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("apply session stats: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.GetSession(ctx, id)
}

// ListActiveSessions returns every active session.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close active sessions rows", "error", closeErr)
		}
	}()

	sessions := []*domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}
	return sessions, nil
}

// CreateMessage stores a message. Timestamps never go backwards within a session.
func (s *SQLiteStore) CreateMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if err := draft.Normalize(); err != nil {
		return nil, err
	}

	var correctionsJSON, metadataJSON any
	if len(draft.Corrections) > 0 {
		data, err := json.Marshal(draft.Corrections)
		if err != nil {
			return nil, fmt.Errorf("marshal corrections: %w", err)
		}
		correctionsJSON = string(data)
	}
	if draft.Metadata != nil {
		data, err := json.Marshal(draft.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.now().UTC().UnixNano()
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE session_id = ?`, draft.SessionID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("read last message time: %w", err)
	}
	if last.Valid && last.Int64 > ts {
		ts = last.Int64
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   draft.SessionID,
		Type:        draft.Type,
		Content:     draft.Content,
		Timestamp:   time.Unix(0, ts).UTC(),
		AudioURL:    draft.AudioURL,
		Corrections: draft.Corrections,
		Metadata:    draft.Metadata,
	}

	query := `
	INSERT INTO messages (id, session_id, type, content, created_at, audio_url, corrections_json, metadata_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	err := withRetry(ctx, "create message", func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.ID, msg.SessionID, string(msg.Type), msg.Content, ts,
			msg.AudioURL, correctionsJSON, metadataJSON,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a session's messages by timestamp ascending.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	query := `
		SELECT id, session_id, type, content, created_at, audio_url, corrections_json, metadata_json
		FROM messages WHERE session_id = ? ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var msgType string
		var createdAt int64
		var correctionsJSON, metadataJSON sql.NullString

		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msgType, &msg.Content, &createdAt,
			&msg.AudioURL, &correctionsJSON, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Type = domain.MessageType(msgType)
		msg.Timestamp = time.Unix(0, createdAt).UTC()

		if correctionsJSON.Valid {
			if err := json.Unmarshal([]byte(correctionsJSON.String), &msg.Corrections); err != nil {
				return nil, fmt.Errorf("decode corrections of %s: %w", msg.ID, err)
			}
		}
		if metadataJSON.Valid {
			msg.Metadata = &domain.MessageMetadata{}
			if err := json.Unmarshal([]byte(metadataJSON.String), msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

const topicColumns = `id, title, description, icon, difficulty, prompts_json, is_active`

func scanTopic(row rowScanner) (*domain.Topic, error) {
	var t domain.Topic
	var difficulty, prompts string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Icon, &difficulty, &prompts, &t.IsActive); err != nil {
		return nil, err
	}
	t.Difficulty = domain.Difficulty(difficulty)
	if err := json.Unmarshal([]byte(prompts), &t.Prompts); err != nil {
		return nil, fmt.Errorf("decode prompts of %s: %w", t.ID, err)
	}
	return &t, nil
}

// ListTopics returns all active topics ordered by id.
func (s *SQLiteStore) ListTopics(ctx context.Context) ([]*domain.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close topic rows", "error", closeErr)
		}
	}()

	topics := []*domain.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic row: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// GetTopic retrieves a topic by id.
func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*domain.Topic, error) {
	t, err := scanTopic(s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic row: %w", err)
	}
	return t, nil
}

// GetProgress retrieves the progress record of a user.
func (s *SQLiteStore) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	query := `
		SELECT id, user_id, total_sessions, total_minutes, current_streak,
		       last_session_date, average_accuracy, achievements_json
		FROM progress WHERE user_id = ?`

	var p domain.UserProgress
	var lastSession sql.NullInt64
	var achievements string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.TotalSessions, &p.TotalMinutes, &p.CurrentStreak,
		&lastSession, &p.AverageAccuracy, &achievements,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("progress %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}

	if lastSession.Valid {
		t := time.Unix(0, lastSession.Int64).UTC()
		p.LastSessionDate = &t
	}
	if err := json.Unmarshal([]byte(achievements), &p.Achievements); err != nil {
		return nil, fmt.Errorf("decode achievements: %w", err)
	}
	if p.Achievements == nil {
		p.Achievements = []string{}
	}
	return &p, nil
}

// UpsertProgress merges patch into the user's progress.
func (s *SQLiteStore) UpsertProgress(ctx context.Context, userID string, patch domain.ProgressPatch) (*domain.UserProgress, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, err := s.GetProgress(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		p = newProgress(userID)
	} else if err != nil {
		return nil, err
	}
	patch.Apply(p)

	achievements, err := json.Marshal(p.Achievements)
	if err != nil {
		return nil, fmt.Errorf("marshal achievements: %w", err)
	}
	var lastSession any
	if p.LastSessionDate != nil {
		lastSession = p.LastSessionDate.UnixNano()
	}

	query := `
	INSERT INTO progress (user_id, id, total_sessions, total_minutes, current_streak,
		last_session_date, average_accuracy, achievements_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		total_sessions = excluded.total_sessions,
		total_minutes = excluded.total_minutes,
		current_streak = excluded.current_streak,
		last_session_date = excluded.last_session_date,
		average_accuracy = excluded.average_accuracy,
		achievements_json = excluded.achievements_json`
	err = withRetry(ctx, "upsert progress", func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.UserID, p.ID, p.TotalSessions, p.TotalMinutes, p.CurrentStreak,
			lastSession, p.AverageAccuracy, string(achievements),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert progress: %w", err)
	}
	return p, nil
}

var _ Repository = (*SQLiteStore)(nil)
