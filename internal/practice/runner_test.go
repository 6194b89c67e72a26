package practice

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/store"
	"github.com/ashureev/parla/internal/transcript"
)

type fakeProvider struct {
	corrections []domain.Correction
	reply       string
	replyErr    error
	block       chan struct{}
}

func (f *fakeProvider) AnalyzeCorrections(context.Context, string) ([]domain.Correction, error) {
	return f.corrections, nil
}

func (f *fakeProvider) GenerateReply(ctx context.Context, _ conversation.ReplyRequest) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.replyErr
}

type recordingLog struct {
	mu     sync.Mutex
	events []transcript.Event
}

func (r *recordingLog) Log(e transcript.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLog) Close() error { return nil }

func newTestRunner(t *testing.T, p conversation.Provider) (*Runner, store.Repository, *recordingLog) {
	t.Helper()
	repo := store.NewMemory()
	conv := conversation.NewService(p, repo, conversation.WithRand(rand.New(rand.NewPCG(1, 2))))
	log := &recordingLog{}
	return NewRunner(repo, conv, log, Config{TurnTimeout: time.Second}, nil), repo, log
}

func TestProcessTurnPersistsAndCounts(t *testing.T) {
	p := &fakeProvider{
		corrections: []domain.Correction{{Original: "I are", Corrected: "I am", Explanation: "agreement", Type: domain.CorrectionGrammar}},
		reply:       "Nice! Why are you happy?",
	}
	r, repo, log := newTestRunner(t, p)
	ctx := context.Background()

	sess, err := repo.CreateSession(ctx, domain.SessionDraft{TopicID: "daily-life"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	out, err := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, TopicID: "daily-life", Text: "I are happy", Channel: "ws"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if out.Degraded {
		t.Fatal("expected non-degraded outcome")
	}
	if out.Accuracy != 67 {
		t.Errorf("accuracy = %d, want 67", out.Accuracy)
	}
	if out.NextPrompt == "" {
		t.Error("expected a next prompt for a known topic")
	}

	msgs, err := repo.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Type != domain.MessageUser || msgs[1].Type != domain.MessageBot {
		t.Errorf("message order = %s, %s", msgs[0].Type, msgs[1].Type)
	}
	if len(msgs[1].Corrections) != 1 || msgs[1].Corrections[0].Original != "I are" {
		t.Errorf("bot corrections = %+v", msgs[1].Corrections)
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.MessagesCount != 2 || got.CorrectionsCount != 1 || got.Accuracy != 67 {
		t.Errorf("session counters = %d/%d/%d", got.MessagesCount, got.CorrectionsCount, got.Accuracy)
	}

	if len(log.events) != 2 {
		t.Errorf("transcript events = %d, want 2", len(log.events))
	}
}

func TestProcessTurnFallbackOnReplyFailure(t *testing.T) {
	r, repo, _ := newTestRunner(t, &fakeProvider{replyErr: errors.New("quota")})
	ctx := context.Background()
	sess, _ := repo.CreateSession(ctx, domain.SessionDraft{})

	out, err := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, Text: "hello there"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !out.Degraded || out.Reply != FallbackReply {
		t.Errorf("outcome = %+v, want fallback", out)
	}
	if len(out.Corrections) != 0 {
		t.Errorf("fallback corrections = %d", len(out.Corrections))
	}
	msgs, _ := repo.ListMessages(ctx, sess.ID)
	if len(msgs) != 2 || msgs[1].Content != FallbackReply {
		t.Errorf("expected fallback reply persisted, got %d messages", len(msgs))
	}
}

func TestProcessTurnEmptyText(t *testing.T) {
	r, repo, _ := newTestRunner(t, &fakeProvider{reply: "x"})
	ctx := context.Background()
	sess, _ := repo.CreateSession(ctx, domain.SessionDraft{})

	if _, err := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, Text: "   "}); !errors.Is(err, conversation.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	msgs, _ := repo.ListMessages(ctx, sess.ID)
	if len(msgs) != 0 {
		t.Errorf("messages = %d, want 0", len(msgs))
	}
}

func TestProcessTurnWithoutSession(t *testing.T) {
	r, _, _ := newTestRunner(t, &fakeProvider{reply: "Sounds fun."})
	out, err := r.ProcessTurn(context.Background(), Turn{Text: "I like cooking"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if out.Reply != "Sounds fun." || out.Accuracy != 100 {
		t.Errorf("outcome = %+v", out)
	}
	if out.BotMessage != nil || out.Session != nil {
		t.Error("expected no persistence without a session id")
	}
}

func TestProcessTurnSurvivesCallerCancel(t *testing.T) {
	p := &fakeProvider{reply: "Still here.", block: make(chan struct{})}
	r, repo, _ := newTestRunner(t, p)
	sess, _ := repo.CreateSession(context.Background(), domain.SessionDraft{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Outcome, 1)
	go func() {
		out, _ := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, Text: "are you there"})
		done <- out
	}()

	cancel()
	close(p.block)

	select {
	case out := <-done:
		if out.Degraded {
			t.Error("caller cancel should not degrade the turn")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish")
	}

	msgs, _ := repo.ListMessages(context.Background(), sess.ID)
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}
}

func TestProcessTurnPersistsAfterReplyTimeout(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "parla.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	p := &fakeProvider{reply: "too late", block: make(chan struct{})}
	conv := conversation.NewService(p, repo, conversation.WithRand(rand.New(rand.NewPCG(1, 2))))
	r := NewRunner(repo, conv, &recordingLog{}, Config{TurnTimeout: 200 * time.Millisecond}, nil)

	ctx := context.Background()
	sess, err := repo.CreateSession(ctx, domain.SessionDraft{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	out, err := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, Text: "is anyone there"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !out.Degraded {
		t.Error("expected a degraded outcome after the reply timed out")
	}
	if out.BotMessage == nil {
		t.Fatal("expected the fallback reply to be persisted")
	}

	msgs, err := repo.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}
	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.MessagesCount != 2 {
		t.Errorf("messages count = %d, want 2", got.MessagesCount)
	}
}

func TestLoadHistory(t *testing.T) {
	r, repo, _ := newTestRunner(t, &fakeProvider{reply: "ok"})
	ctx := context.Background()
	sess, _ := repo.CreateSession(ctx, domain.SessionDraft{})
	for _, text := range []string{"one", "two"} {
		if _, err := r.ProcessTurn(ctx, Turn{SessionID: sess.ID, Text: text}); err != nil {
			t.Fatalf("ProcessTurn: %v", err)
		}
	}

	h := r.LoadHistory(ctx, sess.ID)
	if h.Len() != 4 {
		t.Errorf("history len = %d, want 4", h.Len())
	}
	if r.LoadHistory(ctx, "").Len() != 0 {
		t.Error("expected empty history without a session")
	}
}
