package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/parla/internal/conversation"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	text     string
	err      error
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiAnalyzeCorrections(t *testing.T) {
	gen := &fakeGenerator{text: `[{"original":"I are","corrected":"I am","explanation":"Use am with I","type":"grammar"}]`}
	p := newGeminiProvider(gen, "", nil)

	got, err := p.AnalyzeCorrections(context.Background(), "I are happy")
	if err != nil {
		t.Fatalf("AnalyzeCorrections failed: %v", err)
	}
	if len(got) != 1 || got[0].Original != "I are" {
		t.Fatalf("unexpected corrections %+v", got)
	}
	if gen.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response type, got %q", gen.config.ResponseMIMEType)
	}
}

func TestGeminiAnalyzeCorrectionsUnparseable(t *testing.T) {
	p := newGeminiProvider(&fakeGenerator{text: "Looks fine to me!"}, "", nil)
	if _, err := p.AnalyzeCorrections(context.Background(), "hello"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}

func TestGeminiGenerateReplySendsHistory(t *testing.T) {
	gen := &fakeGenerator{text: "Sounds fun! Where did you go?"}
	p := newGeminiProvider(gen, "", nil)

	reply, err := p.GenerateReply(context.Background(), conversation.ReplyRequest{
		Text: "I goed to the beach",
		History: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "Hi"},
			{Role: conversation.RoleAssistant, Content: "Hello!"},
			{Role: conversation.RoleUser, Content: "I goed to the beach"},
		},
		MaxWords: 150,
	})
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != gen.text {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(gen.contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(gen.contents))
	}
	if gen.contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("assistant turn should map to model role, got %q", gen.contents[1].Role)
	}
	if gen.config.MaxOutputTokens != 300 {
		t.Fatalf("unexpected token budget %d", gen.config.MaxOutputTokens)
	}
}

func TestGeminiGenerateReplyEmpty(t *testing.T) {
	p := newGeminiProvider(&fakeGenerator{text: "  "}, "", nil)
	if _, err := p.GenerateReply(context.Background(), conversation.ReplyRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error for empty model output")
	}
}

func TestGeminiPropagatesTransportError(t *testing.T) {
	p := newGeminiProvider(&fakeGenerator{err: errors.New("503")}, "", nil)
	if _, err := p.GenerateReply(context.Background(), conversation.ReplyRequest{Text: "hi"}); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), "", "", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestUnconfigured(t *testing.T) {
	var p Unconfigured
	if _, err := p.AnalyzeCorrections(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := p.GenerateReply(context.Background(), conversation.ReplyRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
