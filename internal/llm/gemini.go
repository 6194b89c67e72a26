// Package llm adapts language model providers to the conversation service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/domain"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// ErrNotConfigured is returned by providers that have no credentials.
var ErrNotConfigured = errors.New("model provider not configured")

var errEmptyResponse = errors.New("model returned no content")

// contentGenerator is the subset of *genai.Models used by GeminiProvider.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements conversation.Provider on the Gemini API.
type GeminiProvider struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiProvider(client.Models, model, logger), nil
}

func newGeminiProvider(models contentGenerator, model string, logger *slog.Logger) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiProvider{models: models, model: model, logger: logger}
}

// AnalyzeCorrections asks the model for a structured correction list.
func (p *GeminiProvider) AnalyzeCorrections(ctx context.Context, text string) ([]domain.Correction, error) {
	resp, err := p.models.GenerateContent(ctx, p.model,
		genai.Text(correctionPrompt(text)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(correctionInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    correctionSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("analyze corrections: %w", err)
	}
	raw, err := responseText(resp)
	if err != nil {
		return nil, fmt.Errorf("analyze corrections: %w", err)
	}
	corrections, err := ParseCorrections(raw)
	if err != nil {
		p.logger.Debug("Unparseable correction output", "raw", raw)
		return nil, err
	}
	return corrections, nil
}

// GenerateReply asks the model for a conversational answer.
func (p *GeminiProvider) GenerateReply(ctx context.Context, req conversation.ReplyRequest) (string, error) {
	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = conversation.ReplyWordBudget
	}

	contents := historyContents(req.History)
	if n := len(contents); n > 0 && contents[n-1].Role == string(genai.RoleUser) {
		contents = contents[:n-1] // replaced below with the annotated prompt
	}
	contents = append(contents, genai.NewContentFromText(replyPrompt(req.Text, req.Corrections), genai.RoleUser))

	resp, err := p.models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(replyInstruction, maxWords), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   int32(maxWords * 2),
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply, err := responseText(resp)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

func historyContents(turns []conversation.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyResponse
	}
	return b.String(), nil
}

var correctionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"original":    {Type: genai.TypeString},
			"corrected":   {Type: genai.TypeString},
			"explanation": {Type: genai.TypeString},
			"type": {
				Type: genai.TypeString,
				Enum: []string{"grammar", "vocabulary", "fluency", "pronunciation"},
			},
		},
		Required: []string{"original", "corrected", "explanation", "type"},
	},
}

// Unconfigured is used when no API key is set; every call fails with ErrNotConfigured.
type Unconfigured struct{}

// AnalyzeCorrections always fails.
func (Unconfigured) AnalyzeCorrections(context.Context, string) ([]domain.Correction, error) {
	return nil, ErrNotConfigured
}

// GenerateReply always fails.
func (Unconfigured) GenerateReply(context.Context, conversation.ReplyRequest) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ conversation.Provider = (*GeminiProvider)(nil)
	_ conversation.Provider = Unconfigured{}
)
