package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/parla/internal/domain"
)

// ErrUnparseable is returned when model output is not a correction list.
var ErrUnparseable = errors.New("unparseable model output")

// ParseCorrections decodes a JSON correction list from raw model output.
// Fenced code blocks and a {"corrections": [...]} wrapper are accepted.
// Entries without an original phrase are dropped and unknown categories
// become grammar.
func ParseCorrections(raw string) ([]domain.Correction, error) {
	body := stripFence(strings.TrimSpace(raw))
	if body == "" {
		return []domain.Correction{}, nil
	}

	var list []domain.Correction
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		var wrapped struct {
			Corrections []domain.Correction `json:"corrections"`
		}
		if wrapErr := json.Unmarshal([]byte(body), &wrapped); wrapErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
		}
		list = wrapped.Corrections
	}

	out := make([]domain.Correction, 0, len(list))
	for _, c := range list {
		c.Original = strings.TrimSpace(c.Original)
		c.Corrected = strings.TrimSpace(c.Corrected)
		if c.Original == "" {
			continue
		}
		c.Type = domain.CorrectionType(strings.ToLower(string(c.Type)))
		if !c.Type.Valid() {
			c.Type = domain.CorrectionGrammar
		}
		out = append(out, c)
	}
	return out, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
