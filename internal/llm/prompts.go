package llm

import (
	"fmt"
	"strings"

	"github.com/ashureev/parla/internal/domain"
)

const correctionInstruction = `You are an English teacher reviewing a learner's spoken sentence.
Find grammar, vocabulary, fluency and pronunciation issues. Return a JSON array,
possibly empty, of objects with the fields "original" (the exact phrase the
learner said), "corrected", "explanation" (one short sentence) and "type"
(one of grammar, vocabulary, fluency, pronunciation). Do not flag style
preferences. Return [] when the sentence is correct.`

const replyInstruction = `You are a friendly conversation partner helping someone practice spoken English.
Answer naturally in at most %d words, using simple and clear language.
If corrections are listed, mention them gently in one sentence before continuing.
Always end with a short follow-up question that keeps the conversation going.`

func correctionPrompt(text string) string {
	return "Learner said: " + text
}

func replyPrompt(text string, corrections []domain.Correction) string {
	var b strings.Builder
	b.WriteString(text)
	if len(corrections) == 0 {
		return b.String()
	}
	b.WriteString("\n\n[Corrections to mention gently]\n")
	for _, c := range corrections {
		fmt.Fprintf(&b, "- %q should be %q (%s)\n", c.Original, c.Corrected, c.Explanation)
	}
	return b.String()
}
