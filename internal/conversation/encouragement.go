package conversation

import (
	"math"
	"strings"

	"github.com/ashureev/parla/internal/domain"
)

// Tier groups encouragement phrases by how many corrections a turn produced.
type Tier int

const (
	TierExcellent Tier = iota // no corrections
	TierAlmost                // one or two corrections
	TierEffort                // three or more
)

var tierPhrases = map[Tier][]string{
	TierExcellent: {
		"Excellent! Your sentence was perfect.",
		"Fantastic, that sounded completely natural!",
		"Perfect grammar. Keep it up!",
		"Wonderful! You said that exactly right.",
	},
	TierAlmost: {
		"Almost perfect! Just a small detail to polish.",
		"Very close! One tiny fix and it's spot on.",
		"Great job, you're nearly there!",
	},
	TierEffort: {
		"Good effort! Every mistake is a step forward.",
		"Nice try! Keep practicing and it will get easier.",
		"You're learning fast. Let's keep going!",
	},
}

// TierFor maps a correction count to its encouragement tier.
func TierFor(corrections int) Tier {
	switch {
	case corrections <= 0:
		return TierExcellent
	case corrections <= 2:
		return TierAlmost
	default:
		return TierEffort
	}
}

// Phrases returns the fixed phrases of a tier.
func Phrases(t Tier) []string {
	out := make([]string, len(tierPhrases[t]))
	copy(out, tierPhrases[t])
	return out
}

// Accuracy scores an utterance from 0 to 100 given its corrections.
// An utterance with no words scores 100.
func Accuracy(text string, corrections int) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 100
	}
	score := math.Round(100 * (1 - float64(corrections)/float64(words)))
	return domain.ClampPercent(int(score))
}
