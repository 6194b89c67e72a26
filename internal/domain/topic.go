package domain

// Difficulty is the tier of a conversation topic.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Topic is a named conversation theme with seed prompts.
type Topic struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Difficulty  Difficulty `json:"difficulty"`
	Prompts     []string   `json:"prompts"`
	IsActive    bool       `json:"isActive"`
}
