package store

import "github.com/ashureev/parla/internal/domain"

// DefaultTopics returns the conversation topics seeded at start.
func DefaultTopics() []domain.Topic {
	return []domain.Topic{
		{
			ID:          "daily-life",
			Title:       "Daily Life",
			Description: "Talk about your routine, your home and the people around you.",
			Icon:        "sun",
			Difficulty:  domain.DifficultyBeginner,
			Prompts: []string{
				"What does a normal morning look like for you?",
				"What did you eat for dinner yesterday?",
				"Tell me about the place where you live.",
				"What do you usually do on weekends?",
			},
			IsActive: true,
		},
		{
			ID:          "travel",
			Title:       "Travel",
			Description: "Share trips you have taken and places you dream of visiting.",
			Icon:        "plane",
			Difficulty:  domain.DifficultyBeginner,
			Prompts: []string{
				"Where did you go on your last holiday?",
				"Which country would you most like to visit, and why?",
				"Do you prefer traveling by train or by plane?",
				"Tell me about a time something went wrong on a trip.",
			},
			IsActive: true,
		},
		{
			ID:          "food",
			Title:       "Food & Cooking",
			Description: "Describe dishes, recipes and restaurants you love.",
			Icon:        "utensils",
			Difficulty:  domain.DifficultyBeginner,
			Prompts: []string{
				"What is your favorite dish from your country?",
				"Can you explain how to cook something simple?",
				"What was the best restaurant meal you ever had?",
			},
			IsActive: true,
		},
		{
			ID:          "work",
			Title:       "Work & Career",
			Description: "Discuss your job, your goals and workplace situations.",
			Icon:        "briefcase",
			Difficulty:  domain.DifficultyIntermediate,
			Prompts: []string{
				"What do you enjoy most about your work or studies?",
				"Describe a challenge you solved recently at work.",
				"Where do you see your career in five years?",
				"How would you prepare for a job interview?",
			},
			IsActive: true,
		},
		{
			ID:          "hobbies",
			Title:       "Hobbies",
			Description: "Chat about the things you do for fun.",
			Icon:        "palette",
			Difficulty:  domain.DifficultyIntermediate,
			Prompts: []string{
				"How did you get started with your favorite hobby?",
				"Is there a skill you would like to learn this year?",
				"What kind of music or films do you enjoy?",
			},
			IsActive: true,
		},
		{
			ID:          "current-events",
			Title:       "Current Events",
			Description: "Give your opinion on news, technology and society.",
			Icon:        "newspaper",
			Difficulty:  domain.DifficultyAdvanced,
			Prompts: []string{
				"How has technology changed the way people communicate?",
				"Should cities ban cars from their centers? Why or why not?",
				"What news story caught your attention this week?",
				"Is remote work better for society in the long run?",
			},
			IsActive: true,
		},
	}
}
