package model

import "time"

// SessionExport is the top-level JSON structure for `tutor export`.
type SessionExport struct {
	ExportedAt    time.Time       `json:"exported_at"`
	PromptVariant string          `json:"prompt_variant"`
	Sessions      []SessionRecord `json:"sessions"`
}

// SessionRecord is one recorded tutoring session.
type SessionRecord struct {
	ID                string         `json:"id"`
	Department        string         `json:"department"`
	Topic             string         `json:"topic"`
	Level             EducationLevel `json:"education_level"`
	InitialDifficulty Difficulty     `json:"initial_difficulty"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	TurnCount         int            `json:"turn_count"`
	Turns             []TurnRecord   `json:"turns,omitempty"`
	AverageScore      float64        `json:"average_score"`
}

// TurnRecord is one committed turn of a recorded session.
type TurnRecord struct {
	Index           int        `json:"index"`
	Question        Question   `json:"question"`
	Answer          Answer     `json:"answer"`
	DifficultyAfter Difficulty `json:"difficulty_after"`
	At              time.Time  `json:"at"`
}
