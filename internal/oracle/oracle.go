// Package oracle is the boundary to the language model that writes and
// grades questions. Nothing it returns is trusted: responses are checked
// against a JSON schema and then parsed strictly into model types.
package oracle

import (
	"context"
	"encoding/json"

	"github.com/pavelanni/tutor/internal/llm/prompts"
)

// Oracle generates questions and evaluates answers.
//
// Implementations return errors wrapping model.ErrOracleUnavailable for
// transport failures and timeouts, and model.ErrOracleMalformedResponse for
// output that cannot be parsed.
type Oracle interface {
	GenerateQuestion(ctx context.Context, req prompts.QuestionRequest) (GeneratedQuestion, error)
	EvaluateAnswer(ctx context.Context, req prompts.EvaluationRequest) (RawEvaluation, error)
}

// DosAndDonts is the pair of advice lists attached to a question.
type DosAndDonts struct {
	Dos   []string `json:"dos"`
	Donts []string `json:"donts"`
}

// GeneratedQuestion is the Oracle's question exactly as it arrived.
type GeneratedQuestion struct {
	Question       string      `json:"question"`
	Difficulty     string      `json:"difficulty_level"`
	Concept        string      `json:"concept_tested"`
	Hints          []string    `json:"hints"`
	DosAndDonts    DosAndDonts `json:"dos_and_donts"`
	ExpectedPoints []string    `json:"expected_answer_points"`
}

// RawEvaluation is the Oracle's grading exactly as it arrived. Score stays
// raw because models send it as a number, a float or a string.
type RawEvaluation struct {
	Score           json.RawMessage `json:"score"`
	Feedback        string          `json:"feedback"`
	CorrectPoints   []string        `json:"correct_points"`
	MissedPoints    []string        `json:"missed_points"`
	Misconceptions  []string        `json:"misconceptions"`
	SuggestedTopics []string        `json:"suggested_topics"`
}
