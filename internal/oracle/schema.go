package oracle

import "github.com/pavelanni/tutor/internal/llm"

func stringList(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": "string"},
	}
}

// QuestionSchema describes a generated question.
var QuestionSchema = &llm.Schema{
	Name:        "tutor-question",
	Description: "One tutoring question with hints and the points a complete answer covers",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question text",
				"minLength":   1,
			},
			"difficulty_level": map[string]any{
				"type":        "string",
				"description": "easy, medium or hard",
			},
			"concept_tested": map[string]any{
				"type":        "string",
				"description": "The main concept the question checks",
			},
			"hints": stringList("Short hints that do not give the answer away"),
			"dos_and_donts": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dos":   stringList("What a good answer does"),
					"donts": stringList("Common mistakes to avoid"),
				},
			},
			"expected_answer_points": stringList("Key points a complete answer covers"),
		},
		"required": []string{"question"},
	},
}

// EvaluationSchema describes the grading of one answer. Score accepts numbers
// and strings; ParseEvaluation coerces and range-checks it.
var EvaluationSchema = &llm.Schema{
	Name:        "tutor-evaluation",
	Description: "The grading of a student's answer on a 0-100 scale",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        []string{"integer", "number", "string"},
				"description": "Score from 0 to 100",
			},
			"feedback":         map[string]any{"type": "string", "description": "Constructive feedback"},
			"correct_points":   stringList("What the student got right"),
			"missed_points":    stringList("Expected points the answer missed"),
			"misconceptions":   stringList("Incorrect beliefs the answer shows"),
			"suggested_topics": stringList("Topics to review next"),
		},
		"required": []string{"score"},
	},
}
