package oracle

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

var testQuestion = model.Question{
	Text:        "What is a mutex?",
	Difficulty:  model.DifficultyMedium,
	Topic:       "Concurrency",
	GeneratedAt: 3,
}

func TestParseEvaluationScoreCoercion(t *testing.T) {
	tests := []struct {
		name  string
		score string
		want  int
	}{
		{"integer", `85`, 85},
		{"zero", `0`, 0},
		{"hundred", `100`, 100},
		{"float rounds half up", `72.5`, 73},
		{"float rounds down", `72.4`, 72},
		{"string", `"64"`, 64},
		{"string percent", `"90%"`, 90},
		{"string padded", `" 55 "`, 55},
		{"string float", `"99.6"`, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseEvaluation(RawEvaluation{Score: json.RawMessage(tt.score)}, testQuestion, "ans", PolicyReject)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Score != tt.want {
				t.Errorf("score = %d, want %d", a.Score, tt.want)
			}
			if a.ScoreClamped {
				t.Error("in-range score must not be flagged")
			}
		})
	}
}

func TestParseEvaluationMalformedScore(t *testing.T) {
	for _, raw := range []string{``, `null`, `"excellent"`, `true`, `[80]`, `{"value":80}`} {
		_, err := ParseEvaluation(RawEvaluation{Score: json.RawMessage(raw)}, testQuestion, "ans", PolicyClamp)
		if !errors.Is(err, model.ErrOracleMalformedResponse) {
			t.Errorf("score %q: expected ErrOracleMalformedResponse, got %v", raw, err)
		}
	}
}

func TestParseEvaluationOutOfRange(t *testing.T) {
	tests := []struct {
		score string
		clamp int
	}{
		{`-5`, 0},
		{`150`, 100},
		{`"101%"`, 100},
		{`-0.6`, 0},
		{`1e30`, 100},
	}
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			raw := RawEvaluation{Score: json.RawMessage(tt.score)}

			_, err := ParseEvaluation(raw, testQuestion, "ans", PolicyReject)
			if !errors.Is(err, model.ErrInvalidScore) {
				t.Fatalf("reject: expected ErrInvalidScore, got %v", err)
			}

			a, err := ParseEvaluation(raw, testQuestion, "ans", PolicyClamp)
			if err != nil {
				t.Fatalf("clamp: %v", err)
			}
			if a.Score != tt.clamp || !a.ScoreClamped {
				t.Errorf("clamp: got score %d clamped=%v, want %d flagged", a.Score, a.ScoreClamped, tt.clamp)
			}
		})
	}
}

func TestParseEvaluationLists(t *testing.T) {
	raw, err := DecodeEvaluation([]byte(`{
		"score": 40,
		"feedback": "  Close. ",
		"misconceptions": ["mutex is a semaphore", "  ", " locks are free "],
		"suggested_topics": ["Semaphores"]
	}`))
	if err != nil {
		t.Fatalf("DecodeEvaluation: %v", err)
	}
	a, err := ParseEvaluation(raw, testQuestion, "a lock", PolicyReject)
	if err != nil {
		t.Fatalf("ParseEvaluation: %v", err)
	}
	if a.Feedback != "Close." {
		t.Errorf("feedback = %q", a.Feedback)
	}
	if !reflect.DeepEqual(a.Misconceptions, []string{"mutex is a semaphore", "locks are free"}) {
		t.Errorf("misconceptions = %v", a.Misconceptions)
	}
	if a.CorrectPoints == nil || a.MissedPoints == nil || len(a.CorrectPoints) != 0 {
		t.Errorf("missing lists should be empty, got %v / %v", a.CorrectPoints, a.MissedPoints)
	}
	if a.QuestionRef != 3 || a.StudentText != "a lock" {
		t.Errorf("answer not linked to question: %+v", a)
	}
}

func TestDecodeEvaluationRejectsNonStringEntries(t *testing.T) {
	_, err := DecodeEvaluation([]byte(`{"score": 40, "misconceptions": ["ok", 7]}`))
	if !errors.Is(err, model.ErrOracleMalformedResponse) {
		t.Fatalf("expected ErrOracleMalformedResponse, got %v", err)
	}
}

func TestParseQuestion(t *testing.T) {
	raw, err := DecodeQuestion([]byte(`{
		"question": "  Define deadlock. ",
		"difficulty_level": "HARD",
		"concept_tested": "Deadlock",
		"hints": ["think of four conditions", ""],
		"dos_and_donts": {"dos": ["name the conditions"], "donts": []},
		"expected_answer_points": ["mutual exclusion", "hold and wait"]
	}`))
	if err != nil {
		t.Fatalf("DecodeQuestion: %v", err)
	}
	q, err := ParseQuestion(raw, model.DifficultyEasy, "Concurrency", 2)
	if err != nil {
		t.Fatalf("ParseQuestion: %v", err)
	}
	if q.Text != "Define deadlock." || q.GeneratedAt != 2 || q.Topic != "Concurrency" {
		t.Errorf("unexpected question %+v", q)
	}
	if q.Difficulty != model.DifficultyEasy {
		t.Errorf("question must carry the requested difficulty, got %s", q.Difficulty)
	}
	if !reflect.DeepEqual(q.Hints, []string{"think of four conditions"}) || len(q.ExpectedPoints) != 2 {
		t.Errorf("lists not cleaned: %+v", q)
	}

	if _, err := ParseQuestion(GeneratedQuestion{Question: "   "}, model.DifficultyEasy, "x", 0); !errors.Is(err, model.ErrOracleMalformedResponse) {
		t.Errorf("empty question: expected ErrOracleMalformedResponse, got %v", err)
	}
}
