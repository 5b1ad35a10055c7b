package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/pavelanni/tutor/internal/model"
)

// ScorePolicy says what ParseEvaluation does with a score outside [0,100].
type ScorePolicy int

const (
	// PolicyReject fails with model.ErrInvalidScore.
	PolicyReject ScorePolicy = iota
	// PolicyClamp moves the score to the nearest bound and sets Answer.ScoreClamped.
	PolicyClamp
)

func (p ScorePolicy) String() string {
	if p == PolicyClamp {
		return "clamp"
	}
	return "reject"
}

// ParseQuestion turns a generated question into a model.Question for the
// given turn. The question carries the requested difficulty; the Oracle's
// own tag is only compared against it.
func ParseQuestion(raw GeneratedQuestion, requested model.Difficulty, topic string, turnIndex int) (model.Question, error) {
	text := strings.TrimSpace(raw.Question)
	if text == "" {
		return model.Question{}, fmt.Errorf("%w: empty question text", model.ErrOracleMalformedResponse)
	}
	if raw.Difficulty != "" {
		if tag, err := model.ParseDifficulty(raw.Difficulty); err != nil || tag != requested {
			slog.Debug("oracle difficulty tag differs from request",
				"requested", requested, "tag", raw.Difficulty)
		}
	}
	return model.Question{
		Text:           text,
		Difficulty:     requested,
		Topic:          topic,
		GeneratedAt:    turnIndex,
		Concept:        strings.TrimSpace(raw.Concept),
		Hints:          cleanList(raw.Hints),
		Dos:            cleanList(raw.DosAndDonts.Dos),
		Donts:          cleanList(raw.DosAndDonts.Donts),
		ExpectedPoints: cleanList(raw.ExpectedPoints),
	}, nil
}

// ParseEvaluation validates an evaluation of the answer to q and builds the
// Answer. Missing lists become empty. A score that cannot be read as a number
// is ErrOracleMalformedResponse; one outside [0,100] is handled by policy.
func ParseEvaluation(raw RawEvaluation, q model.Question, studentText string, policy ScorePolicy) (model.Answer, error) {
	f, err := coerceScore(raw.Score)
	if err != nil {
		return model.Answer{}, err
	}

	score, clamped := int(math.Round(math.Max(math.Min(f, 1e6), -1e6))), false
	if score < 0 || score > 100 {
		if policy != PolicyClamp {
			return model.Answer{}, &model.ScoreError{Score: score}
		}
		score, clamped = min(max(score, 0), 100), true
	}

	return model.Answer{
		QuestionRef:     q.GeneratedAt,
		StudentText:     studentText,
		Score:           score,
		ScoreClamped:    clamped,
		Feedback:        strings.TrimSpace(raw.Feedback),
		Misconceptions:  cleanList(raw.Misconceptions),
		SuggestedTopics: cleanList(raw.SuggestedTopics),
		CorrectPoints:   cleanList(raw.CorrectPoints),
		MissedPoints:    cleanList(raw.MissedPoints),
	}, nil
}

// DecodeEvaluation unmarshals an evaluation payload. Wrong field types, such
// as a number inside the misconceptions list, are malformed responses.
func DecodeEvaluation(data []byte) (RawEvaluation, error) {
	var raw RawEvaluation
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawEvaluation{}, fmt.Errorf("%w: %v", model.ErrOracleMalformedResponse, err)
	}
	return raw, nil
}

// DecodeQuestion unmarshals a question payload.
func DecodeQuestion(data []byte) (GeneratedQuestion, error) {
	var raw GeneratedQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return GeneratedQuestion{}, fmt.Errorf("%w: %v", model.ErrOracleMalformedResponse, err)
	}
	return raw, nil
}

// coerceScore reads an integer, a float or a numeric string with an
// optional trailing percent sign.
func coerceScore(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing score", model.ErrOracleMalformedResponse)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: score: %v", model.ErrOracleMalformedResponse, err)
	}

	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: score %q is not a number", model.ErrOracleMalformedResponse, s)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: score has type %T", model.ErrOracleMalformedResponse, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: score is not finite", model.ErrOracleMalformedResponse)
	}
	return f, nil
}

func cleanList(xs []string) []string {
	return lo.FilterMap(xs, func(x string, _ int) (string, bool) {
		x = strings.TrimSpace(x)
		return x, x != ""
	})
}
