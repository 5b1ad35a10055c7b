package session

import (
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/pavelanni/tutor/internal/model"
)

// DefaultUnderstandingWindow is how many recent scores Understanding averages.
const DefaultUnderstandingWindow = 5

// ConceptMastery is the aggregate score of one concept. It is derived from
// the turn log on every call and never stored.
type ConceptMastery struct {
	Concept  string  `json:"concept"`
	Mean     float64 `json:"mean"`
	Attempts int     `json:"attempts"`
	Gap      bool    `json:"gap"`
}

// Mastery groups the scored turns by concept (falling back to the question
// topic) and averages each group. Concepts also flagged as knowledge gaps are
// marked. Results are sorted weakest first, then by name.
func Mastery(s State) []ConceptMastery {
	groups := lo.GroupBy(s.Turns, func(t model.Turn) string {
		if c := strings.TrimSpace(t.Question.Concept); c != "" {
			return c
		}
		return t.Question.Topic
	})

	gaps := lo.SliceToMap(s.KnowledgeGaps, func(g string) (string, bool) {
		return strings.ToLower(g), true
	})

	out := make([]ConceptMastery, 0, len(groups))
	for concept, turns := range groups {
		scores := lo.Map(turns, func(t model.Turn, _ int) int { return t.Answer.Score })
		out = append(out, ConceptMastery{
			Concept:  concept,
			Mean:     Average(scores),
			Attempts: len(turns),
			Gap:      gaps[strings.ToLower(concept)],
		})
	}
	slices.SortFunc(out, func(a, b ConceptMastery) int {
		if a.Mean != b.Mean {
			if a.Mean < b.Mean {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Concept, b.Concept)
	})
	return out
}

// Average returns the mean of scores, or 0 for none.
func Average(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	return float64(lo.Sum(scores)) / float64(len(scores))
}

// Understanding is the rounded mean of the last window scores.
func Understanding(scores []int, window int) int {
	if window <= 0 {
		window = DefaultUnderstandingWindow
	}
	if len(scores) > window {
		scores = scores[len(scores)-window:]
	}
	return int(math.Round(Average(scores)))
}
