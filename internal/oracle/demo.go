package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/tutor/internal/llm"
)

var (
	demoTopicRegex  = regexp.MustCompile(`studying "([^"]*)"`)
	demoAnswerRegex = regexp.MustCompile(`(?s)<student-answer>\n?(.*?)\n?</student-answer>`)
)

// NewDemoProvider returns a MockProvider that answers tutoring requests
// offline. Questions are templated on the topic found in the prompt and an
// answer scores 20 plus 4 per word, capped at 100.
func NewDemoProvider() *llm.MockProvider {
	m := llm.NewMockProvider()
	n := 0
	m.Fallback = func(req llm.Request) llm.MockResponse {
		switch {
		case req.Schema == nil:
			return llm.MockResponse{Content: json.RawMessage(`{}`)}
		case req.Schema.Name == QuestionSchema.Name:
			n++
			return demoQuestion(req.System, n)
		default:
			return demoEvaluation(req.System)
		}
	}
	return m
}

func demoQuestion(system string, n int) llm.MockResponse {
	topic := "the topic"
	if m := demoTopicRegex.FindStringSubmatch(system); m != nil {
		topic = m[1]
	}
	q := GeneratedQuestion{
		Question:       fmt.Sprintf("Question %d: explain one core idea of %s and give an example.", n, topic),
		Concept:        topic,
		Hints:          []string{"Start from a definition.", "Use a small concrete example."},
		DosAndDonts:    DosAndDonts{Dos: []string{"Be specific"}, Donts: []string{"Do not just list terms"}},
		ExpectedPoints: []string{"A correct definition", "A relevant example"},
	}
	data, _ := json.Marshal(q)
	return llm.MockResponse{Content: data}
}

func demoEvaluation(system string) llm.MockResponse {
	answer := ""
	if m := demoAnswerRegex.FindStringSubmatch(system); m != nil {
		answer = m[1]
	}
	words := len(strings.Fields(answer))
	if answer == "[No answer provided]" {
		words = 0
	}
	score := min(20+4*words, 100)

	eval := map[string]any{
		"score":            score,
		"feedback":         fmt.Sprintf("Demo grading: %d words earned %d points.", words, score),
		"correct_points":   []string{},
		"missed_points":    []string{},
		"misconceptions":   []string{},
		"suggested_topics": []string{},
	}
	if score < 50 {
		eval["missed_points"] = []string{"A relevant example"}
		eval["suggested_topics"] = []string{"Worked examples"}
	}
	data, _ := json.Marshal(eval)
	return llm.MockResponse{Content: data}
}
