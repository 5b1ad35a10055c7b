// Package prompts turns session state into the data and text sent to the
// Oracle. Building the request data is pure; rendering uses the embedded
// text/template files unless Load was called with another filesystem.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Embedded is the built-in template set.
var Embedded fs.FS = embedded

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const (
	maxAnswerRunes = 10000
	maxNoteRunes   = 2000

	// DefaultHistoryWindow is how many recent turns a question prompt sees.
	DefaultHistoryWindow = 5
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	questionTemplate *template.Template
	evalTemplates    map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// Options tune how much history goes into a question prompt.
type Options struct {
	HistoryWindow int
}

// PerformanceSummary is what the Oracle is told about earlier turns. It only
// exists once at least one turn has been scored.
type PerformanceSummary struct {
	TurnCount     int
	RecentScores  []int
	Average       float64
	Understanding int
	KnowledgeGaps []string
}

// QuestionRequest is everything needed to ask the Oracle for the next question.
type QuestionRequest struct {
	Department        string
	Topic             string
	Level             model.EducationLevel
	Difficulty        model.Difficulty
	TurnIndex         int
	Summary           *PerformanceSummary
	Background        string
	Instructions      string
	PreviousQuestions []string
}

// LevelLabel is the human-readable education level.
func (r QuestionRequest) LevelLabel() string { return r.Level.Label() }

// EvaluationRequest is everything needed to score one answer.
type EvaluationRequest struct {
	Department    string
	Topic         string
	Level         model.EducationLevel
	Question      model.Question
	StudentAnswer string
}

// LevelLabel is the human-readable education level.
func (r EvaluationRequest) LevelLabel() string { return r.Level.Label() }

// BuildQuestionRequest derives the question request from the current state.
// With no scored turns Summary is nil: there is no history to describe.
func BuildQuestionRequest(s session.State, opts Options) QuestionRequest {
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}

	req := QuestionRequest{
		Department:   s.Department,
		Topic:        s.Topic,
		Level:        s.Level,
		Difficulty:   s.Difficulty,
		TurnIndex:    s.TurnCount,
		Background:   sanitizeNote(s.Background),
		Instructions: sanitizeNote(s.Instructions),
	}

	if len(s.Scores) > 0 {
		recent := s.Scores
		if len(recent) > window {
			recent = recent[len(recent)-window:]
		}
		req.Summary = &PerformanceSummary{
			TurnCount:     s.TurnCount,
			RecentScores:  append([]int(nil), recent...),
			Average:       session.Average(s.Scores),
			Understanding: session.Understanding(s.Scores, window),
			KnowledgeGaps: append([]string(nil), s.KnowledgeGaps...),
		}
	}

	turns := s.Turns
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	for _, t := range turns {
		req.PreviousQuestions = append(req.PreviousQuestions, t.Question.Text)
	}

	return req
}

// BuildEvaluationRequest pairs the pending question with the student's answer.
func BuildEvaluationRequest(q model.Question, studentAnswer string, s session.State) EvaluationRequest {
	return EvaluationRequest{
		Department:    s.Department,
		Topic:         s.Topic,
		Level:         s.Level,
		Question:      q,
		StudentAnswer: sanitizeAnswer(studentAnswer),
	}
}

// Load parses the prompt templates from fsys. Only the first call has any
// effect; rendering calls Load(Embedded) when nothing was loaded before.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		evalTemplates = make(map[PromptVariant]*template.Template)

		questionTemplate, loadErr = parseTemplate(fsys, "question")
		if loadErr != nil {
			return
		}
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parseTemplate(fsys, "eval_"+string(v))
			if err != nil {
				loadErr = err
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

func parseTemplate(fsys fs.FS, name string) (*template.Template, error) {
	file := "templates/" + name + ".tmpl"
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", file, err)
	}
	return tmpl, nil
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"ints": func(xs []int) string {
		parts := make([]string, len(xs))
		for i, x := range xs {
			parts[i] = fmt.Sprint(x)
		}
		return strings.Join(parts, ", ")
	},
}

// RenderQuestionPrompt renders the system prompt for question generation.
func RenderQuestionPrompt(req QuestionRequest) (string, error) {
	if err := Load(Embedded); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	var buf bytes.Buffer
	if err := questionTemplate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderEvaluationPrompt renders the grading prompt using the given variant.
func RenderEvaluationPrompt(variant PromptVariant, req EvaluationRequest) (string, error) {
	if err := Load(Embedded); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stripTags(s string) string {
	s = studentAnswerRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func sanitizeAnswer(answer string) string {
	answer = stripTags(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}

func sanitizeNote(note string) string {
	note = stripTags(note)
	if utf8.RuneCountInString(note) > maxNoteRunes {
		note = string([]rune(note)[:maxNoteRunes])
	}
	return note
}
