// Package session holds the per-student tutoring state and the rules that
// move it forward one turn at a time.
//
// State is a value: RecordTurn never mutates its input, it returns the next
// version. Callers keep whichever version they want to treat as current, which
// is what makes undo and replay possible.
package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/pavelanni/tutor/internal/model"
)

// State is one student's progress through a tutoring session.
type State struct {
	Department        string               `json:"department"`
	Topic             string               `json:"topic"`
	Level             model.EducationLevel `json:"education_level"`
	InitialDifficulty model.Difficulty     `json:"initial_difficulty"`
	Difficulty        model.Difficulty     `json:"difficulty"`
	Scores            []int                `json:"scores"`
	KnowledgeGaps     []string             `json:"knowledge_gaps"`
	SuggestedTopics   []string             `json:"suggested_topics"`
	TurnCount         int                  `json:"turn_count"`

	// Background and Instructions are free text fed to the question prompt.
	Background   string `json:"background,omitempty"`
	Instructions string `json:"instructions,omitempty"`

	Turns []model.Turn `json:"turns"`
}

// New creates the state for a fresh session. An empty initial difficulty means Medium.
func New(department, topic string, level model.EducationLevel, initial model.Difficulty) (State, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return State{}, &model.InvalidValueError{Field: "topic", Value: topic}
	}
	if !level.Valid() {
		return State{}, &model.InvalidValueError{Field: "education level", Value: string(level)}
	}
	if initial == "" {
		initial = model.DifficultyMedium
	}
	if !initial.Valid() {
		return State{}, &model.InvalidValueError{Field: "difficulty", Value: string(initial)}
	}
	return State{
		Department:        strings.TrimSpace(department),
		Topic:             topic,
		Level:             level,
		InitialDifficulty: initial,
		Difficulty:        initial,
		Scores:            []int{},
		KnowledgeGaps:     []string{},
		SuggestedTopics:   []string{},
		Turns:             []model.Turn{},
	}, nil
}

// WithNotes returns a copy of s carrying the student's background and the
// teaching preferences.
func (s State) WithNotes(background, instructions string) State {
	s.Background = strings.TrimSpace(background)
	s.Instructions = strings.TrimSpace(instructions)
	return s
}

// RecordTurn returns the state that follows answering q with a. The score is
// appended, misconceptions and suggested topics are merged into the knowledge
// gaps and the difficulty is moved by NextDifficulty. On error s is returned
// unchanged.
func RecordTurn(s State, q model.Question, a model.Answer) (State, error) {
	next, err := NextDifficulty(s.Difficulty, a.Score)
	if err != nil {
		return s, err
	}

	out := s
	out.Difficulty = next
	out.Scores = append(slices.Clone(s.Scores), a.Score)
	out.KnowledgeGaps = union(s.KnowledgeGaps, a.SuggestedTopics, a.Misconceptions)
	out.SuggestedTopics = union(s.SuggestedTopics, a.SuggestedTopics)
	out.Turns = append(slices.Clone(s.Turns), model.Turn{Question: q, Answer: a})
	out.TurnCount = s.TurnCount + 1
	return out, nil
}

// Replay folds RecordTurn over turns starting from initial.
func Replay(initial State, turns []model.Turn) (State, error) {
	s := initial
	for i, t := range turns {
		var err error
		s, err = RecordTurn(s, t.Question, t.Answer)
		if err != nil {
			return initial, fmt.Errorf("replay turn %d: %w", i, err)
		}
	}
	return s, nil
}

// Pending reports the index the next generated question should carry.
func (s State) Pending() int {
	return s.TurnCount
}

// union appends the unseen, non-blank labels of extra to base, preserving
// first-seen order. base is not modified.
func union(base []string, extra ...[]string) []string {
	all := slices.Clone(base)
	for _, labels := range extra {
		for _, l := range labels {
			if l = strings.TrimSpace(l); l != "" {
				all = append(all, l)
			}
		}
	}
	return lo.Uniq(all)
}
