package views

import (
	"github.com/pavelanni/tutor/internal/catalog"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
	"github.com/pavelanni/tutor/internal/tutor"
)

// StartForm echoes the start form back after a validation error.
type StartForm struct {
	Department        string
	Topic             string
	CustomTopic       string
	Level             string
	InitialDifficulty string
	Background        string
	Instructions      string
}

// IndexData feeds the start page.
type IndexData struct {
	Catalog      *catalog.Catalog
	Levels       []model.EducationLevel
	Difficulties []model.Difficulty
	Form         StartForm
	Error        string
}

// Metrics are the numbers shown above the chart.
type Metrics struct {
	QuestionsAsked int
	AverageScore   float64
	Understanding  int
}

// SessionData feeds the tutoring page.
type SessionData struct {
	Snapshot tutor.Snapshot
	// Last is the most recently answered turn, nil before the first answer.
	Last    *model.Turn
	Metrics Metrics
	Chart   Chart
	Mastery []session.ConceptMastery
	Error   string
	Draft   string
}

// NewSessionData derives the page view of a session snapshot.
func NewSessionData(snap tutor.Snapshot, window int) SessionData {
	s := snap.State
	d := SessionData{
		Snapshot: snap,
		Metrics: Metrics{
			QuestionsAsked: s.TurnCount,
			AverageScore:   session.Average(s.Scores),
			Understanding:  session.Understanding(s.Scores, window),
		},
		Chart:   NewChart(s.Scores),
		Mastery: session.Mastery(s),
	}
	if n := len(s.Turns); n > 0 {
		d.Last = &s.Turns[n-1]
	}
	return d
}

// MessageData feeds the plain message page.
type MessageData struct {
	Title   string
	Message string
}

// LoginData feeds the login page.
type LoginData struct {
	Error string
}

// ReviewListData feeds the recorded sessions list.
type ReviewListData struct {
	Sessions []model.SessionRecord
}

// ReviewData feeds one recorded session.
type ReviewData struct {
	Session *model.SessionRecord
	Chart   Chart
}

// AdminUsersData feeds the user management page.
type AdminUsersData struct {
	Users   []model.User
	Roles   []model.UserRole
	Message string
}
