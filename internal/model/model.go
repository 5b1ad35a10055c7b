package model

import (
	"context"
	"time"
)

// UserRole represents an instructor's access level.
type UserRole string

const (
	// UserRoleTeacher can review recorded tutoring sessions.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin can also manage instructor accounts.
	UserRoleAdmin UserRole = "admin"
)

// User represents an instructor account. Students are anonymous.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an instructor login session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Difficulty represents a difficulty band.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the three bands.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty normalizes a difficulty tag. Empty input yields Medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(normalizeTag(s)) {
	case "":
		return DifficultyMedium, nil
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyHard:
		return DifficultyHard, nil
	}
	return "", &InvalidValueError{Field: "difficulty", Value: s}
}

// EducationLevel is the student's level of study.
type EducationLevel string

const (
	LevelHighSchool EducationLevel = "high_school"
	LevelUndergrad  EducationLevel = "undergrad"
	LevelGrad       EducationLevel = "grad"
	LevelPhD        EducationLevel = "phd"
)

// EducationLevels lists the levels in ascending order.
var EducationLevels = []EducationLevel{LevelHighSchool, LevelUndergrad, LevelGrad, LevelPhD}

// Valid reports whether l is a known level.
func (l EducationLevel) Valid() bool {
	switch l {
	case LevelHighSchool, LevelUndergrad, LevelGrad, LevelPhD:
		return true
	}
	return false
}

// Label returns the human-readable name used in prompts.
func (l EducationLevel) Label() string {
	switch l {
	case LevelHighSchool:
		return "High School"
	case LevelUndergrad:
		return "Undergraduate"
	case LevelGrad:
		return "Graduate"
	case LevelPhD:
		return "PhD"
	}
	return string(l)
}

// ParseEducationLevel accepts the canonical tags and a few common spellings.
func ParseEducationLevel(s string) (EducationLevel, error) {
	switch normalizeTag(s) {
	case "high_school", "highschool", "school":
		return LevelHighSchool, nil
	case "undergrad", "undergraduate", "ug", "bachelor":
		return LevelUndergrad, nil
	case "grad", "graduate", "masters", "master":
		return LevelGrad, nil
	case "phd", "doctorate":
		return LevelPhD, nil
	}
	return "", &InvalidValueError{Field: "education level", Value: s}
}

// Question is a generated question. Immutable once created.
type Question struct {
	Text           string     `json:"text"`
	Difficulty     Difficulty `json:"difficulty"`
	Topic          string     `json:"topic"`
	GeneratedAt    int        `json:"generated_at"`
	Concept        string     `json:"concept,omitempty"`
	Hints          []string   `json:"hints,omitempty"`
	Dos            []string   `json:"dos,omitempty"`
	Donts          []string   `json:"donts,omitempty"`
	ExpectedPoints []string   `json:"expected_points,omitempty"`
}

// Answer is the validated evaluation of a student's answer. Immutable.
type Answer struct {
	QuestionRef     int      `json:"question_ref"`
	StudentText     string   `json:"student_text"`
	Score           int      `json:"score"`
	ScoreClamped    bool     `json:"score_clamped,omitempty"`
	Feedback        string   `json:"feedback"`
	Misconceptions  []string `json:"misconceptions"`
	SuggestedTopics []string `json:"suggested_topics"`
	CorrectPoints   []string `json:"correct_points,omitempty"`
	MissedPoints    []string `json:"missed_points,omitempty"`
}

// Turn pairs a question with the answer that closed it.
type Turn struct {
	Question Question `json:"question"`
	Answer   Answer   `json:"answer"`
}

// TutorConfig holds runtime tutoring parameters set via CLI flags.
type TutorConfig struct {
	InitialDifficulty Difficulty
	HistoryWindow     int           // number of recent scores summarised in prompts
	OracleTimeout     time.Duration // bound on a single Oracle call
	SessionTTL        time.Duration // idle sessions are evicted after this
	BasePath          string        // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies     bool          // Set Secure flag on cookies (disable for local dev)
	PromptVariant     string        // grading prompt variant (strict, standard, lenient)
	Debug             bool          // log Oracle request and response bodies
}
