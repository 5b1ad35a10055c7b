package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the tutoring packages. Callers check them with errors.Is.
var (
	// ErrInvalidScore marks a score outside [0,100].
	ErrInvalidScore = errors.New("invalid score")
	// ErrOracleUnavailable marks a transport, timeout or cancellation failure of the Oracle.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrOracleMalformedResponse marks an Oracle payload that does not have the expected shape.
	ErrOracleMalformedResponse = errors.New("oracle returned a malformed response")
	// ErrSessionNotFound marks an operation on an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
)

// InvalidValueError reports an unknown enum value in caller input.
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// ScoreError is an ErrInvalidScore carrying the offending value.
type ScoreError struct {
	Score int
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("%v: %d is outside [0,100]", ErrInvalidScore, e.Score)
}

func (e *ScoreError) Unwrap() error { return ErrInvalidScore }

// Retryable reports whether the student may simply resubmit the same turn.
func Retryable(err error) bool {
	return errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrOracleMalformedResponse) ||
		errors.Is(err, ErrOracleUnavailable)
}

func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}
