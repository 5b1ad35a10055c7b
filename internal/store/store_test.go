package store

import (
	"context"
	"testing"
	"time"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession(t *testing.T, s *Store, id string, startedAt time.Time) session.State {
	t.Helper()
	st, err := session.New("Computer Science and Engineering", "Compilers", model.LevelGrad, model.DifficultyEasy)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	st = st.WithNotes("knows Go", "short questions")
	if err := s.RecordSession(context.Background(), id, st, startedAt); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	return st
}

func testTurn(idx, score int) model.Turn {
	return model.Turn{
		Question: model.Question{
			Text:        "What does a lexer do?",
			Difficulty:  model.DifficultyEasy,
			Topic:       "Compilers",
			GeneratedAt: idx,
			Hints:       []string{"tokens"},
		},
		Answer: model.Answer{
			QuestionRef:     idx,
			StudentText:     "splits input into tokens",
			Score:           score,
			Feedback:        "good",
			Misconceptions:  []string{},
			SuggestedTopics: []string{"Parsing"},
		},
	}
}

func TestSessionTurnLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newTestSession(t, s, "abc", start)

	for i, score := range []int{90, 40} {
		if err := s.RecordTurn(ctx, "abc", i, testTurn(i, score), model.DifficultyMedium, start.Add(time.Minute)); err != nil {
			t.Fatalf("RecordTurn %d: %v", i, err)
		}
	}

	rec, err := s.GetSession(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a session record")
	}
	if rec.Topic != "Compilers" || rec.Level != model.LevelGrad || rec.InitialDifficulty != model.DifficultyEasy {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.TurnCount != 2 || len(rec.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(rec.Turns))
	}
	if rec.Turns[0].Answer.Score != 90 || rec.Turns[1].Answer.Score != 40 {
		t.Errorf("turns out of order: %+v", rec.Turns)
	}
	if rec.Turns[0].Question.Hints[0] != "tokens" || rec.Turns[0].Answer.SuggestedTopics[0] != "Parsing" {
		t.Errorf("turn payload not round-tripped: %+v", rec.Turns[0])
	}
	if rec.AverageScore != 65 {
		t.Errorf("AverageScore = %v, want 65", rec.AverageScore)
	}
	if rec.EndedAt != nil {
		t.Errorf("session should still be open")
	}

	missing, err := s.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown session, got %v, %v", missing, err)
	}
}

func TestTruncateAndRedo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestSession(t, s, "abc", time.Now())

	for i := range 3 {
		if err := s.RecordTurn(ctx, "abc", i, testTurn(i, 50+i), model.DifficultyMedium, time.Now()); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}
	if err := s.TruncateTurns(ctx, "abc", 1); err != nil {
		t.Fatalf("TruncateTurns: %v", err)
	}
	rec, _ := s.GetSession(ctx, "abc")
	if len(rec.Turns) != 1 {
		t.Fatalf("expected 1 turn after truncate, got %d", len(rec.Turns))
	}

	// Recording an index twice replaces it.
	if err := s.RecordTurn(ctx, "abc", 1, testTurn(1, 99), model.DifficultyHard, time.Now()); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if err := s.RecordTurn(ctx, "abc", 1, testTurn(1, 77), model.DifficultyMedium, time.Now()); err != nil {
		t.Fatalf("RecordTurn again: %v", err)
	}
	rec, _ = s.GetSession(ctx, "abc")
	if len(rec.Turns) != 2 || rec.Turns[1].Answer.Score != 77 || rec.Turns[1].DifficultyAfter != model.DifficultyMedium {
		t.Errorf("unexpected turns %+v", rec.Turns)
	}
}

func TestListEndAndExport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newTestSession(t, s, "older", t0)
	newTestSession(t, s, "newer", t0.Add(time.Hour))
	if err := s.RecordTurn(ctx, "newer", 0, testTurn(0, 80), model.DifficultyEasy, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if err := s.EndSession(ctx, "older", t0.Add(30*time.Minute)); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "newer" || list[1].ID != "older" {
		t.Fatalf("unexpected order %+v", list)
	}
	if list[0].TurnCount != 1 || list[0].AverageScore != 80 {
		t.Errorf("unexpected summary %+v", list[0])
	}
	if list[1].EndedAt == nil || list[0].EndedAt != nil {
		t.Errorf("ended_at not tracked: %+v", list)
	}

	if err := s.SetRunInfo("strict", "gpt-4o-mini"); err != nil {
		t.Fatalf("SetRunInfo: %v", err)
	}
	exp, err := s.ExportSessions(ctx)
	if err != nil {
		t.Fatalf("ExportSessions: %v", err)
	}
	if exp.PromptVariant != "strict" || len(exp.Sessions) != 2 {
		t.Fatalf("unexpected export %+v", exp)
	}
	if len(exp.Sessions[0].Turns) != 1 || exp.Sessions[0].Turns[0].Question.Text != "What does a lexer do?" {
		t.Errorf("export missing turns: %+v", exp.Sessions[0])
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Fatalf("missing key: got %q, %v", v, err)
	}
	if err := s.SetRunInfo("lenient", "llama3"); err != nil {
		t.Fatalf("SetRunInfo: %v", err)
	}
	if err := s.SetRunInfo("standard", "llama3"); err != nil {
		t.Fatalf("SetRunInfo overwrite: %v", err)
	}
	variant, modelID, err := s.RunInfo()
	if err != nil {
		t.Fatalf("RunInfo: %v", err)
	}
	if variant != "standard" || modelID != "llama3" {
		t.Errorf("RunInfo = %q, %q", variant, modelID)
	}
}

func TestLLMRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, purpose := range []string{"question", "evaluation"} {
		if err := s.AppendLLMRequest(ctx, LLMRequest{
			SessionID: "abc", Model: "mock", Purpose: purpose, LatencyMs: 12, Success: true,
		}); err != nil {
			t.Fatalf("AppendLLMRequest: %v", err)
		}
	}
	if err := s.AppendLLMRequest(ctx, LLMRequest{SessionID: "other", Model: "mock", Purpose: "question"}); err != nil {
		t.Fatalf("AppendLLMRequest: %v", err)
	}

	got, err := s.ListLLMRequests(ctx, "abc")
	if err != nil {
		t.Fatalf("ListLLMRequests: %v", err)
	}
	if len(got) != 2 || got[0].Purpose != "question" || got[1].Purpose != "evaluation" || !got[1].Success {
		t.Errorf("unexpected requests %+v", got)
	}
}
