package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/oracle"
	"github.com/pavelanni/tutor/internal/session"
)

func questionJSON(text string) llm.MockResponse {
	return llm.MockResponse{Content: json.RawMessage(fmt.Sprintf(
		`{"question":%q,"difficulty_level":"medium","concept_tested":"Sorting","hints":["think"],"expected_answer_points":["stability"]}`, text))}
}

func evalJSON(score any, topics ...string) llm.MockResponse {
	data, _ := json.Marshal(map[string]any{
		"score":            score,
		"feedback":         "ok",
		"misconceptions":   []string{},
		"suggested_topics": topics,
	})
	return llm.MockResponse{Content: data}
}

func testStart() StartRequest {
	return StartRequest{
		Department: "Computer Science and Engineering",
		Topic:      "Algorithms",
		Level:      model.LevelUndergrad,
	}
}

func newTestOrchestrator(t *testing.T, p llm.Provider, journal Journal) *Orchestrator {
	t.Helper()
	return New(oracle.NewLLM(p, prompts.PromptStandard), journal, Config{
		OracleTimeout: 2 * time.Second,
		SessionTTL:    time.Hour,
	})
}

func ptr(s string) *string { return &s }

// funcProvider lets a test script each call.
type funcProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int, req llm.Request) (*llm.Response, error)
}

func (f *funcProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	n := int(f.calls.Add(1))
	return f.fn(ctx, n, req)
}

func (f *funcProvider) ModelID() string { return "func" }

type fakeJournal struct {
	mu       sync.Mutex
	sessions []string
	turns    []int
	truncs   []int
	ended    []string
}

func (j *fakeJournal) RecordSession(_ context.Context, id string, _ session.State, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessions = append(j.sessions, id)
	return nil
}

func (j *fakeJournal) RecordTurn(_ context.Context, _ string, index int, _ model.Turn, _ model.Difficulty, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.turns = append(j.turns, index)
	return nil
}

func (j *fakeJournal) TruncateTurns(_ context.Context, _ string, keep int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.truncs = append(j.truncs, keep)
	return nil
}

func (j *fakeJournal) EndSession(_ context.Context, id string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ended = append(j.ended, id)
	return nil
}

func TestSubmitTurnScenario(t *testing.T) {
	mock := llm.NewMockProvider(
		questionJSON("Q1"), evalJSON(85),
		questionJSON("Q2"), evalJSON(40, "Merge sort"),
		questionJSON("Q3"), evalJSON(65),
		questionJSON("Q4"),
	)
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()

	id, s, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	assert.Equal(t, model.DifficultyMedium, s.Difficulty)

	first, err := o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Question)
	assert.Nil(t, first.Evaluation)
	assert.Equal(t, "Q1", first.Question.Text)
	assert.Equal(t, model.DifficultyMedium, first.Question.Difficulty)
	assert.Equal(t, 0, first.Question.GeneratedAt)

	steps := []struct {
		wantScore int
		wantDiff  model.Difficulty
		wantNext  string
	}{
		{85, model.DifficultyHard, "Q2"},
		{40, model.DifficultyMedium, "Q3"},
		{65, model.DifficultyMedium, "Q4"},
	}
	for i, st := range steps {
		res, err := o.SubmitTurn(ctx, id, ptr("my answer"))
		require.NoError(t, err, "step %d", i)
		require.NotNil(t, res.Evaluation)
		assert.Equal(t, st.wantScore, res.Evaluation.Score)
		assert.Equal(t, i, res.Evaluation.QuestionRef)
		assert.Equal(t, st.wantDiff, res.State.Difficulty)
		assert.Equal(t, st.wantNext, res.Question.Text)
		assert.Equal(t, st.wantDiff, res.Question.Difficulty)
		assert.Equal(t, i+1, res.State.TurnCount)
	}

	snap, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []int{85, 40, 65}, snap.State.Scores)
	assert.Equal(t, []string{"Merge sort"}, snap.State.KnowledgeGaps)
	assert.Equal(t, len(snap.State.Scores), snap.State.TurnCount)
	assert.Equal(t, 7, mock.CallCount())
}

func TestSubmitTurnNilIsIdempotent(t *testing.T) {
	mock := llm.NewMockProvider(questionJSON("Q1"))
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)

	a, err := o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)
	b, err := o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Question, b.Question)
	assert.Equal(t, 1, mock.CallCount())
}

func TestSubmitTurnOracleTimeout(t *testing.T) {
	p := &funcProvider{fn: func(ctx context.Context, n int, _ llm.Request) (*llm.Response, error) {
		if n == 1 {
			return &llm.Response{Content: questionJSON("Q1").Content}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	retried := llm.WithRetry(p, llm.RetryConfig{
		MaxAttempts:    2,
		InitialWait:    time.Millisecond,
		MaxWait:        time.Millisecond,
		Multiplier:     1,
		AttemptTimeout: 20 * time.Millisecond,
	})
	o := newTestOrchestrator(t, retried, nil)
	ctx := context.Background()

	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)

	_, err = o.SubmitTurn(ctx, id, ptr("answer"))
	require.ErrorIs(t, err, model.ErrOracleUnavailable)
	assert.True(t, model.Retryable(err))
	assert.Equal(t, int32(3), p.calls.Load(), "one question call plus an evaluation and its single retry")

	snap, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.State.TurnCount)
	assert.Empty(t, snap.State.Scores)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "Q1", snap.Pending.Text)
}

func TestSubmitTurnOrchestratorDeadline(t *testing.T) {
	p := &funcProvider{fn: func(ctx context.Context, _ int, _ llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := New(oracle.NewLLM(p, prompts.PromptStandard), nil, Config{OracleTimeout: 20 * time.Millisecond})
	id, _, err := o.Start(context.Background(), testStart())
	require.NoError(t, err)

	_, err = o.SubmitTurn(context.Background(), id, nil)
	require.ErrorIs(t, err, model.ErrOracleUnavailable)
}

func TestSubmitTurnNoPartialUpdate(t *testing.T) {
	mock := llm.NewMockProvider(
		questionJSON("Q1"),
		evalJSON(90),
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{}},
		evalJSON(90),
		questionJSON("Q2"),
	)
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)

	_, err = o.SubmitTurn(ctx, id, ptr("answer"))
	require.ErrorIs(t, err, model.ErrOracleUnavailable)

	snap, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.State.TurnCount)
	assert.Equal(t, model.DifficultyMedium, snap.State.Difficulty)
	assert.Equal(t, "Q1", snap.Pending.Text)
	assert.False(t, snap.CanUndo)

	res, err := o.SubmitTurn(ctx, id, ptr("answer"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.TurnCount)
	assert.Equal(t, model.DifficultyHard, res.State.Difficulty)
	assert.Equal(t, "Q2", res.Question.Text)
}

func TestSubmitTurnScorePolicy(t *testing.T) {
	tests := []struct {
		name        string
		evals       []llm.MockResponse
		wantScore   int
		wantClamped bool
	}{
		{"retry fixes score", []llm.MockResponse{evalJSON(-5), evalJSON(70)}, 70, false},
		{"clamped high", []llm.MockResponse{evalJSON(150), evalJSON(150)}, 100, true},
		{"clamped low", []llm.MockResponse{evalJSON(-5), evalJSON("-20%")}, 0, true},
		{"string score", []llm.MockResponse{evalJSON("88%")}, 88, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(questionJSON("Q1"))
			for _, e := range tt.evals {
				mock.AddResponse(e)
			}
			mock.AddResponse(questionJSON("Q2"))
			o := newTestOrchestrator(t, mock, nil)
			ctx := context.Background()
			id, _, err := o.Start(ctx, testStart())
			require.NoError(t, err)
			_, err = o.SubmitTurn(ctx, id, nil)
			require.NoError(t, err)

			res, err := o.SubmitTurn(ctx, id, ptr("answer"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, res.Evaluation.Score)
			assert.Equal(t, tt.wantClamped, res.Evaluation.ScoreClamped)
			for _, s := range res.State.Scores {
				assert.True(t, s >= 0 && s <= 100, "stored score %d out of range", s)
			}
		})
	}
}

func TestSubmitTurnMalformedEvaluation(t *testing.T) {
	mock := llm.NewMockProvider(questionJSON("Q1"), evalJSON("excellent"))
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)

	_, err = o.SubmitTurn(ctx, id, ptr("answer"))
	require.ErrorIs(t, err, model.ErrOracleMalformedResponse)
	assert.True(t, model.Retryable(err))
}

func TestSubmitTurnInputErrors(t *testing.T) {
	mock := llm.NewMockProvider(questionJSON("Q1"))
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)

	_, err = o.SubmitTurn(ctx, id, ptr("too early"))
	require.ErrorIs(t, err, ErrNoPendingQuestion)

	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, ptr("  \n"))
	var ive *model.InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, 1, mock.CallCount())
}

func TestStartValidation(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockProvider(), nil)
	req := testStart()
	req.Topic = " "
	_, _, err := o.Start(context.Background(), req)
	require.Error(t, err)

	req = testStart()
	req.InitialDifficulty = "expert"
	_, _, err = o.Start(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, o.Len())
}

func TestSessionNotFound(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockProvider(), nil)
	ctx := context.Background()

	_, err := o.Get("missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = o.SubmitTurn(ctx, "missing", nil)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = o.Undo(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = o.Redo(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.ErrorIs(t, o.End(ctx, "missing"), model.ErrSessionNotFound)
}

func TestUndoRedo(t *testing.T) {
	mock := llm.NewMockProvider(
		questionJSON("Q1"), evalJSON(85),
		questionJSON("Q2"), evalJSON(30),
		questionJSON("Q3"),
		evalJSON(60), questionJSON("Q2b"),
	)
	journal := &fakeJournal{}
	o := newTestOrchestrator(t, mock, journal)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)

	_, err = o.Undo(ctx, id)
	require.ErrorIs(t, err, ErrNothingToUndo)

	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, ptr("a1"))
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, ptr("a2"))
	require.NoError(t, err)

	snap, err := o.Undo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.State.TurnCount)
	assert.Equal(t, []int{85}, snap.State.Scores)
	assert.Equal(t, model.DifficultyHard, snap.State.Difficulty)
	assert.Equal(t, "Q2", snap.Pending.Text)
	assert.True(t, snap.CanUndo)
	assert.True(t, snap.CanRedo)

	snap, err = o.Redo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{85, 30}, snap.State.Scores)
	assert.Equal(t, "Q3", snap.Pending.Text)
	_, err = o.Redo(ctx, id)
	require.ErrorIs(t, err, ErrNothingToRedo)

	_, err = o.Undo(ctx, id)
	require.NoError(t, err)
	res, err := o.SubmitTurn(ctx, id, ptr("a2 again"))
	require.NoError(t, err)
	assert.Equal(t, []int{85, 60}, res.State.Scores)
	assert.Equal(t, "Q2b", res.Question.Text)

	snap, err = o.Get(id)
	require.NoError(t, err)
	assert.False(t, snap.CanRedo, "a new answer discards the redo branch")

	assert.Equal(t, []int{0, 1, 1, 1}, journal.turns)
	assert.Equal(t, []int{1, 1}, journal.truncs)
}

func TestConcurrentSessions(t *testing.T) {
	o := newTestOrchestrator(t, oracle.NewDemoProvider(), nil)
	ctx := context.Background()

	const sessions, turns = 8, 4
	ids := make([]string, sessions)
	for i := range ids {
		id, _, err := o.Start(ctx, testStart())
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions*turns)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := o.SubmitTurn(ctx, id, nil); err != nil {
				errs <- err
				return
			}
			for range turns {
				if _, err := o.SubmitTurn(ctx, id, ptr("a short answer")); err != nil {
					errs <- err
				}
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range ids {
		snap, err := o.Get(id)
		require.NoError(t, err)
		assert.Equal(t, turns, snap.State.TurnCount)
		assert.Len(t, snap.State.Scores, turns)
	}
}

func TestConcurrentSubmitsSameSession(t *testing.T) {
	o := newTestOrchestrator(t, oracle.NewDemoProvider(), nil)
	ctx := context.Background()
	id, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	_, err = o.SubmitTurn(ctx, id, nil)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.SubmitTurn(ctx, id, ptr("one two three"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := o.Get(id)
	require.NoError(t, err)
	assert.Equal(t, n, snap.State.TurnCount)
	for i, turn := range snap.State.Turns {
		assert.Equal(t, i, turn.Question.GeneratedAt)
		assert.Equal(t, i, turn.Answer.QuestionRef)
	}
}

func TestEndAndSweep(t *testing.T) {
	journal := &fakeJournal{}
	o := newTestOrchestrator(t, llm.NewMockProvider(), journal)
	ctx := context.Background()

	a, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	b, _, err := o.Start(ctx, testStart())
	require.NoError(t, err)
	assert.Equal(t, 2, o.Len())

	require.NoError(t, o.End(ctx, a))
	assert.Equal(t, 1, o.Len())

	assert.Equal(t, 0, o.Sweep(ctx, time.Now()))
	assert.Equal(t, 1, o.Sweep(ctx, time.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, o.Len())

	_, err = o.Get(b)
	assert.True(t, errors.Is(err, model.ErrSessionNotFound))
	assert.ElementsMatch(t, []string{a, b}, journal.ended)
	assert.ElementsMatch(t, []string{a, b}, journal.sessions)
}
