// Package tutor runs tutoring sessions: it owns the registry of live
// sessions and drives each turn through the Oracle and the session rules.
//
// Every session is processed sequentially under its own mutex; different
// sessions never block each other. A turn is committed only when the answer
// has been graded and the next question generated, so a failed turn leaves
// the session exactly as it was.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/oracle"
	"github.com/pavelanni/tutor/internal/session"
)

var (
	// ErrNoPendingQuestion is returned when an answer arrives before any question.
	ErrNoPendingQuestion = errors.New("no question is waiting for an answer")
	// ErrNothingToUndo is returned by Undo on a session with no answered turns.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned by Redo when no undone turn is left.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Journal receives committed sessions and turns. *store.Store implements it.
type Journal interface {
	RecordSession(ctx context.Context, id string, s session.State, startedAt time.Time) error
	RecordTurn(ctx context.Context, id string, index int, t model.Turn, difficultyAfter model.Difficulty, at time.Time) error
	TruncateTurns(ctx context.Context, id string, keep int) error
	EndSession(ctx context.Context, id string, at time.Time) error
}

// DefaultOracleTimeout covers two 30 second attempts plus backoff.
const DefaultOracleTimeout = 75 * time.Second

// Config tunes the orchestrator.
type Config struct {
	// OracleTimeout bounds one Oracle call, retries included.
	OracleTimeout time.Duration
	// SessionTTL is how long an untouched session survives.
	SessionTTL time.Duration
	// HistoryWindow is how many recent turns the question prompt sees.
	HistoryWindow int
}

// StartRequest holds what the student chose on the start form.
type StartRequest struct {
	Department        string
	Topic             string
	Level             model.EducationLevel
	InitialDifficulty model.Difficulty
	Background        string
	Instructions      string
}

// TurnResult is what one SubmitTurn produced. Evaluation is nil on the
// first call of a session.
type TurnResult struct {
	Question   *model.Question
	Evaluation *model.Answer
	State      session.State
}

// Snapshot is a read-only view of one session. State must not be modified.
type Snapshot struct {
	ID        string
	State     session.State
	Pending   *model.Question
	StartedAt time.Time
	CanUndo   bool
	CanRedo   bool
}

// version is one committed state plus the question generated after it.
type version struct {
	state   session.State
	pending *model.Question
}

type entry struct {
	mu        sync.Mutex
	versions  []version
	cur       int
	startedAt time.Time
	lastSeen  time.Time
}

func (e *entry) current() *version { return &e.versions[e.cur] }

func (e *entry) snapshot(id string) Snapshot {
	v := e.current()
	return Snapshot{
		ID:        id,
		State:     v.state,
		Pending:   v.pending,
		StartedAt: e.startedAt,
		CanUndo:   e.cur > 0,
		CanRedo:   e.cur < len(e.versions)-1,
	}
}

// Orchestrator owns all live sessions.
type Orchestrator struct {
	oracle  oracle.Oracle
	journal Journal
	cfg     Config

	mu       sync.RWMutex
	sessions map[string]*entry

	now func() time.Time
}

// New creates an Orchestrator. journal may be nil.
func New(o oracle.Oracle, journal Journal, cfg Config) *Orchestrator {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultOracleTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	return &Orchestrator{
		oracle:   o,
		journal:  journal,
		cfg:      cfg,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Start creates a session and returns its ID. No question is generated yet;
// the first SubmitTurn with a nil answer does that.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (string, session.State, error) {
	s, err := session.New(req.Department, req.Topic, req.Level, req.InitialDifficulty)
	if err != nil {
		return "", session.State{}, err
	}
	s = s.WithNotes(req.Background, req.Instructions)

	id := uuid.NewString()
	now := o.now()
	e := &entry{
		versions:  []version{{state: s}},
		startedAt: now,
		lastSeen:  now,
	}

	o.mu.Lock()
	o.sessions[id] = e
	o.mu.Unlock()

	slog.Info("session started", "session", id, "department", s.Department,
		"topic", s.Topic, "level", s.Level, "difficulty", s.Difficulty)
	if o.journal != nil {
		if err := o.journal.RecordSession(ctx, id, s, now); err != nil {
			slog.Error("failed to record session", "session", id, "error", err)
		}
	}
	return id, s, nil
}

func (o *Orchestrator) lookup(id string) (*entry, error) {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of the session.
func (o *Orchestrator) Get(id string) (Snapshot, error) {
	e, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(id), nil
}

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// SubmitTurn advances the session by one step.
//
// With a nil answer it returns the question waiting for an answer,
// generating it first if there is none. With an answer it grades the
// pending question, applies the score and generates the next question. Any
// error leaves the session unchanged and the same answer may be resubmitted.
func (o *Orchestrator) SubmitTurn(ctx context.Context, id string, answer *string) (TurnResult, error) {
	e, err := o.lookup(id)
	if err != nil {
		return TurnResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = o.now()

	ctx = llm.WithSessionID(ctx, id)
	v := e.current()

	if answer == nil {
		if v.pending == nil {
			q, err := o.nextQuestion(ctx, v.state)
			if err != nil {
				return TurnResult{}, err
			}
			v.pending = &q
		}
		return TurnResult{Question: v.pending, State: v.state}, nil
	}

	if v.pending == nil {
		return TurnResult{}, ErrNoPendingQuestion
	}
	if strings.TrimSpace(*answer) == "" {
		return TurnResult{}, &model.InvalidValueError{Field: "answer", Value: *answer}
	}

	q := *v.pending
	a, err := o.evaluate(ctx, v.state, q, *answer)
	if err != nil {
		return TurnResult{}, err
	}

	next, err := session.RecordTurn(v.state, q, a)
	if err != nil {
		return TurnResult{}, err
	}

	nq, err := o.nextQuestion(ctx, next)
	if err != nil {
		return TurnResult{}, err
	}

	// Commit. Answering after an undo discards the redo branch.
	e.versions = append(e.versions[:e.cur+1], version{state: next, pending: &nq})
	e.cur++

	slog.Info("turn completed", "session", id, "turn", next.TurnCount, "score", a.Score,
		"clamped", a.ScoreClamped, "difficulty", next.Difficulty)
	if o.journal != nil {
		turn := next.Turns[len(next.Turns)-1]
		if err := o.journal.RecordTurn(ctx, id, q.GeneratedAt, turn, next.Difficulty, o.now()); err != nil {
			slog.Error("failed to record turn", "session", id, "error", err)
		}
	}

	return TurnResult{Question: &nq, Evaluation: &a, State: next}, nil
}

// evaluate grades one answer. An out-of-range score is asked for once more;
// if the second grading is out of range too it is clamped and flagged.
func (o *Orchestrator) evaluate(ctx context.Context, s session.State, q model.Question, answer string) (model.Answer, error) {
	req := prompts.BuildEvaluationRequest(q, answer, s)

	policy := oracle.PolicyReject
	for {
		raw, err := o.callEvaluate(ctx, req)
		if err != nil {
			return model.Answer{}, err
		}
		a, err := oracle.ParseEvaluation(raw, q, answer, policy)
		if errors.Is(err, model.ErrInvalidScore) && policy == oracle.PolicyReject {
			slog.Warn("oracle score out of range, asking again", "error", err)
			policy = oracle.PolicyClamp
			continue
		}
		if err != nil {
			return model.Answer{}, err
		}
		if a.ScoreClamped {
			slog.Warn("oracle score clamped", "score", a.Score)
		}
		return a, nil
	}
}

func (o *Orchestrator) callEvaluate(ctx context.Context, req prompts.EvaluationRequest) (oracle.RawEvaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.OracleTimeout)
	defer cancel()
	raw, err := o.oracle.EvaluateAnswer(ctx, req)
	if err != nil {
		return oracle.RawEvaluation{}, oracleError(ctx, err)
	}
	return raw, nil
}

func (o *Orchestrator) nextQuestion(ctx context.Context, s session.State) (model.Question, error) {
	req := prompts.BuildQuestionRequest(s, prompts.Options{HistoryWindow: o.cfg.HistoryWindow})

	cctx, cancel := context.WithTimeout(ctx, o.cfg.OracleTimeout)
	defer cancel()
	raw, err := o.oracle.GenerateQuestion(cctx, req)
	if err != nil {
		return model.Question{}, oracleError(cctx, err)
	}
	return oracle.ParseQuestion(raw, s.Difficulty, s.Topic, s.TurnCount)
}

// oracleError makes sure deadline and cancellation surface as
// ErrOracleUnavailable whatever the Oracle implementation returned.
func oracleError(ctx context.Context, err error) error {
	if errors.Is(err, model.ErrOracleUnavailable) || errors.Is(err, model.ErrOracleMalformedResponse) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", model.ErrOracleUnavailable, err)
	}
	return err
}

// Undo steps back one answered turn. The undone turn's question becomes the
// pending question again.
func (o *Orchestrator) Undo(ctx context.Context, id string) (Snapshot, error) {
	e, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = o.now()

	if e.cur == 0 {
		return Snapshot{}, ErrNothingToUndo
	}
	e.cur--
	if o.journal != nil {
		if err := o.journal.TruncateTurns(ctx, id, e.current().state.TurnCount); err != nil {
			slog.Error("failed to truncate turns", "session", id, "error", err)
		}
	}
	slog.Info("turn undone", "session", id, "turn_count", e.current().state.TurnCount)
	return e.snapshot(id), nil
}

// Redo re-applies the most recently undone turn.
func (o *Orchestrator) Redo(ctx context.Context, id string) (Snapshot, error) {
	e, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = o.now()

	if e.cur >= len(e.versions)-1 {
		return Snapshot{}, ErrNothingToRedo
	}
	e.cur++
	s := e.current().state
	if o.journal != nil {
		turn := s.Turns[len(s.Turns)-1]
		if err := o.journal.RecordTurn(ctx, id, turn.Question.GeneratedAt, turn, s.Difficulty, o.now()); err != nil {
			slog.Error("failed to record turn", "session", id, "error", err)
		}
	}
	slog.Info("turn redone", "session", id, "turn_count", s.TurnCount)
	return e.snapshot(id), nil
}

// End removes the session.
func (o *Orchestrator) End(ctx context.Context, id string) error {
	o.mu.Lock()
	_, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}

	slog.Info("session ended", "session", id)
	if o.journal != nil {
		if err := o.journal.EndSession(ctx, id, o.now()); err != nil {
			slog.Error("failed to record session end", "session", id, "error", err)
		}
	}
	return nil
}

// Sweep evicts sessions idle for longer than the TTL as of now and returns
// how many were removed. Sessions busy with a turn are skipped.
func (o *Orchestrator) Sweep(ctx context.Context, now time.Time) int {
	var expired []string
	o.mu.Lock()
	for id, e := range o.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastSeen) > o.cfg.SessionTTL {
			expired = append(expired, id)
			delete(o.sessions, id)
		}
		e.mu.Unlock()
	}
	o.mu.Unlock()

	for _, id := range expired {
		if o.journal != nil {
			if err := o.journal.EndSession(ctx, id, now); err != nil {
				slog.Error("failed to record session end", "session", id, "error", err)
			}
		}
	}
	if len(expired) > 0 {
		slog.Info("evicted idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context) {
	interval := max(o.cfg.SessionTTL/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			o.Sweep(ctx, t)
		}
	}
}

