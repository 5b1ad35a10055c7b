package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

// RecordSession stores the opening state of a session.
func (s *Store) RecordSession(ctx context.Context, id string, st session.State, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tutor_sessions (id, department, topic, level, initial_difficulty, background, instructions, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, st.Department, st.Topic, st.Level, st.InitialDifficulty, st.Background, st.Instructions, startedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// RecordTurn stores one committed turn. Recording the same index again
// replaces it, which is what a redo after an undo does.
func (s *Store) RecordTurn(ctx context.Context, id string, index int, t model.Turn, difficultyAfter model.Difficulty, at time.Time) error {
	q, err := json.Marshal(t.Question)
	if err != nil {
		return fmt.Errorf("marshal question: %w", err)
	}
	a, err := json.Marshal(t.Answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tutor_turns (session_id, idx, question, answer, score, difficulty_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, idx) DO UPDATE SET
		   question = excluded.question, answer = excluded.answer, score = excluded.score,
		   difficulty_after = excluded.difficulty_after, created_at = excluded.created_at`,
		id, index, string(q), string(a), t.Answer.Score, difficultyAfter, at,
	)
	if err != nil {
		return fmt.Errorf("insert turn %d of %s: %w", index, id, err)
	}
	return nil
}

// TruncateTurns keeps the first keep turns of a session and drops the rest.
func (s *Store) TruncateTurns(ctx context.Context, id string, keep int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tutor_turns WHERE session_id = ? AND idx >= ?`, id, keep)
	return err
}

// EndSession marks a session as finished.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tutor_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`, at, id)
	return err
}

// ListSessions returns all recorded sessions, newest first, without turns.
func (s *Store) ListSessions(ctx context.Context) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.department, s.topic, s.level, s.initial_difficulty, s.started_at, s.ended_at,
		        COUNT(t.idx), COALESCE(AVG(t.score), 0)
		 FROM tutor_sessions s LEFT JOIN tutor_turns t ON t.session_id = s.id
		 GROUP BY s.id
		 ORDER BY s.started_at DESC, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		var (
			r     model.SessionRecord
			ended sql.NullTime
			turns int
		)
		if err := rows.Scan(&r.ID, &r.Department, &r.Topic, &r.Level, &r.InitialDifficulty,
			&r.StartedAt, &ended, &turns, &r.AverageScore); err != nil {
			return nil, err
		}
		if ended.Valid {
			r.EndedAt = &ended.Time
		}
		r.TurnCount = turns
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession returns one recorded session with its turns, or nil if unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	var (
		r     model.SessionRecord
		ended sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, department, topic, level, initial_difficulty, started_at, ended_at
		 FROM tutor_sessions WHERE id = ?`, id,
	).Scan(&r.ID, &r.Department, &r.Topic, &r.Level, &r.InitialDifficulty, &r.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		r.EndedAt = &ended.Time
	}

	r.Turns, err = s.turns(ctx, id)
	if err != nil {
		return nil, err
	}
	r.TurnCount = len(r.Turns)
	r.AverageScore = session.Average(turnScores(r.Turns))
	return &r, nil
}

func (s *Store) turns(ctx context.Context, id string) ([]model.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, question, answer, difficulty_after, created_at
		 FROM tutor_turns WHERE session_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []model.TurnRecord{}
	for rows.Next() {
		var (
			t    model.TurnRecord
			q, a string
		)
		if err := rows.Scan(&t.Index, &q, &a, &t.DifficultyAfter, &t.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(q), &t.Question); err != nil {
			return nil, fmt.Errorf("decode question %d of %s: %w", t.Index, id, err)
		}
		if err := json.Unmarshal([]byte(a), &t.Answer); err != nil {
			return nil, fmt.Errorf("decode answer %d of %s: %w", t.Index, id, err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func turnScores(turns []model.TurnRecord) []int {
	scores := make([]int, len(turns))
	for i, t := range turns {
		scores[i] = t.Answer.Score
	}
	return scores
}
