package store

import (
	"context"
	"time"
)

// LLMRequest is one logged call to the language model.
type LLMRequest struct {
	ID           int64
	SessionID    string
	Model        string
	Purpose      string
	LatencyMs    int64
	Success      bool
	InputTokens  int
	OutputTokens int
	RequestBody  string
	ResponseBody string
	ErrorMessage string
	CreatedAt    time.Time
}

// AppendLLMRequest stores one LLM call.
func (s *Store) AppendLLMRequest(ctx context.Context, r LLMRequest) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_requests (session_id, model, purpose, latency_ms, success, input_tokens,
		   output_tokens, request_body, response_body, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Model, r.Purpose, r.LatencyMs, r.Success, r.InputTokens,
		r.OutputTokens, r.RequestBody, r.ResponseBody, r.ErrorMessage, r.CreatedAt,
	)
	return err
}

// ListLLMRequests returns the calls made for a session in order.
func (s *Store) ListLLMRequests(ctx context.Context, sessionID string) ([]LLMRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, model, purpose, latency_ms, success, input_tokens, output_tokens,
		        request_body, response_body, error_message, created_at
		 FROM llm_requests WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LLMRequest
	for rows.Next() {
		var r LLMRequest
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Model, &r.Purpose, &r.LatencyMs, &r.Success,
			&r.InputTokens, &r.OutputTokens, &r.RequestBody, &r.ResponseBody, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
