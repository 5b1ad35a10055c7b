package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/tutor/internal/store"
)

// Recorder persists one row per LLM call. *store.Store implements it.
type Recorder interface {
	AppendLLMRequest(ctx context.Context, rec store.LLMRequest) error
}

// LoggingProvider is a decorator that logs every LLM call and, when a
// Recorder is set, stores it.
type LoggingProvider struct {
	inner    Provider
	recorder Recorder
	debug    bool
}

// WithLogging wraps a Provider with request logging. recorder may be nil.
func WithLogging(p Provider, recorder Recorder, debug bool) Provider {
	return &LoggingProvider{inner: p, recorder: recorder, debug: debug}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	if l.debug {
		slog.Debug("LLM request", "purpose", purpose, "body", serializeRequest(req))
	}

	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start)

	rec := store.LLMRequest{
		SessionID:   SessionIDFrom(ctx),
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		rec.InputTokens = resp.Usage.InputTokens
		rec.OutputTokens = resp.Usage.OutputTokens
		rec.Model = resp.Model
		rec.ResponseBody = string(resp.Content)
	}

	if err != nil {
		rec.ErrorMessage = err.Error()
		slog.Warn("LLM call failed", "purpose", purpose, "model", rec.Model, "latency", latency, "error", err)
	} else {
		slog.Info("LLM call", "purpose", purpose, "model", rec.Model, "latency", latency,
			"input_tokens", rec.InputTokens, "output_tokens", rec.OutputTokens)
		if l.debug {
			slog.Debug("LLM response", "purpose", purpose, "body", rec.ResponseBody)
		}
	}

	if l.recorder != nil {
		if logErr := l.recorder.AppendLLMRequest(ctx, rec); logErr != nil {
			slog.Warn("failed to record LLM request", "error", logErr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// Ping delegates to the wrapped provider when it supports it.
func (l *LoggingProvider) Ping(ctx context.Context) error {
	if p, ok := l.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n", req.Schema.Name)
			b.Write(def)
			b.WriteString("\n")
		}
	}

	return b.String()
}
