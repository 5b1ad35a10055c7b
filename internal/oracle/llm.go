package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
)

const (
	questionMaxTokens   = 1024
	evaluationMaxTokens = 1024
)

// LLMOracle implements Oracle on top of an llm.Provider.
type LLMOracle struct {
	provider llm.Provider
	variant  prompts.PromptVariant
}

// NewLLM creates an Oracle that grades with the given prompt variant.
// An invalid variant falls back to standard.
func NewLLM(provider llm.Provider, variant prompts.PromptVariant) *LLMOracle {
	if !prompts.IsValidVariant(string(variant)) {
		variant = prompts.PromptStandard
	}
	return &LLMOracle{provider: provider, variant: variant}
}

// Variant returns the grading variant in use.
func (o *LLMOracle) Variant() prompts.PromptVariant { return o.variant }

func (o *LLMOracle) GenerateQuestion(ctx context.Context, req prompts.QuestionRequest) (GeneratedQuestion, error) {
	system, err := prompts.RenderQuestionPrompt(req)
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("render question prompt: %w", err)
	}

	resp, err := o.provider.Generate(llm.WithPurpose(ctx, "question"), llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Write the next question as JSON."},
		},
		Schema:      QuestionSchema,
		MaxTokens:   questionMaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return GeneratedQuestion{}, mapError("generate question", err)
	}
	return DecodeQuestion(resp.Content)
}

func (o *LLMOracle) EvaluateAnswer(ctx context.Context, req prompts.EvaluationRequest) (RawEvaluation, error) {
	system, err := prompts.RenderEvaluationPrompt(o.variant, req)
	if err != nil {
		return RawEvaluation{}, fmt.Errorf("render evaluation prompt: %w", err)
	}

	resp, err := o.provider.Generate(llm.WithPurpose(ctx, "evaluation"), llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Grade the answer as JSON."},
		},
		Schema:      EvaluationSchema,
		MaxTokens:   evaluationMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return RawEvaluation{}, mapError("evaluate answer", err)
	}
	return DecodeEvaluation(resp.Content)
}

// mapError translates provider errors into the Oracle error taxonomy.
func mapError(op string, err error) error {
	var invalid *llm.ErrInvalidResponse
	var truncated *llm.ErrMaxTokensExceeded
	if errors.As(err, &invalid) || errors.As(err, &truncated) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrOracleMalformedResponse, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrOracleUnavailable, err)
}
