// internal/stages/synthesis/handler.go
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
	"research-agent/internal/llm"
)

const StageName = "synthesis"

const emptyResponseFallback = "The investigation did not produce enough evidence to answer the question."

// Handler integrates the full investigation into a final narrative with
// actionable recommendations.
type Handler struct {
	llm    llm.Completer
	logger logger.Logger
}

func NewHandler(completer llm.Completer, log logger.Logger) *Handler {
	return &Handler{
		llm: completer,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	reply, err := h.llm.Complete(ctx, StageName, []llm.Message{
		{Role: llm.RoleUser, Content: h.buildPrompt(input)},
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodeSynthesisFailed)).Inc()
		return nil, errors.NewSynthesisFailedError(err)
	}

	if strings.TrimSpace(reply) == "" {
		reply = emptyResponseFallback
	}

	h.logger.Info("synthesis completed", map[string]interface{}{
		"responseLength": len(reply),
	})

	return &Output{Response: reply}, nil
}

func (h *Handler) buildPrompt(input *Input) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Query: %s", input.Query))
	parts = append(parts, fmt.Sprintf("\nInvestigation record:\n%s", input.History))
	parts = append(parts, "\nBased on this complete investigation, provide:")
	parts = append(parts, "1. Root cause analysis")
	parts = append(parts, "2. Supporting evidence")
	parts = append(parts, "3. Causal mechanisms")
	parts = append(parts, "4. Actionable recommendations")
	parts = append(parts, "\nSynthesize into a coherent narrative.")

	return strings.Join(parts, "\n")
}
