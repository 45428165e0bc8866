// internal/stages/planning/handler.go
package planning

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

const StageName = "planning"

// Handler decomposes a business question into a structured analytical plan
// and revises that plan as knowledge gaps surface.
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

// Execute generates the initial query decomposition.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	prompt := h.buildPlanPrompt(input)

	reply, err := h.llm.Complete(ctx, StageName, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodePlanningFailed)).Inc()
		return nil, errors.NewPlanningFailedError(err)
	}

	if strings.TrimSpace(reply) == "" {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodePlanningFailed)).Inc()
		return nil, errors.NewPlanningFailedError(fmt.Errorf("empty plan"))
	}

	h.logger.Info("plan generated", map[string]interface{}{
		"planLength": len(reply),
	})

	return &Output{Plan: reply}, nil
}

// IdentifyGaps asks which information gaps and unruled-out hypotheses remain.
func (h *Handler) IdentifyGaps(ctx context.Context, input *GapInput) (*GapOutput, error) {
	prompt := fmt.Sprintf(`Given this query: %s

And current conversation history:
%s

What information gaps remain?
What alternative hypotheses haven't been ruled out?
What causal mechanisms need further investigation?`, input.Query, input.History)

	reply, err := h.llm.Complete(ctx, StageName, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodePlanningFailed)).Inc()
		return nil, errors.NewPlanningFailedError(err)
	}

	return &GapOutput{Gaps: reply}, nil
}

// UpdatePlan revises the current plan to address the identified gaps.
func (h *Handler) UpdatePlan(ctx context.Context, input *UpdateInput) (*Output, error) {
	prompt := fmt.Sprintf(`Current plan: %s

Identified gaps: %s

Update the analytical plan to address these gaps.`, input.CurrentPlan, input.Gaps)

	reply, err := h.llm.Complete(ctx, StageName, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodePlanningFailed)).Inc()
		return nil, errors.NewPlanningFailedError(err)
	}

	if strings.TrimSpace(reply) == "" {
		// Keep the old plan rather than losing the thread mid-run
		h.logger.Warn("plan update returned empty, keeping current plan", nil)
		return &Output{Plan: input.CurrentPlan}, nil
	}

	return &Output{Plan: reply}, nil
}

func (h *Handler) buildPlanPrompt(input *Input) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Given this business question: %s", input.Query))

	if input.SchemaContext != "" {
		parts = append(parts, "\nAvailable data:")
		parts = append(parts, input.SchemaContext)
	}

	parts = append(parts, "\nDecompose it into key analytical components:")
	parts = append(parts, "1. What data sources are needed?")
	parts = append(parts, "2. What patterns should be examined?")
	parts = append(parts, "3. What metrics should be calculated?")
	parts = append(parts, "4. What causal relationships might exist?")
	parts = append(parts, "\nProvide a structured plan.")

	return strings.Join(parts, "\n")
}
