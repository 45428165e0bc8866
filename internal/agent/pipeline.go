// internal/agent/pipeline.go
package agent

import (
	"context"
	"fmt"

	"research-agent/internal/llm"
	"research-agent/internal/stages/execution"
	"research-agent/internal/stages/planning"
	"research-agent/internal/stages/synthesis"
)

// runPipeline executes a fixed plan-execute-synthesize sequence. Each
// stage runs exactly once, with no reflection and no plan revision.
func (a *Agent) runPipeline(ctx context.Context, query string) (*Result, error) {
	history := []Turn{{Role: llm.RoleUser, Content: query}}

	var plan *planning.Output
	err := a.withStageRetry(ctx, planning.StageName, func() error {
		var stageErr error
		plan, stageErr = a.planner.Execute(ctx, &planning.Input{
			Query:         query,
			SchemaContext: a.schemaContext,
		})
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	history = append(history, Turn{Role: llm.RoleAssistant, Content: plan.Plan})

	var findings *execution.Output
	err = a.withStageRetry(ctx, execution.StageName, func() error {
		var stageErr error
		findings, stageErr = a.executor.Execute(ctx, &execution.Input{
			Plan:          plan.Plan,
			SchemaContext: a.schemaContext,
		})
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	history = append(history, Turn{Role: llm.RoleUser, Content: fmt.Sprintf("Results: %s", findings.Summary)})

	var final *synthesis.Output
	err = a.withStageRetry(ctx, synthesis.StageName, func() error {
		var stageErr error
		final, stageErr = a.synthesizer.Execute(ctx, &synthesis.Input{
			Query:   query,
			History: renderHistory(history),
		})
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	history = append(history, Turn{Role: llm.RoleAssistant, Content: final.Response})

	return &Result{
		Response:   final.Response,
		Iterations: 1,
		History:    history,
	}, nil
}
