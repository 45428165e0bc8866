// internal/agent/deepresearch.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"research-agent/internal/llm"
	"research-agent/internal/stages/execution"
	"research-agent/internal/stages/planning"
	"research-agent/internal/stages/reflection"
	"research-agent/internal/stages/synthesis"
)

// runDeepResearch is the adaptive loop: plan, gather evidence, reflect
// on completeness, revise the plan, and repeat until the completeness
// threshold is met or the iteration budget runs out.
func (a *Agent) runDeepResearch(ctx context.Context, query string) (*Result, error) {
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

	currentPlan := plan.Plan
	iteration := 0
	completeness := 0.0

	for iteration < a.config.MaxIterations && completeness < a.config.CompletenessThreshold {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var findings *execution.Output
		err := a.withStageRetry(ctx, execution.StageName, func() error {
			var stageErr error
			findings, stageErr = a.executor.Execute(ctx, &execution.Input{
				Plan:          currentPlan,
				SchemaContext: a.schemaContext,
			})
			return stageErr
		})
		if err != nil {
			return nil, err
		}

		var assessment *reflection.Output
		err = a.withStageRetry(ctx, reflection.StageName, func() error {
			var stageErr error
			assessment, stageErr = a.reflector.Execute(ctx, &reflection.Input{
				Query:    query,
				Findings: findings.Summary,
			})
			return stageErr
		})
		if err != nil {
			return nil, err
		}
		completeness = assessment.Score

		history = append(history,
			Turn{Role: llm.RoleUser, Content: fmt.Sprintf("Results: %s", findings.Summary)},
			Turn{Role: llm.RoleAssistant, Content: assessment.Analysis},
		)

		a.logger.Info("iteration finished", map[string]interface{}{
			"iteration":    iteration,
			"completeness": completeness,
		})

		if completeness < a.config.CompletenessThreshold {
			gaps, err := a.resolveGaps(ctx, query, history, assessment)
			if err != nil {
				return nil, err
			}

			var updated *planning.Output
			err = a.withStageRetry(ctx, planning.StageName, func() error {
				var stageErr error
				updated, stageErr = a.planner.UpdatePlan(ctx, &planning.UpdateInput{
					CurrentPlan: currentPlan,
					Gaps:        gaps,
				})
				return stageErr
			})
			if err != nil {
				return nil, err
			}
			currentPlan = updated.Plan
		}

		iteration++
	}

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
		Response:     final.Response,
		Iterations:   iteration,
		Completeness: completeness,
		History:      history,
	}, nil
}

// resolveGaps prefers the gaps the reflection already named and only
// spends another model call when it named none.
func (a *Agent) resolveGaps(ctx context.Context, query string, history []Turn, assessment *reflection.Output) (string, error) {
	if len(assessment.Gaps) > 0 {
		return strings.Join(assessment.Gaps, "\n"), nil
	}

	var out *planning.GapOutput
	err := a.withStageRetry(ctx, planning.StageName, func() error {
		var stageErr error
		out, stageErr = a.planner.IdentifyGaps(ctx, &planning.GapInput{
			Query:   query,
			History: renderHistory(history),
		})
		return stageErr
	})
	if err != nil {
		return "", err
	}
	return out.Gaps, nil
}
