// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-agent/internal/common/config"
	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
	"research-agent/internal/llm"
	"research-agent/internal/stages/execution"
	"research-agent/internal/stages/planning"
	"research-agent/internal/stages/reflection"
	"research-agent/internal/stages/synthesis"
)

// Analysis approaches compared by the experiment.
const (
	ApproachBaseline     = "baseline"
	ApproachPipeline     = "pipeline"
	ApproachDeepResearch = "deep-research"
)

// Approaches lists the supported approach names.
var Approaches = []string{ApproachBaseline, ApproachPipeline, ApproachDeepResearch}

// Planner produces and revises the analytical plan.
type Planner interface {
	Execute(ctx context.Context, input *planning.Input) (*planning.Output, error)
	IdentifyGaps(ctx context.Context, input *planning.GapInput) (*planning.GapOutput, error)
	UpdatePlan(ctx context.Context, input *planning.UpdateInput) (*planning.Output, error)
}

// Executor gathers evidence for the current plan.
type Executor interface {
	Execute(ctx context.Context, input *execution.Input) (*execution.Output, error)
}

// Reflector scores how complete the investigation is.
type Reflector interface {
	Execute(ctx context.Context, input *reflection.Input) (*reflection.Output, error)
}

// Synthesizer writes the final narrative.
type Synthesizer interface {
	Execute(ctx context.Context, input *synthesis.Input) (*synthesis.Output, error)
}

// Turn is one entry of the conversation record kept during a run.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of one analysis run.
type Result struct {
	RunID        uuid.UUID     `json:"run_id"`
	Query        string        `json:"query"`
	Approach     string        `json:"approach"`
	Response     string        `json:"response"`
	Iterations   int           `json:"iterations"`
	Completeness float64       `json:"final_completeness"`
	History      []Turn        `json:"conversation_history"`
	Duration     time.Duration `json:"duration"`
	Usage        llm.Usage     `json:"usage"`
}

// Agent runs business questions against the dataset using one of the
// three approaches.
type Agent struct {
	config        *config.AgentConfig
	llm           llm.Completer
	schemaContext string

	planner     Planner
	executor    Executor
	reflector   Reflector
	synthesizer Synthesizer

	logger logger.Logger
}

// New wires an agent with the standard stage handlers.
func New(cfg *config.AgentConfig, completer llm.Completer, store execution.QueryRunner, schemaContext string, log logger.Logger) *Agent {
	execConfig := execution.LoadConfig()
	if cfg.MaxConcurrentQueries > 0 {
		execConfig.MaxConcurrent = cfg.MaxConcurrentQueries
	}

	return &Agent{
		config:        cfg,
		llm:           completer,
		schemaContext: schemaContext,
		planner:       planning.NewHandler(completer, log),
		executor:      execution.NewHandler(execConfig, completer, store, log),
		reflector:     reflection.NewHandler(reflection.LoadConfig(), completer, log),
		synthesizer:   synthesis.NewHandler(completer, log),
		logger: log.With(map[string]interface{}{
			"component": "agent",
		}),
	}
}

// Analyze runs the query with the requested approach.
func (a *Agent) Analyze(ctx context.Context, query, approach string) (*Result, error) {
	start := time.Now()

	var result *Result
	var err error

	switch approach {
	case ApproachBaseline:
		result, err = a.runBaseline(ctx, query)
	case ApproachPipeline:
		result, err = a.runPipeline(ctx, query)
	case ApproachDeepResearch:
		result, err = a.runDeepResearch(ctx, query)
	default:
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unknown approach %q", approach))
	}

	if err != nil {
		return nil, err
	}

	result.RunID = uuid.New()
	result.Query = query
	result.Approach = approach
	result.Duration = time.Since(start)
	result.Usage = a.llm.Usage()

	metrics.AgentIterations.WithLabelValues(approach).Observe(float64(result.Iterations))

	a.logger.Info("analysis completed", map[string]interface{}{
		"runId":        result.RunID.String(),
		"approach":     approach,
		"iterations":   result.Iterations,
		"completeness": result.Completeness,
		"durationMs":   result.Duration.Milliseconds(),
	})

	return result, nil
}

// renderHistory flattens the conversation record into prompt context.
func renderHistory(history []Turn) string {
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}
