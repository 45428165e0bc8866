package agent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-agent/internal/common/config"
	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/llm"
	"research-agent/internal/stages/execution"
	"research-agent/internal/stages/planning"
	"research-agent/internal/stages/reflection"
	"research-agent/internal/stages/synthesis"
)

type stubCompleter struct {
	reply string
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, stage string, messages []llm.Message) (string, error) {
	s.calls++
	return s.reply, nil
}

func (s *stubCompleter) Usage() llm.Usage {
	return llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
}

type stubPlanner struct {
	planCalls   int
	gapCalls    int
	updateCalls int

	planFailures int
	planErr      error
}

func (s *stubPlanner) Execute(ctx context.Context, input *planning.Input) (*planning.Output, error) {
	s.planCalls++
	if s.planErr != nil && (s.planFailures == 0 || s.planCalls <= s.planFailures) {
		return nil, s.planErr
	}
	return &planning.Output{Plan: "initial plan"}, nil
}

func (s *stubPlanner) IdentifyGaps(ctx context.Context, input *planning.GapInput) (*planning.GapOutput, error) {
	s.gapCalls++
	return &planning.GapOutput{Gaps: "identified gaps"}, nil
}

func (s *stubPlanner) UpdatePlan(ctx context.Context, input *planning.UpdateInput) (*planning.Output, error) {
	s.updateCalls++
	return &planning.Output{Plan: "updated plan"}, nil
}

type stubExecutor struct {
	calls int
	plans []string
	err   error
}

func (s *stubExecutor) Execute(ctx context.Context, input *execution.Input) (*execution.Output, error) {
	s.calls++
	s.plans = append(s.plans, input.Plan)
	if s.err != nil {
		return nil, s.err
	}
	return &execution.Output{Summary: "findings"}, nil
}

type stubReflector struct {
	scores []float64
	gaps   []string
	calls  int
}

func (s *stubReflector) Execute(ctx context.Context, input *reflection.Input) (*reflection.Output, error) {
	score := s.scores[0]
	if len(s.scores) > 1 {
		s.scores = s.scores[1:]
	}
	s.calls++
	return &reflection.Output{Score: score, Analysis: "assessment", Gaps: s.gaps}, nil
}

type stubSynthesizer struct {
	calls int
}

func (s *stubSynthesizer) Execute(ctx context.Context, input *synthesis.Input) (*synthesis.Output, error) {
	s.calls++
	return &synthesis.Output{Response: "final narrative"}, nil
}

func newTestAgent(t *testing.T, reflector *stubReflector) (*Agent, *stubPlanner, *stubExecutor, *stubSynthesizer) {
	planner := &stubPlanner{}
	executor := &stubExecutor{}
	synthesizer := &stubSynthesizer{}

	a := &Agent{
		config: &config.AgentConfig{
			MaxIterations:         8,
			CompletenessThreshold: 0.85,
		},
		llm:           &stubCompleter{reply: "direct answer"},
		schemaContext: "Table \"superstore\" (5 rows)",
		planner:       planner,
		executor:      executor,
		reflector:     reflector,
		synthesizer:   synthesizer,
		logger:        logger.NewTestLogger(t),
	}

	return a, planner, executor, synthesizer
}

func TestDeepResearchStopsAtThreshold(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.5, 0.9}}
	a, planner, executor, synthesizer := newTestAgent(t, reflector)

	result, err := a.Analyze(context.Background(), "why is profit down", ApproachDeepResearch)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.InDelta(t, 0.9, result.Completeness, 0.0001)
	assert.Equal(t, "final narrative", result.Response)
	assert.Equal(t, 2, executor.calls)
	assert.Equal(t, 2, reflector.calls)
	assert.Equal(t, 1, planner.updateCalls, "plan updated only after the incomplete iteration")
	assert.Equal(t, 1, synthesizer.calls)
	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.Equal(t, ApproachDeepResearch, result.Approach)
	assert.Equal(t, 150, result.Usage.TotalTokens)
}

func TestDeepResearchRespectsIterationBudget(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.1}}
	a, _, executor, _ := newTestAgent(t, reflector)
	a.config.MaxIterations = 3

	result, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 3, executor.calls)
	assert.InDelta(t, 0.1, result.Completeness, 0.0001)
}

func TestDeepResearchHistoryStartsWithQueryThenPlan(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, _, _, _ := newTestAgent(t, reflector)

	result, err := a.Analyze(context.Background(), "why is profit down", ApproachDeepResearch)

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.History), 4)
	assert.Equal(t, llm.RoleUser, result.History[0].Role)
	assert.Equal(t, "why is profit down", result.History[0].Content)
	assert.Equal(t, llm.RoleAssistant, result.History[1].Role)
	assert.Equal(t, "initial plan", result.History[1].Content)
	assert.Contains(t, result.History[2].Content, "Results:")
}

func TestDeepResearchUsesReflectionGaps(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.5, 0.9}, gaps: []string{"discount impact"}}
	a, planner, _, _ := newTestAgent(t, reflector)

	_, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.NoError(t, err)
	assert.Equal(t, 0, planner.gapCalls, "gap identification skipped when reflection already named gaps")
	assert.Equal(t, 1, planner.updateCalls)
}

func TestDeepResearchFallsBackToGapIdentification(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.5, 0.9}}
	a, planner, _, _ := newTestAgent(t, reflector)

	_, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.NoError(t, err)
	assert.Equal(t, 1, planner.gapCalls)
}

func TestDeepResearchRevisedPlanFeedsNextIteration(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.5, 0.9}}
	a, _, executor, _ := newTestAgent(t, reflector)

	_, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.NoError(t, err)
	require.Len(t, executor.plans, 2)
	assert.Equal(t, "initial plan", executor.plans[0])
	assert.Equal(t, "updated plan", executor.plans[1])
}

func TestPipelineRunsEachStageOnce(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, planner, executor, synthesizer := newTestAgent(t, reflector)

	result, err := a.Analyze(context.Background(), "q", ApproachPipeline)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, planner.planCalls)
	assert.Equal(t, 1, executor.calls)
	assert.Equal(t, 0, reflector.calls, "pipeline never reflects")
	assert.Equal(t, 1, synthesizer.calls)
	assert.Zero(t, result.Completeness)
	assert.Equal(t, "final narrative", result.Response)
}

func TestBaselineSingleCall(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, planner, executor, synthesizer := newTestAgent(t, reflector)

	result, err := a.Analyze(context.Background(), "why is profit down", ApproachBaseline)

	require.NoError(t, err)
	assert.Equal(t, "direct answer", result.Response)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, planner.planCalls)
	assert.Equal(t, 0, executor.calls)
	assert.Equal(t, 0, synthesizer.calls)
	require.Len(t, result.History, 2)
	assert.Equal(t, "why is profit down", result.History[0].Content)
}

func TestAnalyzeUnknownApproach(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, _, _, _ := newTestAgent(t, reflector)

	_, err := a.Analyze(context.Background(), "q", "clairvoyance")

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeConfigInvalid, stdErr.Code)
}

func TestDeepResearchRetriesTransientPlanningFailure(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, planner, _, _ := newTestAgent(t, reflector)
	planner.planFailures = 1
	planner.planErr = errors.NewPlanningFailedError(context.DeadlineExceeded)

	result, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.NoError(t, err)
	assert.Equal(t, 2, planner.planCalls, "first attempt failed, retry succeeded")
	assert.Equal(t, "final narrative", result.Response)
}

func TestDeepResearchPlanningRetryBudgetExhausted(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, planner, executor, _ := newTestAgent(t, reflector)
	planner.planErr = errors.NewPlanningFailedError(context.DeadlineExceeded)

	_, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodePlanningFailed, stdErr.Code)
	assert.Equal(t, 1+errors.GetRetryCount(errors.ErrCodePlanningFailed), planner.planCalls)
	assert.Equal(t, 0, executor.calls)
}

func TestDeepResearchDoesNotRetryExhaustedRateLimit(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.9}}
	a, _, executor, _ := newTestAgent(t, reflector)
	executor.err = errors.NewRateLimitedError("429 after client retries")

	_, err := a.Analyze(context.Background(), "q", ApproachDeepResearch)

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeLLMRateLimited, stdErr.Code)
	assert.Equal(t, 1, executor.calls, "transport retries belong to the client, not the agent")
}

func TestAnalyzeCancelledContext(t *testing.T) {
	reflector := &stubReflector{scores: []float64{0.1}}
	a, _, _, _ := newTestAgent(t, reflector)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, "q", ApproachDeepResearch)
	require.Error(t, err)
}
