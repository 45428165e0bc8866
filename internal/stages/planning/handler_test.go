package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/llm"
)

type fakeCompleter struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, stage string, messages []llm.Message) (string, error) {
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeCompleter) Usage() llm.Usage {
	return llm.Usage{}
}

func TestExecuteGeneratesPlan(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"1. Examine sales by region\n2. Compare discount rates"}}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{
		Query:         "Why is Technology profit declining in West region?",
		SchemaContext: "Table \"superstore\" (9994 rows)",
	})

	require.NoError(t, err)
	assert.Contains(t, out.Plan, "sales by region")
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Why is Technology profit declining")
	assert.Contains(t, fake.prompts[0], "superstore")
	assert.Contains(t, fake.prompts[0], "causal relationships")
}

func TestExecuteEmptyPlan(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"   "}}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Query: "q"})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodePlanningFailed, stdErr.Code)
}

func TestExecutePropagatesLLMError(t *testing.T) {
	fake := &fakeCompleter{err: errors.NewRateLimitedError("slow down")}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Query: "q"})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodePlanningFailed, stdErr.Code)
}

func TestIdentifyGaps(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"Discount impact not yet quantified"}}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.IdentifyGaps(context.Background(), &GapInput{
		Query:   "why is profit down",
		History: "assistant: initial plan...",
	})

	require.NoError(t, err)
	assert.Equal(t, "Discount impact not yet quantified", out.Gaps)
	assert.Contains(t, fake.prompts[0], "alternative hypotheses")
}

func TestUpdatePlanKeepsCurrentOnEmptyReply(t *testing.T) {
	fake := &fakeCompleter{replies: []string{""}}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.UpdatePlan(context.Background(), &UpdateInput{
		CurrentPlan: "original plan",
		Gaps:        "missing discount analysis",
	})

	require.NoError(t, err)
	assert.Equal(t, "original plan", out.Plan)
}

func TestUpdatePlanReturnsRevision(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"revised plan"}}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.UpdatePlan(context.Background(), &UpdateInput{
		CurrentPlan: "original plan",
		Gaps:        "gaps",
	})

	require.NoError(t, err)
	assert.Equal(t, "revised plan", out.Plan)
}
