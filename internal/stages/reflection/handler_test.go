package reflection

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
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, stage string, messages []llm.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Usage() llm.Usage {
	return llm.Usage{}
}

func newTestHandler(t *testing.T, fake *fakeCompleter) *Handler {
	return NewHandler(LoadConfig(), fake, logger.NewTestLogger(t))
}

func TestExecuteScoresAssessment(t *testing.T) {
	fake := &fakeCompleter{
		reply: `{
			"descriptive": 0.9,
			"explanatory": 0.7,
			"evidential": 0.8,
			"actionability": 0.6,
			"analysis": "Patterns are clear, mechanisms partially identified.",
			"gaps": ["discount policy impact"]
		}`,
	}

	out, err := newTestHandler(t, fake).Execute(context.Background(), &Input{
		Query:    "why is profit declining",
		Findings: "step results...",
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.75, out.Score, 0.0001)
	assert.InDelta(t, 0.9, out.Dimensions.Descriptive, 0.0001)
	assert.Equal(t, "Patterns are clear, mechanisms partially identified.", out.Analysis)
	require.Len(t, out.Gaps, 1)
}

func TestExecuteClampsOutOfRangeScores(t *testing.T) {
	fake := &fakeCompleter{
		reply: `{
			"descriptive": 1.4,
			"explanatory": -0.2,
			"evidential": 0.6,
			"actionability": 0.8,
			"analysis": "overshoot"
		}`,
	}

	out, err := newTestHandler(t, fake).Execute(context.Background(), &Input{Query: "q"})

	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.Dimensions.Descriptive, 0.0001)
	assert.InDelta(t, 0.0, out.Dimensions.Explanatory, 0.0001)
	assert.InDelta(t, 0.6, out.Score, 0.0001, "score averages the clamped values")
	assert.Equal(t, "overshoot", out.Analysis, "an out-of-range score is clamped, not treated as unparseable")
}

func TestExecuteAcceptsFencedJSON(t *testing.T) {
	fake := &fakeCompleter{
		reply: "```json\n{\"descriptive\": 0.5, \"explanatory\": 0.5, \"evidential\": 0.5, \"actionability\": 0.5, \"analysis\": \"halfway\"}\n```",
	}

	out, err := newTestHandler(t, fake).Execute(context.Background(), &Input{Query: "q"})

	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Score, 0.0001)
	assert.Equal(t, "halfway", out.Analysis)
}

func TestExecuteFallbackOnUnparseableReply(t *testing.T) {
	fake := &fakeCompleter{
		reply: "The findings look reasonably complete to me.",
	}

	out, err := newTestHandler(t, fake).Execute(context.Background(), &Input{Query: "q"})

	require.NoError(t, err)
	assert.InDelta(t, 0.7, out.Score, 0.0001)
	assert.Equal(t, "The findings look reasonably complete to me.", out.Analysis)
	assert.Empty(t, out.Gaps)
}

func TestExecuteFallbackOnMissingDimension(t *testing.T) {
	fake := &fakeCompleter{
		reply: `{"descriptive": 0.9, "analysis": "partial"}`,
	}

	out, err := newTestHandler(t, fake).Execute(context.Background(), &Input{Query: "q"})

	require.NoError(t, err)
	assert.InDelta(t, 0.7, out.Score, 0.0001)
}

func TestExecutePropagatesLLMError(t *testing.T) {
	fake := &fakeCompleter{err: errors.NewRateLimitedError("429")}

	_, err := newTestHandler(t, fake).Execute(context.Background(), &Input{Query: "q"})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeReflectionFailed, stdErr.Code)
}

func TestDimensionsAverage(t *testing.T) {
	d := Dimensions{Descriptive: 1, Explanatory: 0, Evidential: 1, Actionability: 0}
	assert.InDelta(t, 0.5, d.Average(), 0.0001)
}
