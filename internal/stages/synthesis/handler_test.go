package synthesis

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
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, stage string, messages []llm.Message) (string, error) {
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Usage() llm.Usage {
	return llm.Usage{}
}

func TestExecuteSynthesizesNarrative(t *testing.T) {
	fake := &fakeCompleter{reply: "Root cause: aggressive discounting in the West region."}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{
		Query:   "why is Technology profit declining in West?",
		History: "user: ...\nassistant: ...",
	})

	require.NoError(t, err)
	assert.Contains(t, out.Response, "Root cause")
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Root cause analysis")
	assert.Contains(t, fake.prompts[0], "Actionable recommendations")
}

func TestExecuteEmptyReplyUsesFallback(t *testing.T) {
	fake := &fakeCompleter{reply: "  "}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{Query: "q", History: ""})

	require.NoError(t, err)
	assert.Equal(t, emptyResponseFallback, out.Response)
}

func TestExecutePropagatesLLMError(t *testing.T) {
	fake := &fakeCompleter{err: errors.NewLLMTimeoutError(StageName)}
	handler := NewHandler(fake, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{Query: "q"})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeSynthesisFailed, stdErr.Code)
}
