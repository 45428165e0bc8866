// internal/agent/retry.go
package agent

import (
	"context"
	"time"

	"research-agent/internal/common/errors"
)

// withStageRetry runs a stage operation and retries failed attempts
// according to the per-code retry policy. Transport errors are already
// retried inside the LLM client, so only stage-category failures are
// retried here.
func (a *Agent) withStageRetry(ctx context.Context, stage string, op func() error) error {
	attempt := 0
	for {
		err := op()
		if err == nil {
			return nil
		}

		stdErr, ok := err.(*errors.StandardError)
		if !ok || !stdErr.Retryable || errors.GetErrorCategory(stdErr.Code) != "STAGE" {
			return err
		}
		if attempt >= errors.GetRetryCount(stdErr.Code) {
			return err
		}

		attempt++
		backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond

		a.logger.Warn("stage failed, retrying", map[string]interface{}{
			"stage":   stage,
			"attempt": attempt,
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
