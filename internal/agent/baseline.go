// internal/agent/baseline.go
package agent

import (
	"context"
	"fmt"

	"research-agent/internal/llm"
)

// runBaseline asks the model directly, the way an analyst would paste
// the question into a chat window. No planning, no data access, no
// reflection. This is the control condition.
func (a *Agent) runBaseline(ctx context.Context, query string) (*Result, error) {
	prompt := fmt.Sprintf(`You are a business analyst. Answer this question about the Superstore retail dataset:

%s

Available data:
%s

Answer from general knowledge of retail dynamics. State clearly when you are speculating.`, query, a.schemaContext)

	reply, err := a.llm.Complete(ctx, "baseline", []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Response:   reply,
		Iterations: 1,
		History: []Turn{
			{Role: llm.RoleUser, Content: query},
			{Role: llm.RoleAssistant, Content: reply},
		},
	}, nil
}
