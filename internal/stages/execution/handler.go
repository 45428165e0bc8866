// internal/stages/execution/handler.go
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
	"research-agent/internal/llm"
)

const StageName = "execution"

// stepListSchema validates the step list the model returns before any
// SQL reaches the dataset.
const stepListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"purpose": {"type": "string", "minLength": 1},
			"sql": {"type": "string", "minLength": 1}
		},
		"required": ["purpose", "sql"]
	}
}`

// QueryRunner answers read-only SQL against the loaded dataset.
type QueryRunner interface {
	Query(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// Handler turns the current plan into concrete SQL steps and gathers
// their results.
type Handler struct {
	config *Config
	llm    llm.Completer
	store  QueryRunner
	logger logger.Logger
}

func NewHandler(config *Config, completer llm.Completer, store QueryRunner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		llm:    completer,
		store:  store,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	reply, err := h.llm.Complete(ctx, StageName, []llm.Message{
		{Role: llm.RoleUser, Content: h.buildStepPrompt(input)},
	})
	if err != nil {
		return nil, err
	}

	steps, err := h.parseSteps(reply)
	if err != nil {
		// The raw text still carries signal for reflection, so a
		// malformed step list degrades to a finding instead of
		// aborting the iteration.
		h.logger.Warn("unparseable step list, passing raw reply through", map[string]interface{}{
			"error": err.Error(),
		})
		return &Output{Summary: reply}, nil
	}

	if len(steps) > h.config.MaxSteps {
		steps = steps[:h.config.MaxSteps]
	}

	results := h.runSteps(ctx, steps)

	return &Output{
		Steps:   results,
		Summary: formatResults(results),
	}, nil
}

// runSteps executes the proposed queries with bounded concurrency,
// preserving step order in the results.
func (h *Handler) runSteps(ctx context.Context, steps []Step) []StepResult {
	results := make([]StepResult, len(steps))

	sem := make(chan struct{}, h.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i, step := range steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := StepResult{Step: step}
			rows, err := h.store.Query(ctx, step.SQL)
			if err != nil {
				result.Error = err.Error()
				h.logger.Warn("step query failed", map[string]interface{}{
					"purpose": step.Purpose,
					"error":   err.Error(),
				})
			} else {
				result.Rows = rows
			}
			results[i] = result
		}(i, step)
	}

	wg.Wait()
	return results
}

func (h *Handler) parseSteps(reply string) ([]Step, error) {
	payload := extractJSON(reply)

	var raw interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("parse step list: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(stepListSchema)
	documentLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			errs[i] = e.String()
		}
		return nil, fmt.Errorf("invalid step list: %s", strings.Join(errs, "; "))
	}

	var steps []Step
	if err := json.Unmarshal([]byte(payload), &steps); err != nil {
		return nil, fmt.Errorf("decode step list: %w", err)
	}

	return steps, nil
}

func (h *Handler) buildStepPrompt(input *Input) string {
	var parts []string

	parts = append(parts, "You are executing an analytical plan against a SQL table.")
	parts = append(parts, fmt.Sprintf("\nPlan:\n%s", input.Plan))
	parts = append(parts, fmt.Sprintf("\nAvailable data:\n%s", input.SchemaContext))
	parts = append(parts, "\nPropose the SELECT queries that gather the evidence the plan calls for.")
	parts = append(parts, fmt.Sprintf("Return ONLY a JSON array of at most %d objects, each with:", h.config.MaxSteps))
	parts = append(parts, `- "purpose": what the query establishes`)
	parts = append(parts, `- "sql": a single read-only SELECT statement`)

	return strings.Join(parts, "\n")
}

// formatResults renders step outcomes as findings text for the
// reflection stage.
func formatResults(results []StepResult) string {
	var b strings.Builder

	for i, r := range results {
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, r.Purpose)
		if r.Error != "" {
			fmt.Fprintf(&b, "  failed: %s\n", r.Error)
			continue
		}
		if len(r.Rows) == 0 {
			b.WriteString("  no rows\n")
			continue
		}
		rows, _ := json.Marshal(r.Rows)
		fmt.Fprintf(&b, "  %s\n", rows)
	}

	return b.String()
}

// extractJSON strips markdown code fences and surrounding prose from a
// model reply, keeping the outermost JSON value.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}
