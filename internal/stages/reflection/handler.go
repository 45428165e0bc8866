// internal/stages/reflection/handler.go
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
	"research-agent/internal/llm"
)

const StageName = "reflection"

// Range is not enforced here on purpose: a score outside 0-1 is clamped
// rather than thrown away with the whole assessment.
const assessmentSchema = `{
	"type": "object",
	"properties": {
		"descriptive": {"type": "number"},
		"explanatory": {"type": "number"},
		"evidential": {"type": "number"},
		"actionability": {"type": "number"},
		"analysis": {"type": "string"},
		"gaps": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["descriptive", "explanatory", "evidential", "actionability", "analysis"]
}`

type assessment struct {
	Descriptive   float64  `json:"descriptive"`
	Explanatory   float64  `json:"explanatory"`
	Evidential    float64  `json:"evidential"`
	Actionability float64  `json:"actionability"`
	Analysis      string   `json:"analysis"`
	Gaps          []string `json:"gaps"`
}

// Handler evaluates how complete the investigation is through
// metacognitive prompting.
type Handler struct {
	config *Config
	llm    llm.Completer
	logger logger.Logger
}

func NewHandler(config *Config, completer llm.Completer, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		llm:    completer,
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
		{Role: llm.RoleUser, Content: h.buildPrompt(input)},
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues(StageName, string(errors.ErrCodeReflectionFailed)).Inc()
		return nil, errors.NewReflectionFailedError(err)
	}

	parsed, err := h.parseAssessment(reply)
	if err != nil {
		// An unscoreable reply must not abort the run. Assume partial
		// completeness and keep the raw analysis.
		h.logger.Warn("unparseable assessment, using fallback score", map[string]interface{}{
			"error": err.Error(),
		})
		return &Output{
			Score:    h.config.FallbackScore,
			Analysis: reply,
		}, nil
	}

	dims := Dimensions{
		Descriptive:   clamp(parsed.Descriptive),
		Explanatory:   clamp(parsed.Explanatory),
		Evidential:    clamp(parsed.Evidential),
		Actionability: clamp(parsed.Actionability),
	}
	score := dims.Average()

	h.logger.Info("completeness assessed", map[string]interface{}{
		"score":    score,
		"gapCount": len(parsed.Gaps),
	})

	return &Output{
		Score:      score,
		Dimensions: dims,
		Analysis:   parsed.Analysis,
		Gaps:       parsed.Gaps,
	}, nil
}

func (h *Handler) parseAssessment(reply string) (*assessment, error) {
	payload := extractJSON(reply)

	var raw interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("parse assessment: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(assessmentSchema)
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
		return nil, fmt.Errorf("invalid assessment: %s", strings.Join(errs, "; "))
	}

	var parsed assessment
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}

	return &parsed, nil
}

func (h *Handler) buildPrompt(input *Input) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Query: %s", input.Query))
	parts = append(parts, fmt.Sprintf("\nCurrent findings:\n%s", input.Findings))
	parts = append(parts, "\nEvaluate completeness on a 0-1 scale across these dimensions:")
	parts = append(parts, "1. Descriptive: Are observed patterns fully documented?")
	parts = append(parts, "2. Explanatory: Are causal mechanisms identified?")
	parts = append(parts, "3. Evidential: Do we have supporting data for all claims?")
	parts = append(parts, "4. Actionability: Can we make concrete recommendations?")
	parts = append(parts, "\nReturn ONLY a JSON object with the keys")
	parts = append(parts, `"descriptive", "explanatory", "evidential", "actionability" (numbers),`)
	parts = append(parts, `"analysis" (your assessment) and "gaps" (array of open questions).`)

	return strings.Join(parts, "\n")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

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

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
