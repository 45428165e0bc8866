package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-agent/internal/agent"
	"research-agent/internal/dataset"
	"research-agent/internal/history"
)

func sampleResult() *agent.Result {
	return &agent.Result{
		RunID:        uuid.New(),
		Query:        "why is profit declining",
		Approach:     agent.ApproachDeepResearch,
		Response:     "Aggressive discounting is eroding Technology margins.",
		Iterations:   3,
		Completeness: 0.88,
		Duration:     42 * time.Second,
	}
}

func TestWriteResultText(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult()

	require.NoError(t, WriteResult(&buf, result, FormatText))

	out := buf.String()
	assert.Contains(t, out, result.RunID.String())
	assert.Contains(t, out, "deep-research")
	assert.Contains(t, out, "0.88")
	assert.Contains(t, out, "why is profit declining")
	assert.Contains(t, out, "Aggressive discounting")
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult()

	require.NoError(t, WriteResult(&buf, result, FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, result.Query, decoded["query"])
	assert.Equal(t, float64(3), decoded["iterations"])
	assert.InDelta(t, 0.88, decoded["final_completeness"].(float64), 0.0001)
}

func TestWriteSchemaText(t *testing.T) {
	var buf bytes.Buffer
	schema := &dataset.Schema{
		Table:    "superstore",
		RowCount: 9994,
		Columns: []dataset.Column{
			{Name: "Region", Type: "VARCHAR", Position: 1},
			{Name: "Sales", Type: "DOUBLE", Position: 2},
		},
	}

	require.NoError(t, WriteSchema(&buf, schema, FormatText))

	out := buf.String()
	assert.Contains(t, out, "Region")
	assert.Contains(t, out, "VARCHAR")
	assert.Contains(t, out, "9994 rows")
}

func TestWriteRecordsText(t *testing.T) {
	var buf bytes.Buffer
	records := []history.Record{
		{
			RunID:        uuid.New(),
			Approach:     agent.ApproachBaseline,
			Iterations:   1,
			Completeness: 0,
			TotalTokens:  321,
			CreatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	require.NoError(t, WriteRecords(&buf, records, FormatText))

	out := buf.String()
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "321")
	assert.Contains(t, out, "2026-08-01")
}
