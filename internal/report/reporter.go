// internal/report/reporter.go
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"research-agent/internal/agent"
	"research-agent/internal/dataset"
	"research-agent/internal/history"
)

// Output formats supported by the CLI.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WriteResult renders one analysis run.
func WriteResult(w io.Writer, result *agent.Result, format string) error {
	if format == FormatJSON {
		return writeJSON(w, result)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Run ID", result.RunID.String()},
		{"Approach", result.Approach},
		{"Iterations", result.Iterations},
		{"Completeness", fmt.Sprintf("%.2f", result.Completeness)},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
		{"Total tokens", result.Usage.TotalTokens},
	})
	t.Render()

	fmt.Fprintf(w, "\nQuery:\n%s\n", result.Query)
	fmt.Fprintf(w, "\nFinal Analysis:\n%s\n", result.Response)

	return nil
}

// WriteSchema renders the dataset layout.
func WriteSchema(w io.Writer, schema *dataset.Schema, format string) error {
	if format == FormatJSON {
		return writeJSON(w, schema)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Column", "Type"})
	for _, col := range schema.Columns {
		t.AppendRow(table.Row{col.Position, col.Name, col.Type})
	}
	t.Render()

	fmt.Fprintf(w, "\n%d rows in %q\n", schema.RowCount, schema.Table)
	return nil
}

// WriteRecords renders stored runs for side by side comparison.
func WriteRecords(w io.Writer, records []history.Record, format string) error {
	if format == FormatJSON {
		return writeJSON(w, records)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run ID", "Approach", "Iterations", "Completeness", "Tokens", "Created"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.RunID.String()[:8],
			r.Approach,
			r.Iterations,
			fmt.Sprintf("%.2f", r.Completeness),
			r.TotalTokens,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()

	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
