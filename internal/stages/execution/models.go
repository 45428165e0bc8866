// internal/stages/execution/models.go
package execution

type Input struct {
	Plan          string `json:"plan"`
	SchemaContext string `json:"schemaContext"`
}

type Output struct {
	Steps   []StepResult `json:"steps"`
	Summary string       `json:"summary"`
}

// Step is one data gathering action proposed by the model.
type Step struct {
	Purpose string `json:"purpose"`
	SQL     string `json:"sql"`
}

// StepResult carries the executed step together with its rows or failure.
type StepResult struct {
	Step
	Rows  []map[string]interface{} `json:"rows,omitempty"`
	Error string                   `json:"error,omitempty"`
}
