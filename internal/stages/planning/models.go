// internal/stages/planning/models.go
package planning

type Input struct {
	Query         string `json:"query"`
	SchemaContext string `json:"schemaContext"`
}

type Output struct {
	Plan string `json:"plan"`
}

type GapInput struct {
	Query   string `json:"query"`
	History string `json:"history"`
}

type GapOutput struct {
	Gaps string `json:"gaps"`
}

type UpdateInput struct {
	CurrentPlan string `json:"currentPlan"`
	Gaps        string `json:"gaps"`
}
