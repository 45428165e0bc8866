// internal/stages/reflection/models.go
package reflection

type Input struct {
	Query    string `json:"query"`
	Findings string `json:"findings"`
}

type Output struct {
	Score      float64    `json:"score"`
	Dimensions Dimensions `json:"dimensions"`
	Analysis   string     `json:"analysis"`
	Gaps       []string   `json:"gaps"`
}

// Dimensions are the four axes of the completeness assessment.
type Dimensions struct {
	Descriptive   float64 `json:"descriptive"`
	Explanatory   float64 `json:"explanatory"`
	Evidential    float64 `json:"evidential"`
	Actionability float64 `json:"actionability"`
}

// Average collapses the four dimensions into a single score.
func (d Dimensions) Average() float64 {
	return (d.Descriptive + d.Explanatory + d.Evidential + d.Actionability) / 4
}
