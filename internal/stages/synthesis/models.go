// internal/stages/synthesis/models.go
package synthesis

type Input struct {
	Query   string `json:"query"`
	History string `json:"history"`
}

type Output struct {
	Response string `json:"response"`
}
