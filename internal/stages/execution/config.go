// internal/stages/execution/config.go
package execution

type Config struct {
	MaxSteps      int
	MaxConcurrent int
}

func LoadConfig() *Config {
	return &Config{
		MaxSteps:      6,
		MaxConcurrent: 4,
	}
}
