// internal/stages/reflection/config.go
package reflection

type Config struct {
	// Score assumed when the model's self-assessment cannot be parsed.
	// Low enough to keep iterating, high enough to terminate eventually.
	FallbackScore float64
}

func LoadConfig() *Config {
	return &Config{
		FallbackScore: 0.7,
	}
}
