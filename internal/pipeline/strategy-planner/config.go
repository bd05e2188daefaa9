// internal/pipeline/strategy-planner/config.go
package strategyplanner

import "time"

type Config struct {
	Timeout       time.Duration
	ContextWindow int // prior exchanges embedded in the prompt
	RowLimit      int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		ContextWindow: 3,
		RowLimit:      50,
	}
}
