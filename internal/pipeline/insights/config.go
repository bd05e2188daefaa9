// internal/pipeline/insights/config.go
package insights

import "time"

type Config struct {
	SampleRows int
	MinLength  int
	Timeout    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		SampleRows: 10,
		MinLength:  50,
		Timeout:    15 * time.Second,
	}
}
