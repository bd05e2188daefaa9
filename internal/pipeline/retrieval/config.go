// internal/pipeline/retrieval/config.go
package retrieval

import "time"

type Config struct {
	RowLimit     int
	MergeCap     int
	MaxHops      int
	Timeout      time.Duration
	CacheTTL     time.Duration
	CacheEnabled bool
}

func LoadConfig() *Config {
	return &Config{
		RowLimit:     50,
		MergeCap:     30,
		MaxHops:      1,
		Timeout:      30 * time.Second,
		CacheTTL:     5 * time.Minute,
		CacheEnabled: true,
	}
}
