// internal/pipeline/csv-cleaner/config.go
package csvcleaner

import "time"

type Config struct {
	ChunkSize          int
	SampleRows         int
	InstructionTimeout time.Duration
	MaxRows            int

	// Fields excluded from the canonical form used for duplicate detection.
	// Generated fields would otherwise make every row unique.
	DuplicateIgnoreFields []string
}

func LoadConfig() *Config {
	return &Config{
		ChunkSize:          1000,
		SampleRows:         10,
		InstructionTimeout: 20 * time.Second,
		MaxRows:            100000,
		DuplicateIgnoreFields: []string{
			"id", "ai_cleaned", "quality_score", "processing_timestamp",
		},
	}
}
