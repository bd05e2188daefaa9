// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig         `mapstructure:"app"`
	Server       ServerConfig      `mapstructure:"server"`
	Database     DatabaseConfig    `mapstructure:"database"`
	APIs         APIsConfig        `mapstructure:"apis"`
	Pipeline     PipelineConfig    `mapstructure:"pipeline"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL       string   `mapstructure:"base_url"`
		APIKey        string   `mapstructure:"api_key"`
		Model         string   `mapstructure:"model"`
		FallbackModel string   `mapstructure:"fallback_model"`
		Timeout       int      `mapstructure:"timeout"`       // milliseconds, per attempt
		MaxRetries    int      `mapstructure:"max_retries"`   // per model
		InitialDelay  int      `mapstructure:"initial_delay"` // milliseconds
		Temperature   float64  `mapstructure:"temperature"`
		MaxTokens     int      `mapstructure:"max_tokens"`
		Models        []string `mapstructure:"models"` // overrides Model/FallbackModel when set
	} `mapstructure:"genai"`

	Search struct {
		BaseURL  string `mapstructure:"base_url"`
		APIToken string `mapstructure:"api_token"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
		PerPage  int    `mapstructure:"per_page"`
	} `mapstructure:"search"`
}

// PipelineConfig holds per-stage settings for the orchestration pipeline.
type PipelineConfig struct {
	Retrieval struct {
		RowLimit    int  `mapstructure:"row_limit"`
		MergeCap    int  `mapstructure:"merge_cap"`
		CacheTTL    int  `mapstructure:"cache_ttl"` // milliseconds
		MaxHops     int  `mapstructure:"max_hops"`
		Timeout     int  `mapstructure:"timeout"` // milliseconds
		CacheEnable bool `mapstructure:"cache_enable"`
	} `mapstructure:"retrieval"`

	Insights struct {
		SampleRows int `mapstructure:"sample_rows"`
		MinLength  int `mapstructure:"min_length"`
		Timeout    int `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"insights"`

	Cleaning struct {
		ChunkSize             int      `mapstructure:"chunk_size"`
		SampleRows            int      `mapstructure:"sample_rows"`
		InstructionTimeout    int      `mapstructure:"instruction_timeout"` // milliseconds
		MaxRows               int      `mapstructure:"max_rows"`
		DuplicateIgnoreFields []string `mapstructure:"duplicate_ignore_fields"`
	} `mapstructure:"cleaning"`
}

// IntegrationConfig holds settings for email relay and other external services.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
			ToEmail   string `mapstructure:"to_email"`
		} `mapstructure:"ses"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GenAIModels returns the ordered model chain: primary first, then fallbacks.
func (a APIsConfig) GenAIModels() []string {
	if len(a.GenAI.Models) > 0 {
		return a.GenAI.Models
	}
	models := []string{a.GenAI.Model}
	if a.GenAI.FallbackModel != "" {
		models = append(models, a.GenAI.FallbackModel)
	}
	return models
}
