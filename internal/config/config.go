package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// The memory driver keeps everything in process and needs no URL.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"            validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url"               validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// LLMConfig contains generation provider settings and the call limits
// applied to every generation call.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"          validate:"required,oneof=dummy gemini openai"`
	Model           string  `mapstructure:"model"             validate:"required"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"    validate:"required_if=Provider gemini"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"    validate:"required_if=Provider openai"`
	OpenAIBaseURL   string  `mapstructure:"openai_base_url"   validate:"omitempty,url"`
	Temperature     float32 `mapstructure:"temperature"       validate:"gte=0,lte=2"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" validate:"gte=0"`
	PromptsFile     string  `mapstructure:"prompts_file"`

	// MaxRetries is the number of extra attempts after the first call.
	MaxRetries     int           `mapstructure:"max_retries"     validate:"gte=0,lte=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"     validate:"gtefield=InitialBackoff"`

	// JobMaxCalls caps generation calls made on behalf of a single job.
	JobMaxCalls int `mapstructure:"job_max_calls" validate:"gt=0"`
	// ProjectDailyMaxCalls caps generation calls per project per UTC day.
	ProjectDailyMaxCalls int `mapstructure:"project_daily_max_calls" validate:"gt=0"`
}

// WorkerConfig contains settings for the background job runner.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PollInterval is how often the runner looks for queued jobs when idle.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`

	// StuckJobAge defines how long a job may stay running before the
	// monitor fails it as interrupted.
	StuckJobAge time.Duration `mapstructure:"stuck_job_age" validate:"gt=0"`

	// StuckJobCheckInterval defines how often to check for stuck jobs.
	StuckJobCheckInterval time.Duration `mapstructure:"stuck_job_check_interval" validate:"gt=0"`
}
