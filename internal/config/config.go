package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Backup   BackupConfig   `mapstructure:"backup"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, receives a copy of every log record in addition
	// to stdout.
	LogFile string `mapstructure:"log_file"`

	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
// Token issuance happens elsewhere; this service only verifies.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// MaxRetries bounds retry attempts for transient generation failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// RequestTimeoutSeconds bounds a single generation call so a hung call
	// degrades to an item-level failure instead of wedging the job.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gt=0"`
}

// BackupConfig contains settings for the pre-delete backup service.
type BackupConfig struct {
	// Dir is the directory backup artifact files are written to.
	Dir string `mapstructure:"dir" validate:"required"`

	// RetentionDays controls how long backups are kept before cleanup.
	RetentionDays int `mapstructure:"retention_days" validate:"gt=0"`
}
