package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Tasks    TasksConfig    `mapstructure:"tasks" validate:"required"`
	EventLog EventLogConfig `mapstructure:"eventlog" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	Images   ImagesConfig   `mapstructure:"images" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Security SecurityConfig `mapstructure:"security" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port          int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel      string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gt=0"`
}

// StoreInstance names one Redis endpoint.
type StoreInstance struct {
	Name string `mapstructure:"name" validate:"required"`
	URL  string `mapstructure:"url" validate:"required,url"`
}

// StoreConfig lists the redundant Redis instances in preference order.
type StoreConfig struct {
	Instances       []StoreInstance `mapstructure:"instances" validate:"required,min=1,unique=Name,dive"`
	HealthInterval  time.Duration   `mapstructure:"health_interval" validate:"gt=0"`
	ConnectAttempts int             `mapstructure:"connect_attempts" validate:"gte=1"`
}

// TasksConfig bounds task execution.
type TasksConfig struct {
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	AcquireTimeout      time.Duration `mapstructure:"acquire_timeout" validate:"gt=0"`
	ResultTTL           time.Duration `mapstructure:"result_ttl" validate:"gt=0"`
	AudioLimit          int           `mapstructure:"audio_limit" validate:"gte=1"`
	ImageLimit          int           `mapstructure:"image_limit" validate:"gte=1"`
	MaxChains           int           `mapstructure:"max_chains" validate:"gte=0"`
	AdmissionThreshold  float64       `mapstructure:"admission_threshold" validate:"gt=0,lte=100"`
	StoreErrorThreshold int           `mapstructure:"store_error_threshold" validate:"gte=1"`
}

// EventLogConfig configures the per-run event log.
type EventLogConfig struct {
	Capacity   int           `mapstructure:"capacity" validate:"gte=1"`
	PollWindow time.Duration `mapstructure:"poll_window" validate:"gt=0"`
}

// LLMConfig configures the text generation service. The key may be left
// empty and supplied later through the configure endpoint.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	Model        string `mapstructure:"model" validate:"required"`
}

// VoiceConfig configures the voice synthesis service.
type VoiceConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// ImagesConfig configures the image rendering service.
type ImagesConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Model   string `mapstructure:"model" validate:"required"`
}

// AuthConfig contains the bearer token settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// SecurityConfig holds the key that seals stored credentials.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key" validate:"required,len=64,hexadecimal"`
}

// DatabaseConfig configures the optional chain archive. An empty URL
// disables archiving.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}
