package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig   `json:"server"`
	Provider      ProviderConfig `json:"provider"`
	Database      DatabaseConfig `json:"database"`
	Webhook       WebhookConfig  `json:"webhook"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// ServerConfig holds HTTP server related configuration
type ServerConfig struct {
	Port               int    `json:"port"`
	AdminToken         string `json:"admin_token"`
	RateLimitRequests  int    `json:"rateLimitRequests"`
	RateLimitWindowSec int    `json:"rateLimitWindowSec"`
}

// ProviderConfig holds configuration for the external WhatsApp engine
type ProviderConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	APIKey        string `json:"api_key"`
	TimeoutSec    int    `json:"timeout_sec"`
	StreamEnabled bool   `json:"streamEnabled"`
	StreamURL     string `json:"streamUrl"`
	CountryCode   string `json:"countryCode"`
}

// DatabaseConfig holds database related configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// WebhookConfig holds outbound webhook dispatch configuration
type WebhookConfig struct {
	TimeoutSec int `json:"timeout_sec"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
