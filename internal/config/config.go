package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/security"
)

var (
	ErrMissingProviderURL = models.ConfigError{Message: "missing provider API base URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Provider.APIBaseURL == "" {
		return ErrMissingProviderURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.RateLimitRequests <= 0 {
		c.Server.RateLimitRequests = constants.DefaultRateLimitRequests
	}
	if c.Server.RateLimitWindowSec <= 0 {
		c.Server.RateLimitWindowSec = constants.DefaultRateLimitWindowSec
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if c.Provider.CountryCode == "" {
		c.Provider.CountryCode = constants.DefaultCountryCode
	}
	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = constants.DefaultWebhookTimeoutSec
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WABRIDGE_PROVIDER_API_URL"); url != "" {
		c.Provider.APIBaseURL = url
	}

	// SECURITY: credentials should be set via environment variables
	if key := os.Getenv("WABRIDGE_PROVIDER_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if token := os.Getenv("WABRIDGE_ADMIN_TOKEN"); token != "" {
		c.Server.AdminToken = token
	}

	if path := os.Getenv("WABRIDGE_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if port := os.Getenv("WABRIDGE_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			c.Server.Port = parsed
		}
	}

	if url := os.Getenv("WABRIDGE_STREAM_URL"); url != "" {
		c.Provider.StreamURL = url
		c.Provider.StreamEnabled = true
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WABRIDGE_ENV") == "production"

	if isProduction {
		// In production, the admin token is mandatory
		if c.Server.AdminToken == "" {
			return models.ConfigError{Message: "admin token is required in production (set WABRIDGE_ADMIN_TOKEN environment variable)"}
		}

		if len(c.Server.AdminToken) < 32 {
			return models.ConfigError{Message: "admin token must be at least 32 characters long"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Server.AdminToken == "" {
			fmt.Fprintf(os.Stderr, "WARNING: admin token not set. Set WABRIDGE_ADMIN_TOKEN environment variable to protect device management endpoints.\n")
		}
	}

	return nil
}
