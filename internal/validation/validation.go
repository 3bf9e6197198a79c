package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	// Remove common prefixes and suffixes for validation
	cleaned := strings.TrimPrefix(phone, "+")
	cleaned = strings.TrimSuffix(cleaned, constants.UserJIDSuffix)
	cleaned = strings.TrimSuffix(cleaned, constants.GroupJIDSuffix)

	// Check length bounds
	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	// Check that it contains only digits
	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// NormalizePhoneNumber strips formatting characters and applies the country
// code to local numbers. A number starting with '0' has the zero replaced by
// the country code; a bare number shorter than an international one gets the
// country code prepended.
func NormalizePhoneNumber(phone, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = constants.DefaultCountryCode
	}

	var digits strings.Builder
	for _, char := range phone {
		if unicode.IsDigit(char) {
			digits.WriteRune(char)
		}
	}

	normalized := digits.String()
	if len(normalized) < constants.MinPhoneNumberLength {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if strings.HasPrefix(normalized, "0") {
		normalized = countryCode + normalized[1:]
	} else if !strings.HasPrefix(normalized, countryCode) && len(normalized) <= 10 {
		normalized = countryCode + normalized
	}

	if len(normalized) > constants.MaxPhoneNumberLength {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	return normalized, nil
}

// ValidateWebhookURL validates a webhook destination. An empty URL is valid
// and disables dispatch for the device.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}

	if len(rawURL) > constants.MaxWebhookURLLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("webhook URL too long (max %d characters)", constants.MaxWebhookURLLength))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL is not a valid URL")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL must use http or https")
	}

	if parsed.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, "webhook URL must be absolute")
	}

	return nil
}

// ValidateSessionID validates session identifier format and length
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "session ID cannot be empty")
	}

	if len(sessionID) > constants.MaxSessionIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("session ID too long (max %d characters)", constants.MaxSessionIDLength))
	}

	// Session IDs should be alphanumeric with underscores and dashes
	for _, char := range sessionID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput,
				"session ID must contain only letters, numbers, underscores, and dashes")
		}
	}

	return nil
}

// ValidateDeviceName validates a device display name
func ValidateDeviceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "device name cannot be empty")
	}

	if len(name) > constants.MaxDeviceNameLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("device name too long (max %d characters)", constants.MaxDeviceNameLength))
	}

	for _, char := range name {
		if char == '\x00' || char == '\n' || char == '\r' {
			return errors.New(errors.ErrCodeInvalidInput, "device name contains invalid characters")
		}
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}
