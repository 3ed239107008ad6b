package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
	Err     error  // Underlying cause, if any
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error codes for configuration errors
const (
	ErrCodeMissingConfig     = "MISSING_CONFIG"
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeConfigFileInvalid = "CONFIG_FILE_INVALID"
)

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidValue returns an error for a configuration value out of range.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or config file", varName),
	}
}

// ErrConfigFileUnreadable returns an error for a YAML config file that cannot be used.
func ErrConfigFileUnreadable(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFileInvalid,
		Message: fmt.Sprintf("Cannot load config file %s: %v", path, cause),
		Action:  "Check METRICS_CONFIG_FILE points to a readable YAML file",
		Err:     cause,
	}
}

// IsConfigError checks if an error is (or wraps) a ConfigError and returns it if so.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}
