package config

import (
	"errors"

	"github.com/hyp3rd/ewrap"
)

// ErrTLSNotEnabled is returned when no TLS material is configured.
var ErrTLSNotEnabled = ewrap.New("tls is not enabled").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// ConfigurationError reports an invalid, missing or conflicting setting.
// It is raised while resolving or building, never during export.
type ConfigurationError struct {
	// Field names the offending setting, e.g. "endpoint" or an environment variable.
	Field string
	err   error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}

	if e.Field == "" {
		return "invalid configuration: " + e.err.Error()
	}

	return "invalid configuration: " + e.Field + ": " + e.err.Error()
}

// Unwrap implements errors.Wrapper.
func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError

	return errors.As(err, &target)
}

func invalidConfigError(field, format string, args ...any) error {
	return &ConfigurationError{
		Field: field,
		err: ewrap.Newf(format, args...).WithContext(&ewrap.ErrorContext{
			Severity: ewrap.SeverityError,
			Type:     ewrap.ErrorTypeConfiguration,
		}),
	}
}

func wrapConfigError(field string, err error, msg string) error {
	return &ConfigurationError{
		Field: field,
		err:   ewrap.Wrap(err, msg),
	}
}

// NewConfigurationError returns a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) error {
	return invalidConfigError(field, format, args...)
}

// WrapConfigurationError wraps err as a ConfigurationError for field.
func WrapConfigurationError(field string, err error, msg string) error {
	return wrapConfigError(field, err, msg)
}
