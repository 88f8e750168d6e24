package analytics

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every ConfigError
var ErrInvalidConfig = errors.New("invalid analysis configuration")

// ConfigError reports a caller supplied configuration value that cannot be used
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
