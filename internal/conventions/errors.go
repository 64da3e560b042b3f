package conventions

import (
	"fmt"
)

// ConfigurationError reports a build that cannot proceed because its inputs
// are inconsistent, like staged layer directories not matching the declared
// copy instructions or an unparsable image reference.
type ConfigurationError struct {
	// Subject is the path or reference the problem was found at.
	Subject string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid build configuration"
	if e.Subject != "" {
		msg += fmt.Sprintf(" at %s", e.Subject)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError is a shorthand for a ConfigurationError without cause.
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}
