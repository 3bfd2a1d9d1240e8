package config

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/l10nsync/internal/cli/output"
)

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateLogFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}

	h := c.Hierarchy()
	h.ApplyDefaults()
	if err := h.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Access.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
