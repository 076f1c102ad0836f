package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative Go duration. Empty means zero.
// path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// TimeoutDuration returns runner.timeout; zero means no timeout.
func (r RunnerConfig) TimeoutDuration() (time.Duration, error) {
	return ParseDurationField("runner.timeout", r.Timeout)
}

// WarnIntervalDuration returns runner.warn_interval; zero disables throttling.
func (r RunnerConfig) WarnIntervalDuration() (time.Duration, error) {
	return ParseDurationField("runner.warn_interval", r.WarnInterval)
}
