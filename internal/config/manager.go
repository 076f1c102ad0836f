package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	logx "dwmblocks/pkg/logx"
)

// Load reads and validates the config at path.
//
// An empty path yields Default(). Fields omitted from the file keep their
// default values. The file is read once; there is no reload.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data on top of Default() and validates the result.
// path only selects the format (by extension).
func Parse(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enums and durations, naming the offending field.
func Validate(cfg *Config) error {
	if _, ok := logx.ParseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if strings.TrimSpace(cfg.Runner.Shell) == "" {
		return fmt.Errorf("runner.shell must not be empty")
	}
	if _, err := cfg.Runner.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := cfg.Runner.WarnIntervalDuration(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Runner.OnFailure)) {
	case "fatal", "placeholder":
	default:
		return fmt.Errorf("runner.on_failure must be fatal or placeholder, got %q", cfg.Runner.OnFailure)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Sink.Kind)) {
	case "xsetroot", "stdout":
	case "telegram":
		if strings.TrimSpace(cfg.Sink.Telegram.Token) == "" {
			return fmt.Errorf("sink.telegram.token is required when sink.kind is telegram")
		}
		if cfg.Sink.Telegram.ChatID == 0 {
			return fmt.Errorf("sink.telegram.chat_id is required when sink.kind is telegram")
		}
	default:
		return fmt.Errorf("sink.kind must be xsetroot, stdout or telegram, got %q", cfg.Sink.Kind)
	}
	if cfg.Sink.Telegram.RatePerSec < 0 {
		return fmt.Errorf("sink.telegram.rate_per_sec must be >= 0")
	}
	return nil
}
