package config

// Config holds the ambient settings of the daemon.
//
// Blocks themselves are not configured here: the block list, separator and
// base path are compiled into the binary (see cmd/dwmblocks).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Runner  RunnerConfig  `json:"runner"`
	Sink    SinkConfig    `json:"sink"`
	Systemd SystemdConfig `json:"systemd"`
	Watch   WatchConfig   `json:"watch"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RunnerConfig controls how block commands are executed.
//
// Defaults:
//   - shell: "bash"
//   - timeout: "0s" (wait for the command forever)
//   - on_failure: "fatal" (a block that cannot be run stops the daemon)
//   - placeholder: "?"
//   - warn_interval: "30s"
type RunnerConfig struct {
	Shell string `json:"shell"`
	// Timeout bounds one command run. "0s" disables it.
	Timeout string `json:"timeout"`
	// OnFailure is "fatal" or "placeholder".
	OnFailure   string `json:"on_failure"`
	Placeholder string `json:"placeholder"`
	// WarnInterval throttles stderr warnings per block. "0s" logs every one.
	WarnInterval string `json:"warn_interval"`
}

// SinkConfig selects where the status line goes.
//
// Kind is one of "xsetroot" (default), "stdout" or "telegram".
type SinkConfig struct {
	Kind     string       `json:"kind"`
	Telegram TelegramSink `json:"telegram"`
}

type TelegramSink struct {
	Token      string `json:"token"` // never logged
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SystemdConfig struct {
	// Notify enables sd_notify READY/WATCHDOG/STOPPING messages.
	// Harmless outside systemd.
	Notify bool `json:"notify"`
}

type WatchConfig struct {
	// Enabled logs edits and removals of block scripts.
	Enabled bool `json:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./dwmblocks.log"},
		},
		Runner: RunnerConfig{
			Shell:        "bash",
			Timeout:      "0s",
			OnFailure:    "fatal",
			Placeholder:  "?",
			WarnInterval: "30s",
		},
		Sink: SinkConfig{
			Kind:     "xsetroot",
			Telegram: TelegramSink{RatePerSec: 1},
		},
		Systemd: SystemdConfig{Notify: true},
		Watch:   WatchConfig{Enabled: true},
	}
}
