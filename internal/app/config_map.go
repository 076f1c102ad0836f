package app

import (
	"fmt"
	"strings"

	"dwmblocks/internal/config"
	"dwmblocks/internal/runner"
	"dwmblocks/internal/scheduler"
	"dwmblocks/internal/sink"
	logx "dwmblocks/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapRunner(cfg *config.Config) (runner.ShellRunner, error) {
	timeout, err := cfg.Runner.TimeoutDuration()
	if err != nil {
		return runner.ShellRunner{}, err
	}
	return runner.ShellRunner{Shell: strings.TrimSpace(cfg.Runner.Shell), Timeout: timeout}, nil
}

// mapSchedulerOptions fills everything except Logger/Bus, which the app owns.
func mapSchedulerOptions(cfg *config.Config, separator string) (scheduler.Options, error) {
	policy, err := scheduler.ParseFailurePolicy(cfg.Runner.OnFailure)
	if err != nil {
		return scheduler.Options{}, fmt.Errorf("runner.on_failure: %w", err)
	}
	warnEvery, err := cfg.Runner.WarnIntervalDuration()
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		Separator:     separator,
		FailurePolicy: policy,
		Placeholder:   cfg.Runner.Placeholder,
		WarnEvery:     warnEvery,
	}, nil
}

// closer is implemented by sinks that own goroutines.
type closer interface{ Close() error }

func buildSink(cfg *config.Config, log logx.Logger) (sink.Publisher, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Sink.Kind))
	log = log.With(logx.String("sink", kind))
	switch kind {
	case sink.KindXSetRoot:
		return sink.NewXSetRoot(log), nil
	case sink.KindStdout:
		return sink.NewWriter(logx.Stdout(), log), nil
	case sink.KindTelegram:
		tc := cfg.Sink.Telegram
		return sink.NewTelegram(sink.TelegramConfig{
			Token:      tc.Token,
			ChatID:     tc.ChatID,
			ThreadID:   tc.ThreadID,
			RatePerSec: tc.RatePerSec,
		}, log)
	default:
		return nil, fmt.Errorf("sink.kind: unknown sink %q", cfg.Sink.Kind)
	}
}
