package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dwmblocks/internal/block"
	"dwmblocks/internal/config"
	"dwmblocks/internal/eventbus"
	"dwmblocks/internal/runtime/supervisor"
	"dwmblocks/internal/scheduler"
	"dwmblocks/internal/sink"
	"dwmblocks/internal/systemd"
	"dwmblocks/internal/watch"
	logx "dwmblocks/pkg/logx"
)

// Blocks is the construction-time block list.
type Blocks struct {
	// BasePath is prepended to every command by plain concatenation.
	BasePath  string
	Separator string
	Defs      []block.Def
}

// Options are command-line overrides applied on top of the config file.
type Options struct {
	// SinkKind replaces sink.kind when set.
	SinkKind string
	// Once builds the app for a single tick: nothing is published and no
	// background services are started.
	Once bool
}

type App struct {
	cfg  *config.Config
	opts Options

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *block.Registry
	pub  sink.Publisher

	sched   *scheduler.Scheduler
	notify  *systemd.Notifier
	watcher *watch.ScriptWatcher

	sup *supervisor.Supervisor
}

func NewApp(cfgPath string, blocks Blocks, opts Options) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if k := strings.TrimSpace(opts.SinkKind); k != "" {
		cfg.Sink.Kind = k
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	reg, err := block.Build(blocks.BasePath, blocks.Defs)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	run, err := mapRunner(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	schedOpts, err := mapSchedulerOptions(cfg, blocks.Separator)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	var pub sink.Publisher = sink.PublisherFunc(func(string) {})
	if !opts.Once {
		pub, err = buildSink(cfg, log.With(logx.String("comp", "sink")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
	}

	bus := eventbus.New()
	schedOpts.Logger = log.With(logx.String("comp", "scheduler"))
	schedOpts.Bus = bus

	a := &App{
		cfg:   cfg,
		opts:  opts,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		reg:   reg,
		pub:   pub,
		sched: scheduler.New(reg, run, pub, schedOpts),
	}
	if !opts.Once {
		if cfg.Systemd.Notify {
			a.notify = systemd.New(bus, log.With(logx.String("comp", "systemd")))
		}
		if cfg.Watch.Enabled {
			a.watcher = watch.NewScriptWatcher(reg.Commands(), log.With(logx.String("comp", "watch")))
		}
	}

	log.Info("app initialized",
		logx.Int("blocks", reg.Len()),
		logx.String("sink", cfg.Sink.Kind),
		logx.String("shell", run.Shell),
		logx.Duration("timeout", run.Timeout),
		logx.String("on_failure", cfg.Runner.OnFailure),
		logx.Bool("systemd_notify", a.notify != nil),
		logx.Bool("watch", a.watcher != nil))
	return a, nil
}

// Start runs the scheduler and its companions under one supervisor.
// A fatal scheduler error cancels everything; see Done and Err.
func (a *App) Start(ctx context.Context) error {
	if a.opts.Once {
		return errors.New("app built with Once; use RunOnce")
	}
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.notify != nil {
		a.sup.Go("systemd", a.notify.Run)
	}
	if a.watcher != nil {
		// Losing the watcher only loses diagnostics; restart it rather than fail.
		a.sup.GoRestart("watch", time.Second, time.Minute, a.watcher.Run)
	}
	a.sup.Go("scheduler", a.sched.Run)
	return nil
}

// RunOnce runs a single tick and returns the aggregate line.
func (a *App) RunOnce(ctx context.Context) (string, error) {
	if err := a.sched.Tick(ctx); err != nil {
		return "", err
	}
	return a.sched.Aggregate(), nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop cancels all goroutines and waits for them within ctx, then releases sinks and logs.
//
// A block command that is still running is killed through the canceled context.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	if a.sup != nil {
		// The supervisor's own first error is reported through Err, not here.
		_ = a.sup.Stop(ctx)
		if err := ctx.Err(); err != nil {
			a.log.Warn("stop deadline reached; goroutines still running", logx.Int64("active", a.sup.Active()))
			errs = append(errs, err)
		}
	}
	if c, ok := a.pub.(closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}

	a.log.Info("stopped")
	if err := a.logs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log: %w", err))
	}
	return errors.Join(errs...)
}
