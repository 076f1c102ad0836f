package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dwmblocks/internal/block"
	"dwmblocks/internal/eventbus"
	"dwmblocks/internal/runner"
	"dwmblocks/internal/sink"
	logx "dwmblocks/pkg/logx"
)

// ErrExecution wraps any failure to run a block command (launch, decode, timeout).
var ErrExecution = errors.New("block execution failed")

const DefaultQuantum = time.Second

// Options tunes a Scheduler. Zero values pick the defaults.
type Options struct {
	// Separator is inserted between consecutive rendered blocks.
	Separator string

	Logger logx.Logger
	Bus    eventbus.Bus

	Sleeper Sleeper
	// Quantum is the real sleep between ticks. The clock still advances by
	// exactly one per tick whatever its value.
	Quantum time.Duration

	FailurePolicy FailurePolicy
	// Placeholder replaces the output of a failed block under PolicyPlaceholder.
	// It is used as given; empty renders just the block's prefix and suffix.
	Placeholder string

	// WarnEvery throttles stderr warnings per block. Zero logs all of them.
	WarnEvery time.Duration
}

// Scheduler owns the clock and is the only writer of the registry.
// It is not safe for concurrent use.
type Scheduler struct {
	reg *block.Registry
	run runner.Runner
	pub sink.Publisher

	sep         string
	log         logx.Logger
	bus         eventbus.Bus
	sleeper     Sleeper
	quantum     time.Duration
	policy      FailurePolicy
	placeholder string
	warn        []*warnThrottle

	elapsed uint64
}

func New(reg *block.Registry, run runner.Runner, pub sink.Publisher, opts Options) *Scheduler {
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Sleeper == nil {
		opts.Sleeper = realSleeper{}
	}
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}

	warn := make([]*warnThrottle, reg.Len())
	for i := range warn {
		warn[i] = newWarnThrottle(opts.WarnEvery)
	}

	return &Scheduler{
		reg:         reg,
		run:         run,
		pub:         pub,
		sep:         opts.Separator,
		log:         opts.Logger,
		bus:         opts.Bus,
		sleeper:     opts.Sleeper,
		quantum:     opts.Quantum,
		policy:      opts.FailurePolicy,
		placeholder: opts.Placeholder,
		warn:        warn,
	}
}

// Elapsed returns the current clock value.
func (s *Scheduler) Elapsed() uint64 { return s.elapsed }

// Aggregate returns the current joined status line.
func (s *Scheduler) Aggregate() string { return s.reg.Join(s.sep) }

// DueBlocks returns, in registry order, the blocks whose interval divides elapsed.
// Every block is due at zero.
func (s *Scheduler) DueBlocks(elapsed uint64) []int {
	var due []int
	for i := 0; i < s.reg.Len(); i++ {
		if elapsed%uint64(s.reg.Spec(i).Interval) == 0 {
			due = append(due, i)
		}
	}
	return due
}

// Run loops forever: tick, sleep one quantum, advance the clock by one.
//
// It returns only when ctx is canceled (ctx.Err()) or when a block fails
// under PolicyFatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		logx.Int("blocks", s.reg.Len()),
		logx.String("policy", s.policy.String()),
		logx.Duration("quantum", s.quantum))
	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		if err := s.sleeper.Sleep(ctx, s.quantum); err != nil {
			return err
		}
		s.elapsed++
	}
}

// Tick runs every block due at the current clock value.
//
// The due set is computed once, before any command runs; latency added by
// one block does not change which blocks run in this tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	due := s.DueBlocks(s.elapsed)
	for _, i := range due {
		if err := s.runBlock(ctx, i); err != nil {
			return err
		}
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTickDone,
		Data: eventbus.TickDone{Elapsed: s.elapsed, Ran: len(due)},
	})
	s.log.Debug("tick done", logx.Uint64("elapsed", s.elapsed), logx.Int("ran", len(due)))
	return nil
}

func (s *Scheduler) runBlock(ctx context.Context, i int) error {
	spec := s.reg.Spec(i)
	log := s.log.With(logx.Int("block", i), logx.String("command", spec.Command))

	res, err := s.run.Run(ctx, spec.Command)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	var rendered string
	if err != nil {
		err = fmt.Errorf("block %d (%s): %w: %w", i, spec.Command, ErrExecution, err)
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeBlockFailed,
			Data: eventbus.BlockFailed{Index: i, Command: spec.Command, Err: err},
		})
		fields := []logx.Field{logx.Err(err)}
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			fields = append(fields, logx.String("stderr", stderr))
		}
		if s.policy == PolicyFatal {
			log.Error("block failed", fields...)
			return err
		}
		log.Error("block failed, rendering placeholder", fields...)
		rendered = spec.Prefix + s.placeholder + spec.Suffix
	} else {
		if res.Stderr != "" {
			s.warnStderr(log, i, res.Stderr)
		}
		rendered = block.Render(spec, res.Stdout)
	}

	s.reg.SetRendered(i, rendered)
	if res.Duration > 0 {
		s.elapsed += uint64(res.Duration / time.Second)
	}

	s.pub.Publish(s.reg.Join(s.sep))

	if err == nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeBlockRendered,
			Data: eventbus.BlockRendered{
				Index:    i,
				Command:  spec.Command,
				Duration: res.Duration,
				Warned:   res.Stderr != "",
			},
		})
		if log.Enabled(logx.LevelTrace) {
			log.Trace("block rendered", logx.String("text", rendered), logx.Duration("took", res.Duration))
		}
	}
	return nil
}

func (s *Scheduler) warnStderr(log logx.Logger, i int, stderr string) {
	suppressed, ok := s.warn[i].allow()
	if !ok {
		return
	}
	fields := []logx.Field{logx.String("stderr", strings.TrimSpace(stderr))}
	if suppressed > 0 {
		fields = append(fields, logx.Int("suppressed", suppressed))
	}
	log.Warn("block wrote to stderr", fields...)
}
