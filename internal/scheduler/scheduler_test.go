package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"dwmblocks/internal/block"
	"dwmblocks/internal/eventbus"
	"dwmblocks/internal/runner"
	"dwmblocks/internal/sink"
	logx "dwmblocks/pkg/logx"
)

type recorder struct{ published []string }

func (r *recorder) Publish(text string) { r.published = append(r.published, text) }

func newRegistry(t *testing.T, defs ...block.Def) *block.Registry {
	t.Helper()
	reg, err := block.Build("", defs)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return reg
}

// countingRunner answers "<command><n>" on the n-th run of command.
func countingRunner() runner.Runner {
	calls := map[string]int{}
	return runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		calls[command]++
		return runner.Result{Stdout: fmt.Sprintf("%s%d\n", command, calls[command])}, nil
	})
}

// stopAfter cancels the run on the n-th sleep.
func stopAfter(cancel context.CancelFunc, n int) Sleeper {
	sleeps := 0
	return SleeperFunc(func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	})
}

func TestDueBlocksExamples(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t,
		block.Def{Interval: 5, Command: "a"},
		block.Def{Interval: 10, Command: "b"},
	)
	s := New(reg, countingRunner(), &recorder{}, Options{})

	tests := []struct {
		elapsed uint64
		want    []int
	}{
		{elapsed: 0, want: []int{0, 1}},
		{elapsed: 10, want: []int{0, 1}},
		{elapsed: 5, want: []int{0}},
		{elapsed: 3, want: nil},
	}
	for _, tt := range tests {
		if got := s.DueBlocks(tt.elapsed); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("DueBlocks(%d) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}

func TestDueBlocksMatchesModulo(t *testing.T) {
	t.Parallel()
	var defs []block.Def
	for interval := 1; interval <= 12; interval++ {
		defs = append(defs, block.Def{Interval: interval, Command: "x"})
	}
	s := New(newRegistry(t, defs...), countingRunner(), &recorder{}, Options{})

	for elapsed := uint64(0); elapsed <= 120; elapsed++ {
		due := map[int]bool{}
		for _, i := range s.DueBlocks(elapsed) {
			due[i] = true
		}
		for i, d := range defs {
			want := elapsed%uint64(d.Interval) == 0
			if due[i] != want {
				t.Fatalf("elapsed=%d interval=%d: due=%v, want %v", elapsed, d.Interval, due[i], want)
			}
		}
	}
}

func TestTickRendersTrimmedOutput(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t, block.Def{Prefix: "| ", Suffix: " ", Interval: 5, Command: "cpu"})
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		return runner.Result{Stdout: "  42%\n"}, nil
	})
	rec := &recorder{}
	s := New(reg, run, rec, Options{})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if got := reg.State(0).Rendered; got != "| 42% " {
		t.Fatalf("Rendered = %q", got)
	}
	if !reflect.DeepEqual(rec.published, []string{"| 42% "}) {
		t.Fatalf("published = %q", rec.published)
	}
}

func TestRunPublishesAfterEveryBlockUpdate(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t,
		block.Def{Prefix: "", Suffix: " ", Interval: 2, Command: "A"},
		block.Def{Prefix: "", Suffix: "", Interval: 3, Command: "B"},
	)
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(reg, countingRunner(), rec, Options{Separator: "-", Sleeper: stopAfter(cancel, 3)})

	// Ticks at elapsed 0, 1, 2; canceled during the third sleep.
	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	want := []string{
		"A1 -",   // elapsed 0: A rendered, B still empty
		"A1 -B1", // elapsed 0: B rendered
		"A2 -B1", // elapsed 2: only A reruns
	}
	if !reflect.DeepEqual(rec.published, want) {
		t.Fatalf("published = %q, want %q", rec.published, want)
	}
	if got := s.Elapsed(); got != 2 {
		t.Fatalf("Elapsed = %d, want 2", got)
	}
}

func TestSlowCommandShiftsPhase(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t,
		block.Def{Interval: 3, Command: "slow"},
		block.Def{Interval: 2, Command: "fast"},
	)

	type call struct {
		command string
		elapsed uint64
	}
	var calls []call
	var s *Scheduler
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		calls = append(calls, call{command, s.Elapsed()})
		if command == "slow" {
			return runner.Result{Stdout: "s", Duration: 4*time.Second + 900*time.Millisecond}, nil
		}
		return runner.Result{Stdout: "f"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s = New(reg, run, &recorder{}, Options{Sleeper: stopAfter(cancel, 3)})
	_ = s.Run(ctx)

	// elapsed 0: both due; slow adds floor(4.9s)=4 before fast runs.
	// elapsed 5: nothing due (fast would have run at 2 and 4 without the drift).
	// elapsed 6: both due again.
	want := []call{{"slow", 0}, {"fast", 4}, {"slow", 6}, {"fast", 10}}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
}

func TestStderrDoesNotChangeRenderedText(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t, block.Def{Prefix: "[", Suffix: "]", Interval: 1, Command: "bat"})
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		return runner.Result{Stdout: "80%", Stderr: "acpi: no battery\n"}, nil
	})
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(reg, run, &recorder{}, Options{Bus: bus, WarnEvery: time.Hour})
	for i := 0; i < 3; i++ {
		if err := s.Tick(context.Background()); err != nil {
			t.Fatalf("Tick error: %v", err)
		}
	}
	if got := reg.State(0).Rendered; got != "[80%]" {
		t.Fatalf("Rendered = %q", got)
	}

	e := <-events
	if e.Type != eventbus.TypeBlockRendered {
		t.Fatalf("first event = %s", e.Type)
	}
	if d := e.Data.(eventbus.BlockRendered); !d.Warned || d.Index != 0 {
		t.Fatalf("event data = %+v", d)
	}
}

func TestPlaceholderPolicyContinues(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t,
		block.Def{Prefix: "<", Suffix: ">", Interval: 1, Command: "bad"},
		block.Def{Interval: 1, Command: "good"},
	)
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		if command == "bad" {
			return runner.Result{}, runner.ErrLaunch
		}
		return runner.Result{Stdout: "ok"}, nil
	})
	rec := &recorder{}
	s := New(reg, run, rec, Options{Separator: " ", FailurePolicy: PolicyPlaceholder, Placeholder: "?"})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	want := []string{"<?> ", "<?> ok"}
	if !reflect.DeepEqual(rec.published, want) {
		t.Fatalf("published = %q, want %q", rec.published, want)
	}
}

func TestEmptyPlaceholderIsKept(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t, block.Def{Prefix: "<", Suffix: ">", Interval: 1, Command: "bad"})
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		return runner.Result{}, runner.ErrLaunch
	})
	rec := &recorder{}
	s := New(reg, run, rec, Options{FailurePolicy: PolicyPlaceholder, Placeholder: ""})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if got := s.Aggregate(); got != "<>" {
		t.Fatalf("Aggregate = %q, want %q", got, "<>")
	}
}

func TestFailedBlockLogsStderr(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sched.log")
	logs, log := logx.New(logx.Config{Level: "error", File: logx.FileConfig{Enabled: true, Path: path}})

	reg := newRegistry(t, block.Def{Interval: 1, Command: "slow"})
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		return runner.Result{Stderr: "fetch: host unreachable\n", Duration: 2 * time.Second}, runner.ErrTimeout
	})
	s := New(reg, run, &recorder{}, Options{Logger: log, FailurePolicy: PolicyPlaceholder, Placeholder: "?"})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if err := logs.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"stderr":"fetch: host unreachable"`) {
		t.Fatalf("log does not carry stderr:\n%s", data)
	}
	if s.Elapsed() != 2 {
		t.Fatalf("Elapsed = %d, want 2", s.Elapsed())
	}
}

func TestFatalPolicyStopsRun(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t,
		block.Def{Interval: 1, Command: "bad"},
		block.Def{Interval: 1, Command: "never"},
	)
	var ran []string
	run := runner.RunnerFunc(func(ctx context.Context, command string) (runner.Result, error) {
		ran = append(ran, command)
		return runner.Result{}, fmt.Errorf("exec: %w", runner.ErrDecode)
	})
	rec := &recorder{}
	s := New(reg, run, rec, Options{})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrExecution) || !errors.Is(err, runner.ErrDecode) {
		t.Fatalf("Run error = %v, want ErrExecution wrapping ErrDecode", err)
	}
	if !reflect.DeepEqual(ran, []string{"bad"}) {
		t.Fatalf("ran = %v", ran)
	}
	if len(rec.published) != 0 {
		t.Fatalf("published = %q, want nothing", rec.published)
	}
}

func TestTickPublishesTickDone(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t, block.Def{Interval: 2, Command: "a"})
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(reg, countingRunner(), sink.PublisherFunc(func(string) {}), Options{Bus: bus})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	<-events // block.rendered
	e := <-events
	if e.Type != eventbus.TypeTickDone {
		t.Fatalf("event = %s, want %s", e.Type, eventbus.TypeTickDone)
	}
	if d := e.Data.(eventbus.TickDone); d.Ran != 1 || d.Elapsed != 0 {
		t.Fatalf("tick data = %+v", d)
	}
}

func TestWarnThrottleCountsSuppressed(t *testing.T) {
	t.Parallel()
	w := newWarnThrottle(time.Hour)
	if _, ok := w.allow(); !ok {
		t.Fatal("first warning must pass")
	}
	for i := 0; i < 3; i++ {
		if _, ok := w.allow(); ok {
			t.Fatal("warning within the window must be suppressed")
		}
	}
	if w.suppressed != 3 {
		t.Fatalf("suppressed = %d, want 3", w.suppressed)
	}

	unlimited := newWarnThrottle(0)
	for i := 0; i < 5; i++ {
		if n, ok := unlimited.allow(); !ok || n != 0 {
			t.Fatalf("unlimited throttle returned (%d, %v)", n, ok)
		}
	}
}

func TestParseFailurePolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]FailurePolicy{"": PolicyFatal, "Fatal": PolicyFatal, " placeholder ": PolicyPlaceholder} {
		got, err := ParseFailurePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseFailurePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFailurePolicy("retry"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestRealSleeperHonorsCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (realSleeper{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep error = %v", err)
	}
}
