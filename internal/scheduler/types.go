package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FailurePolicy decides what a failed block command does to the loop.
type FailurePolicy int

const (
	// PolicyFatal stops the scheduler on the first failed block.
	PolicyFatal FailurePolicy = iota
	// PolicyPlaceholder renders a placeholder for the failed block and keeps going.
	PolicyPlaceholder
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyFatal:
		return "fatal"
	case PolicyPlaceholder:
		return "placeholder"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fatal":
		return PolicyFatal, nil
	case "placeholder":
		return PolicyPlaceholder, nil
	default:
		return PolicyFatal, fmt.Errorf("unknown failure policy %q (want fatal|placeholder)", s)
	}
}

// Sleeper waits between ticks. Sleep must return ctx.Err() early when ctx is canceled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// warnThrottle limits stderr warnings of one block and counts what it dropped.
type warnThrottle struct {
	lim        *rate.Limiter // nil: unlimited
	suppressed int
}

func newWarnThrottle(every time.Duration) *warnThrottle {
	if every <= 0 {
		return &warnThrottle{}
	}
	return &warnThrottle{lim: rate.NewLimiter(rate.Every(every), 1)}
}

// allow reports whether a warning may be logged now, and how many were
// dropped since the last one that was.
func (w *warnThrottle) allow() (int, bool) {
	if w.lim != nil && !w.lim.Allow() {
		w.suppressed++
		return 0, false
	}
	n := w.suppressed
	w.suppressed = 0
	return n, true
}
