// Package runner executes block commands and captures their output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultShell = "bash"

// waitDelay bounds how long Wait keeps draining pipes after the process was
// killed (grandchildren may still hold stdout open).
const waitDelay = 2 * time.Second

var (
	// ErrLaunch means the command could not be started at all.
	ErrLaunch = errors.New("command launch failed")
	// ErrDecode means stdout was not valid UTF-8 text.
	ErrDecode = errors.New("command output is not valid text")
	// ErrTimeout means the command outlived the configured timeout and was killed.
	ErrTimeout = errors.New("command timed out")
)

// Result is the outcome of one command run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs one block command synchronously.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, command string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, command string) (Result, error) { return f(ctx, command) }

// ShellRunner runs `<Shell> <command>` and waits for it to exit.
//
// A non-zero exit status is not an error: whatever the command printed on
// stdout is still returned.
type ShellRunner struct {
	Shell string
	// Timeout bounds a single run. Zero waits forever.
	Timeout time.Duration
}

func (r ShellRunner) Run(ctx context.Context, command string) (Result, error) {
	shell := strings.TrimSpace(r.Shell)
	if shell == "" {
		shell = DefaultShell
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, shell, command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stderr:   strings.ToValidUTF8(stderr.String(), string(utf8.RuneError)),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if r.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: after %s: %w", command, r.Timeout, ErrTimeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("%s %s: %v: %w", shell, command, err, ErrLaunch)
		}
	}

	if !utf8.Valid(stdout.Bytes()) {
		return res, fmt.Errorf("%s: %w", command, ErrDecode)
	}
	res.Stdout = stdout.String()
	return res, nil
}
