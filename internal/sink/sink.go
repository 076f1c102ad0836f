// Package sink publishes the aggregated status line to a display.
//
// Publish is fire-and-forget everywhere: a sink never blocks the scheduler
// waiting for the display, never returns an error, and never retries.
package sink

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	logx "dwmblocks/pkg/logx"
)

// Kinds accepted by New.
const (
	KindXSetRoot = "xsetroot"
	KindStdout   = "stdout"
	KindTelegram = "telegram"
)

type Publisher interface {
	Publish(text string)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(text string)

func (f PublisherFunc) Publish(text string) { f(text) }

// XSetRoot sets the X root window name, which dwm draws as its status bar.
type XSetRoot struct {
	Binary string
	log    logx.Logger
}

func NewXSetRoot(log logx.Logger) *XSetRoot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &XSetRoot{Binary: "xsetroot", log: log}
}

// Publish spawns `xsetroot -name text` without waiting for it.
func (x *XSetRoot) Publish(text string) {
	cmd := exec.Command(x.Binary, "-name", text)
	if err := cmd.Start(); err != nil {
		x.log.Debug("publish failed", logx.String("sink", KindXSetRoot), logx.Err(err))
		return
	}
	// Reap the child so it does not linger as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			x.log.Debug("publish exited with error", logx.String("sink", KindXSetRoot), logx.Err(err))
		}
	}()
}

// Writer emits one line per publish, for bars that read status from a pipe.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	log logx.Logger
}

func NewWriter(w io.Writer, log logx.Logger) *Writer {
	if w == nil {
		w = logx.Stdout()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Writer{w: w, log: log}
}

func (s *Writer) Publish(text string) {
	// A newline inside the status would split it into two bar updates.
	line := strings.ReplaceAll(text, "\n", " ")
	s.mu.Lock()
	_, err := fmt.Fprintln(s.w, line)
	s.mu.Unlock()
	if err != nil {
		s.log.Debug("publish failed", logx.String("sink", KindStdout), logx.Err(err))
	}
}
