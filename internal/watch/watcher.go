// Package watch reports edits to block command files while the bar runs.
//
// Block commands are re-read from disk on every run, so an edit shows up on
// the block's next interval and a deleted script makes that block fail. The
// watcher only logs these changes; it never touches the schedule.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	logx "dwmblocks/pkg/logx"
)

// ScriptWatcher watches the directories holding block commands.
type ScriptWatcher struct {
	log logx.Logger

	// files maps a cleaned command path to the indexes of blocks running it.
	files map[string][]int
	dirs  []string
}

// NewScriptWatcher watches every command that exists on disk. Commands that
// are not files (e.g. resolved through PATH by the shell) are skipped.
func NewScriptWatcher(commands []string, log logx.Logger) *ScriptWatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &ScriptWatcher{log: log, files: map[string][]int{}}
	dirSet := map[string]struct{}{}
	for i, c := range commands {
		p, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		w.files[p] = append(w.files[p], i)
		dirSet[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirSet {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)
	return w
}

// Dirs returns the watched directories.
func (w *ScriptWatcher) Dirs() []string { return w.dirs }

// Run blocks until ctx is canceled or the underlying watcher fails.
func (w *ScriptWatcher) Run(ctx context.Context) error {
	if len(w.dirs) == 0 {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch directories, not files: editors replace files by rename,
	// which would silently drop a per-file watch.
	for _, d := range w.dirs {
		if err := fw.Add(d); err != nil {
			return err
		}
	}
	w.log.Debug("watching block scripts", logx.Int("dirs", len(w.dirs)), logx.Int("files", len(w.files)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("fsnotify events channel closed")
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed")
			}
			return err
		}
	}
}

type change int

const (
	changeNone change = iota
	changeModified
	changeRemoved
	changeUnreadable
)

func (w *ScriptWatcher) classify(ev fsnotify.Event) change {
	if _, ok := w.files[filepath.Clean(ev.Name)]; !ok {
		return changeNone
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return changeRemoved
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return changeModified
	case ev.Has(fsnotify.Chmod):
		if fi, err := os.Stat(ev.Name); err == nil && fi.Mode().Perm()&0o444 == 0 {
			return changeUnreadable
		}
	}
	return changeNone
}

func (w *ScriptWatcher) handle(ev fsnotify.Event) {
	c := w.classify(ev)
	if c == changeNone {
		return
	}
	fields := []logx.Field{logx.String("path", ev.Name), logx.Any("blocks", w.files[filepath.Clean(ev.Name)])}
	switch c {
	case changeRemoved:
		w.log.Warn("block script removed; its next run will fail", fields...)
	case changeModified:
		w.log.Info("block script changed; takes effect on its next run", fields...)
	case changeUnreadable:
		w.log.Warn("block script is no longer readable", fields...)
	}
}
