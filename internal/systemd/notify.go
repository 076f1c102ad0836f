// Package systemd reports scheduler liveness to the service manager over
// sd_notify. Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dwmblocks/internal/eventbus"
	logx "dwmblocks/pkg/logx"
)

// Notifier sends READY=1 after the first completed tick and WATCHDOG=1 while
// ticks keep completing. A command that hangs stops the pings, so a unit with
// WatchdogSec= gets restarted.
//
// The bus subscription is taken in New, so ticks published before Run starts
// are still seen (up to the subscription buffer).
type Notifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	watchdog time.Duration

	events <-chan eventbus.Event
	unsub  func()
}

func New(bus eventbus.Bus, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("invalid systemd watchdog environment", logx.Err(err))
		wd = 0
	}
	return newNotifier(bus, log, func(state string) (bool, error) { return daemon.SdNotify(false, state) }, wd)
}

func newNotifier(bus eventbus.Bus, log logx.Logger, notify func(string) (bool, error), watchdog time.Duration) *Notifier {
	events, unsub := bus.Subscribe(16)
	return &Notifier{log: log, notify: notify, watchdog: watchdog, events: events, unsub: unsub}
}

// Run consumes tick events until ctx is canceled, then sends STOPPING=1.
// It releases the subscription on return and must be called at most once.
func (n *Notifier) Run(ctx context.Context) error {
	defer n.unsub()
	events := n.events

	ready := false
	var lastPing time.Time
	for {
		select {
		case <-ctx.Done():
			n.send(daemon.SdNotifyStopping)
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeTickDone {
				continue
			}
			d, _ := e.Data.(eventbus.TickDone)
			if !ready {
				ready = true
				n.send(daemon.SdNotifyReady + "\n" + fmt.Sprintf("STATUS=first tick ran %d blocks", d.Ran))
			}
			// Pinging at half the watchdog period is what sd_watchdog_enabled(3) recommends.
			if n.watchdog > 0 && e.Time.Sub(lastPing) >= n.watchdog/2 {
				lastPing = e.Time
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}
