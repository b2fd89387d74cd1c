package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends one sd_notify state string.
type Notifier func(state string) (bool, error)

// Watchdog keeps the systemd watchdog fed only while the monitor is
// healthy, so a gateway that stopped delivering gets restarted.
type Watchdog struct {
	monitor  *Monitor
	logger   *slog.Logger
	notify   Notifier
	interval time.Duration
}

type WatchdogOption func(*Watchdog)

func WithNotifier(n Notifier) WatchdogOption {
	return func(w *Watchdog) { w.notify = n }
}

// WithInterval overrides the keepalive period derived from WATCHDOG_USEC.
func WithInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) { w.interval = d }
}

func NewWatchdog(monitor *Monitor, logger *slog.Logger, opts ...WatchdogOption) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchdog{
		monitor: monitor,
		logger:  logger,
		notify:  func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}

	if d, err := daemon.SdWatchdogEnabled(false); err != nil {
		logger.Warn("watchdog: cannot read systemd watchdog settings", "error", err)
	} else if d > 0 {
		w.interval = d / 2
	}

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run reports readiness, then pings the watchdog until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	w.send(daemon.SdNotifyReady)
	defer w.send(daemon.SdNotifyStopping)

	if w.interval <= 0 {
		w.logger.Info("watchdog: systemd watchdog not enabled")
		<-ctx.Done()
		return nil
	}

	w.logger.Info("watchdog: started", "interval", w.interval, "timeout", w.monitor.Timeout())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick pings the watchdog once if the gateway is healthy.
func (w *Watchdog) Tick() {
	r := w.monitor.Check()
	if !r.Healthy {
		w.logger.Warn("watchdog: no successful publish, withholding keepalive",
			"age", r.Age.Round(time.Second),
			"timeout", w.monitor.Timeout(),
		)
		return
	}
	w.send(daemon.SdNotifyWatchdog)
}

func (w *Watchdog) send(state string) {
	if _, err := w.notify(state); err != nil {
		w.logger.Error("watchdog: sd_notify failed", "state", state, "error", err)
	}
}
