package health

import (
	"context"
	"log/slog"
	"time"

	"mitemp-gateway/internal/mqtt"
)

// StatusPublisher is the availability side of the MQTT client.
type StatusPublisher interface {
	PublishStatus(status mqtt.Status) error
	IsConnected() bool
	Connected() <-chan struct{}
}

// Reporter publishes the status record periodically and after every
// reconnect, and keeps the status LED in step with connectivity.
type Reporter struct {
	pub      StatusPublisher
	monitor  *Monitor
	sensors  int
	interval time.Duration
	led      *LED
	logger   *slog.Logger
}

const ledRefresh = time.Second

func NewReporter(pub StatusPublisher, monitor *Monitor, sensors int, interval time.Duration, led *LED, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		pub:      pub,
		monitor:  monitor,
		sensors:  sensors,
		interval: interval,
		led:      led,
		logger:   logger,
	}
}

func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var ledC <-chan time.Time
	if r.led != nil {
		t := time.NewTicker(ledRefresh)
		defer t.Stop()
		ledC = t.C
		defer r.led.Set(false)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.pub.Connected():
			r.PublishStatus()
		case <-ticker.C:
			r.PublishStatus()
		case <-ledC:
			r.UpdateLED()
		}
	}
}

// Status builds the current availability record.
func (r *Reporter) Status() mqtt.Status {
	rep := r.monitor.Check()
	s := mqtt.Status{
		Online:        true,
		UptimeSeconds: int64(rep.Uptime / time.Second),
		Sensors:       r.sensors,
	}
	if !rep.LastSuccess.IsZero() {
		last := rep.LastSuccess.UTC()
		s.LastSuccess = &last
	}
	return s
}

func (r *Reporter) PublishStatus() {
	if !r.pub.IsConnected() {
		r.logger.Debug("status: skipped, mqtt not connected")
		return
	}
	if err := r.pub.PublishStatus(r.Status()); err != nil {
		r.logger.Warn("status: publish failed", "error", err)
	}
}

// UpdateLED lights the LED while MQTT is up and deliveries are recent.
func (r *Reporter) UpdateLED() {
	if r.led == nil {
		return
	}
	r.led.Set(r.pub.IsConnected() && r.monitor.Healthy())
}
