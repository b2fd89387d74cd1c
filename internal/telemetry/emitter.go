package telemetry

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/temoto/atomic_clock"

	"mitemp-gateway/internal/registry"
)

// Sink delivers one serialized message to one topic. Any false result is a
// delivery failure.
type Sink interface {
	Publish(topic string, payload []byte) bool
}

// Emitter completes decoded records and publishes them. It does not retry
// or buffer; that is the sink's business.
type Emitter struct {
	sink        Sink
	logger      *slog.Logger
	now         func() time.Time
	lastSuccess atomic_clock.Clock
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// NewEmitter creates an Emitter publishing to sink.
func NewEmitter(sink Sink, logger *slog.Logger, opts ...Option) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit stamps rec with the sensor name, current time and rssi, then
// publishes it to the sensor's topic. It reports whether the sink accepted
// the message.
func (e *Emitter) Emit(sensor registry.Sensor, rec Telemetry, rssi int) bool {
	now := e.now()
	rec.Sensor = sensor.Name
	rec.Time = now.Unix()
	rec.RSSI = rssi

	data, err := json.Marshal(rec)
	if err != nil {
		e.logger.Error("telemetry: marshal failed", "addr", sensor.Address.String(), "error", err)
		return false
	}

	if !e.sink.Publish(sensor.Topic, data) {
		e.logger.Error("telemetry: publish failed", "topic", sensor.Topic, "payload", string(data))
		return false
	}

	e.lastSuccess.SetNow()
	e.logger.Info("telemetry: published", "topic", sensor.Topic, "payload", string(data))
	return true
}

// SinceLastSuccess returns how long ago the sink last accepted a message.
// ok is false if nothing has been delivered yet. The age is measured on the
// monotonic clock, so wall-clock steps do not affect it. Safe to call from
// any goroutine.
func (e *Emitter) SinceLastSuccess() (age time.Duration, ok bool) {
	if e.lastSuccess.IsZero() {
		return 0, false
	}
	return atomic_clock.Since(&e.lastSuccess), true
}
