// Package health judges whether the gateway is still delivering telemetry
// and reports that to systemd, the status topic and an optional LED.
package health

import (
	"time"
)

// LastSuccessSource reports how long ago a record was last delivered; ok is
// false before the first delivery.
type LastSuccessSource interface {
	SinceLastSuccess() (age time.Duration, ok bool)
}

// Report is a point-in-time health judgement.
type Report struct {
	Healthy     bool
	LastSuccess time.Time // zero if nothing was delivered yet
	Age         time.Duration
	Uptime      time.Duration
}

// Monitor is healthy while the last successful publish is at most timeout
// old. Before the first success it is healthy for one timeout after start.
type Monitor struct {
	source  LastSuccessSource
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

type MonitorOption func(*Monitor)

func WithNow(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(source LastSuccessSource, timeout time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		source:  source,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	return m
}

func (m *Monitor) Check() Report {
	now := m.now()
	r := Report{Uptime: now.Sub(m.started)}

	if age, ok := m.source.SinceLastSuccess(); ok {
		r.Age = age
		r.LastSuccess = now.Add(-age)
	} else {
		r.Age = r.Uptime
	}
	r.Healthy = r.Age <= m.timeout
	return r
}

func (m *Monitor) Healthy() bool {
	return m.Check().Healthy
}

func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}
