package health

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// pinOut is the part of gpio.PinOut the LED drives.
type pinOut interface {
	Out(l gpio.Level) error
}

// LED is a single status indicator on a GPIO pin.
type LED struct {
	pin    pinOut
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	state gpio.Level
	known bool
}

// OpenLED initialises the host drivers and claims the named pin, e.g.
// "GPIO17".
func OpenLED(name string, logger *slog.Logger) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return newLED(p, name, logger), nil
}

func newLED(pin pinOut, name string, logger *slog.Logger) *LED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LED{pin: pin, name: name, logger: logger}
}

// Set drives the pin; unchanged states are not rewritten.
func (l *LED) Set(on bool) {
	level := gpio.Level(on)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.known && l.state == level {
		return
	}
	if err := l.pin.Out(level); err != nil {
		l.logger.Error("led: gpio write failed", "pin", l.name, "error", err)
		return
	}
	l.state = level
	l.known = true
}
