package ble

import (
	"context"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"

	"mitemp-gateway/internal/registry"
)

type Options struct {
	Adapter string // "hci0" by default
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(opts Options, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// Run scans until ctx is cancelled, delivering every advertisement to
// onAdv from a single goroutine.
func (l *Listener) Run(ctx context.Context, onAdv func(Advertisement)) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started", "adapter", l.opts.Adapter)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr, err := registry.ParseAddress(r.Address.String())
		if err != nil {
			return
		}
		for _, payload := range framesOf(r) {
			onAdv(Advertisement{
				Address: addr,
				Payload: payload,
				RSSI:    int(r.RSSI),
			})
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

// framesOf returns the raw advertisement when the platform exposes it.
// BlueZ only exposes parsed fields, so each 16-bit service data entry is
// re-encoded as the single AD element the sensor sent.
func framesOf(r bluetooth.ScanResult) [][]byte {
	if raw := r.Bytes(); len(raw) > 0 {
		return [][]byte{append([]byte(nil), raw...)}
	}

	var frames [][]byte
	for _, sd := range r.ServiceData() {
		if !sd.UUID.Is16Bit() {
			continue
		}
		frames = append(frames, ServiceDataFrame(sd.UUID.Get16Bit(), sd.Data))
	}
	return frames
}

// ServiceDataFrame encodes a "Service Data - 16-bit UUID" AD element.
func ServiceDataFrame(uuid uint16, data []byte) []byte {
	frame := make([]byte, 0, 4+len(data))
	frame = append(frame, byte(3+len(data)), adTypeServiceData16, byte(uuid), byte(uuid>>8))
	return append(frame, data...)
}
