package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"mitemp-gateway/internal/registry"
	"mitemp-gateway/internal/telemetry"
)

// Advertisement is one received frame. Payload is only valid for the
// duration of the callback that delivers it.
type Advertisement struct {
	Address registry.Address
	Payload []byte
	RSSI    int
}

// Emitter publishes a decoded record for a sensor.
type Emitter interface {
	Emit(sensor registry.Sensor, rec telemetry.Telemetry, rssi int) bool
}

// Handler runs the decode pipeline for every received advertisement.
type Handler struct {
	registry *registry.Registry
	emitter  Emitter
	logger   *slog.Logger
}

// NewHandler creates a Handler for the sensors in reg.
func NewHandler(reg *registry.Registry, emitter Emitter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: reg,
		emitter:  emitter,
		logger:   logger,
	}
}

// HandleAdvertisement looks up the sender, decodes the frame and emits the
// result. Every failure drops the frame; none of them stops the pipeline.
func (h *Handler) HandleAdvertisement(adv Advertisement) {
	sensor, ok := h.registry.Lookup(adv.Address)
	if !ok {
		return
	}

	if h.logger.Enabled(context.Background(), slog.LevelDebug) {
		h.logger.Debug("ble: frame received",
			"addr", adv.Address.String(),
			"len", len(adv.Payload),
			"rssi", adv.RSSI,
			"data", hexBytes(adv.Payload),
		)
	}

	rec, format, err := Decode(adv.Payload, sensor)
	if err != nil {
		h.logDrop(sensor, format, err)
		return
	}

	h.logger.Debug("ble: frame decoded", "addr", adv.Address.String(), "format", format.String())
	h.emitter.Emit(sensor, rec, adv.RSSI)
}

// hexBytes defers hex encoding until a handler actually formats the record.
type hexBytes []byte

func (b hexBytes) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(b))
}

func (h *Handler) logDrop(sensor registry.Sensor, format Format, err error) {
	addr := sensor.Address.String()
	switch {
	case errors.Is(err, ErrUnrecognized):
		// foreign or partial frames are expected background noise
	case errors.Is(err, ErrHeaderMismatch):
		h.logger.Debug("ble: header mismatch", "addr", addr, "format", format.String())
	case errors.Is(err, ErrMissingKey):
		h.logger.Warn("ble: encrypted frame from sensor without bind key", "addr", addr, "sensor", sensor.Name, "format", format.String())
	case errors.Is(err, ErrAuthentication):
		h.logger.Error("ble: could not decrypt payload", "addr", addr, "sensor", sensor.Name, "format", format.String(), "error", err)
	default:
		h.logger.Error("ble: decode failed", "addr", addr, "format", format.String(), "error", err)
	}
}
