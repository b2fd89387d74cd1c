package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mitemp-gateway/internal/ble"
	"mitemp-gateway/internal/config"
	"mitemp-gateway/internal/health"
	"mitemp-gateway/internal/httpapi"
	"mitemp-gateway/internal/journal"
	"mitemp-gateway/internal/mqtt"
	"mitemp-gateway/internal/registry"
	"mitemp-gateway/internal/telemetry"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"mqtt_topic_prefix", cfg.MQTTTopicPrefix,
		"ble_adapter", cfg.BLEAdapter,
		"http_addr", cfg.HTTPAddr,
		"watchdog_timeout", cfg.WatchdogTimeout,
		"journal_path", cfg.JournalPath,
		"status_led_pin", cfg.StatusLEDPin,
	)

	reg := registry.Build(cfg.Devices, cfg.MQTTTopicPrefix, logger)
	if reg.Len() == 0 {
		logger.Warn("no sensors registered; set BLE_DEVICES")
	}

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil {
				logger.Error(name+" stopped", "error", err)
			}
		}()
	}

	var sink telemetry.Sink = mqttClient
	var journalReader httpapi.JournalReader
	var journalSink *journal.Sink
	journalDone := make(chan struct{})
	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(db); err != nil {
				logger.Error("journal close", "error", err)
			}
		}()
		store := journal.NewStore(db, logger)
		journalSink = journal.NewSink(mqttClient, store, logger, journal.DefaultBuffer)
		go func() {
			defer close(journalDone)
			journalSink.Run()
		}()
		sink = journalSink
		journalReader = store
		logger.Info("journal enabled", "path", cfg.JournalPath)
	}

	emitter := telemetry.NewEmitter(sink, logger)
	monitor := health.NewMonitor(emitter, cfg.WatchdogTimeout)

	var led *health.LED
	if cfg.StatusLEDPin != "" {
		led, err = health.OpenLED(cfg.StatusLEDPin, logger)
		if err != nil {
			logger.Warn("status led unavailable; continuing without it", "pin", cfg.StatusLEDPin, "error", err)
			led = nil
		}
	}

	reporter := health.NewReporter(mqttClient, monitor, reg.Len(), cfg.MQTTStatusInterval, led, logger)
	goRun("status reporter", reporter.Run)
	goRun("watchdog", health.NewWatchdog(monitor, logger).Run)

	goRun("mqtt connect", func(ctx context.Context) error {
		// paho keeps retrying in the background; this only reports the first outcome.
		err := mqttClient.Connect(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	handler := ble.NewHandler(reg, emitter, logger)
	listener := ble.NewListener(ble.Options{Adapter: cfg.BLEAdapter}, logger)
	goRun("ble listener", func(ctx context.Context) error {
		err := listener.Run(ctx, handler.HandleAdvertisement)
		if err != nil {
			logger.Warn("ble listener could not be initialized; gateway continues without BLE", "error", err)
		}
		return nil
	})

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		api := httpapi.NewAPI(monitor, reg, journalReader, logger)
		srv = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(api), logger)
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			errCh <- srv.ListenAndServe()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
		srv = nil
	}

	logger.Info("gateway shutting down")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		shutdownCancel()
	}

	// Stop scanning first; the journal is closed only once nothing can
	// publish into it, then flushed before going offline on the broker.
	cancel()
	wg.Wait()
	if journalSink != nil {
		journalSink.Close()
		<-journalDone
	}
	mqttClient.Disconnect()

	return runErr
}
