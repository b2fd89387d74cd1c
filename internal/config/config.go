package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"mitemp-gateway/internal/registry"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTBroker         string
	MQTTPort           int
	MQTTUser           string
	MQTTPassword       string
	MQTTClientID       string
	MQTTTopicPrefix    string
	MQTTStatusInterval time.Duration

	BLEAdapter string
	Devices    []registry.Entry

	// HTTPAddr is empty when the health endpoint is disabled (HTTP_ADDR=off).
	HTTPAddr        string
	WatchdogTimeout time.Duration

	// JournalPath and StatusLEDPin disable their feature when empty.
	JournalPath  string
	StatusLEDPin string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT must be in 1..65535, got %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = defaultClientID()
	}

	mqttTopicPrefix := strings.Trim(strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX")), "/")
	if mqttTopicPrefix == "" {
		mqttTopicPrefix = "mitemperature"
	}

	statusIntervalStr := strings.TrimSpace(os.Getenv("MQTT_STATUS_INTERVAL"))
	if statusIntervalStr == "" {
		statusIntervalStr = "60s"
	}
	statusInterval, err := time.ParseDuration(statusIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_STATUS_INTERVAL %q: %w", statusIntervalStr, err)
	}
	if statusInterval <= 0 {
		return Config{}, fmt.Errorf("MQTT_STATUS_INTERVAL must be positive, got %v", statusInterval)
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	devices, err := ParseDevices(os.Getenv("BLE_DEVICES"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BLE_DEVICES: %w", err)
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	switch strings.ToLower(httpAddr) {
	case "":
		httpAddr = ":8080"
	case "off":
		httpAddr = ""
	}

	watchdogTimeoutStr := strings.TrimSpace(os.Getenv("WATCHDOG_TIMEOUT"))
	if watchdogTimeoutStr == "" {
		watchdogTimeoutStr = "60s"
	}
	watchdogTimeout, err := time.ParseDuration(watchdogTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid WATCHDOG_TIMEOUT %q: %w", watchdogTimeoutStr, err)
	}
	if watchdogTimeout <= 0 {
		return Config{}, fmt.Errorf("WATCHDOG_TIMEOUT must be positive, got %v", watchdogTimeout)
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		MQTTBroker:         mqttBroker,
		MQTTPort:           mqttPort,
		MQTTUser:           strings.TrimSpace(os.Getenv("MQTT_USER")),
		MQTTPassword:       os.Getenv("MQTT_PASSWORD"),
		MQTTClientID:       mqttClientID,
		MQTTTopicPrefix:    mqttTopicPrefix,
		MQTTStatusInterval: statusInterval,
		BLEAdapter:         bleAdapter,
		Devices:            devices,
		HTTPAddr:           httpAddr,
		WatchdogTimeout:    watchdogTimeout,
		JournalPath:        strings.TrimSpace(os.Getenv("JOURNAL_PATH")),
		StatusLEDPin:       strings.TrimSpace(os.Getenv("STATUS_LED_PIN")),
	}, nil
}

// ParseDevices splits a device list of the form
// "mac[,key[,name]];mac[,key[,name]]". Addresses and keys are validated
// later by registry.Build so a single bad entry does not stop startup.
func ParseDevices(s string) ([]registry.Entry, error) {
	var entries []registry.Entry
	for i, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ",")
		if len(parts) > 3 {
			return nil, fmt.Errorf("entry %d %q: want mac[,key[,name]]", i+1, item)
		}
		e := registry.Entry{Address: strings.TrimSpace(parts[0])}
		if e.Address == "" {
			return nil, fmt.Errorf("entry %d %q: missing address", i+1, item)
		}
		if len(parts) > 1 {
			e.Key = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			e.Name = strings.TrimSpace(parts[2])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "mitemp-gateway"
	}
	return "mitemp-gateway-" + host
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
