package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mitemp-gateway/internal/config"
)

const (
	publishQoS     = 1
	publishTimeout = 5 * time.Second
)

// offlinePayload is the retained last-will message on the status topic.
var offlinePayload = []byte(`{"online":false}`)

// Client is the gateway's MQTT sink. Publishes from the telemetry pipeline
// and the status loop are serialised on one mutex.
type Client struct {
	client      mqtt.Client
	cfg         config.Config
	logger      *slog.Logger
	statusTopic string

	mu        sync.RWMutex
	connected bool

	pubMu sync.Mutex

	connectedCh chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// Status is the availability record published on <prefix>/status.
type Status struct {
	Online        bool       `json:"online"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	UptimeSeconds int64      `json:"uptime_s"`
	Sensors       int        `json:"sensors"`
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MQTTBroker == "" {
		return nil, fmt.Errorf("mqtt: broker not configured")
	}

	c := &Client{
		cfg:         cfg,
		logger:      logger,
		statusTopic: StatusTopic(cfg.MQTTTopicPrefix),
		connectedCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
		opts.SetPassword(cfg.MQTTPassword)
	}

	// Session settings
	opts.SetCleanSession(true)
	opts.SetWill(c.statusTopic, string(offlinePayload), publishQoS, true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", cfg.MQTTClientID)
		c.notifyConnected()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// StatusTopic returns the availability topic for a topic prefix.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// Connect waits for the initial connection and respects ctx and
// Disconnect(). Later reconnects are handled by paho.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) paho keeps retrying until the token completes.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish sends one telemetry message. It never blocks longer than the
// publish timeout and reports delivery as a bool; the caller logs.
func (c *Client) Publish(topic string, payload []byte) bool {
	if err := c.publish(topic, payload, false); err != nil {
		c.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// PublishStatus publishes a retained availability record.
func (c *Client) PublishStatus(status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := c.publish(c.statusTopic, data, true); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}

	c.logger.Debug("published status", "topic", c.statusTopic, "payload", string(data))
	return nil
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	token := c.client.Publish(topic, publishQoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

// Connected delivers a signal after every (re)connect so the status topic
// can be refreshed.
func (c *Client) Connected() <-chan struct{} {
	return c.connectedCh
}

func (c *Client) StatusTopic() string {
	return c.statusTopic
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect marks the gateway offline, stops the client and closes the
// connection. Idempotent; after Disconnect, Connect returns an error.
func (c *Client) Disconnect() {
	first := false
	c.stopOnce.Do(func() {
		first = true
		close(c.stopCh)
	})
	if !first {
		return
	}

	// A clean disconnect does not trigger the last will.
	if c.IsConnected() {
		if err := c.publish(c.statusTopic, offlinePayload, true); err != nil {
			c.logger.Warn("mqtt offline status not published", "error", err)
		}
	}

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) notifyConnected() {
	select {
	case c.connectedCh <- struct{}{}:
	default:
	}
}
