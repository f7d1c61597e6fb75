// Package broker implements the messaging bus client: a single logical
// publish surface grouped by topic suffix, with QoS-differentiated
// publishing, an offline buffer, and a last-will status message.
//
// There is no MQTT dependency in the original code (it talks to Supabase
// over HTTP, see supabase/supabase.go); this package is grounded on that
// file's *shape* - a hand-rolled client wrapping a third-party SDK, a
// shouldReconnect/reconnectIfNeccesary lazy-reconnect idiom, context/timeout
// bounded operations - generalized onto github.com/eclipse/paho.mqtt.golang,
// the idiomatic Go MQTT client (see DESIGN.md).
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoS levels, named for readability at call sites.
const (
	QoS0 byte = 0
	QoS1 byte = 1
	QoS2 byte = 2
)

// Suffix identifies a topic's role and its required QoS/buffering policy.
type Suffix string

const (
	SuffixTelemetry     Suffix = "telemetry"
	SuffixTelemetryFast Suffix = "telemetry/fast"
	SuffixAlarms        Suffix = "alarms"
	SuffixDecisions     Suffix = "decisions"
	SuffixHeartbeat     Suffix = "heartbeat"
	SuffixStatus        Suffix = "status"
	SuffixCommands      Suffix = "commands"
	SuffixConfig        Suffix = "config"
	SuffixModels        Suffix = "models"
)

type topicPolicy struct {
	qos        byte
	bufferable bool
}

// policies is the QoS/buffering contract, keyed by topic suffix.
var policies = map[Suffix]topicPolicy{
	SuffixTelemetry:     {qos: QoS0, bufferable: false},
	SuffixTelemetryFast: {qos: QoS0, bufferable: false},
	SuffixAlarms:        {qos: QoS1, bufferable: true},
	SuffixDecisions:     {qos: QoS1, bufferable: true},
	SuffixHeartbeat:     {qos: QoS0, bufferable: false},
	SuffixStatus:        {qos: QoS1, bufferable: false}, // retained, not queued through the offline buffer
	SuffixCommands:      {qos: QoS2, bufferable: false},
	SuffixConfig:        {qos: QoS2, bufferable: false},
	SuffixModels:        {qos: QoS2, bufferable: false},
}

// bufferedMessage is one entry of the bounded offline FIFO.
type bufferedMessage struct {
	topic      string
	payload    []byte
	qos        byte
	enqueuedAt time.Time
}

// Config configures a Client.
type Config struct {
	Broker            string // e.g. "tcp://broker.example.com:1883"
	ClientID          string
	SiteID            string
	TopicRoot         string
	Credentials       string // "username:password"; empty disables auth
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	OfflineBufferSize int
}

// DefaultConfig is a reasonable reconnect/backoff posture for a site link
// that may spend long stretches offline.
func DefaultConfig(broker, clientID, siteID, topicRoot string) Config {
	return Config{
		Broker:            broker,
		ClientID:          clientID,
		SiteID:            siteID,
		TopicRoot:         topicRoot,
		ReconnectDelay:    time.Second,
		ReconnectMaxDelay: 2 * time.Minute,
		OfflineBufferSize: 1000,
	}
}

// Client wraps paho.mqtt.golang with the site's topic convention, QoS
// table, offline buffering, and LWT, matching supabase.Client's
// shouldReconnect/reconnectIfNeccesary lazy-reconnect shape generalized to
// MQTT's own connect-loop/auto-reconnect primitives.
type Client struct {
	cfg    Config
	sub    mqtt.Client
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	buffer    []bufferedMessage

	handlers map[Suffix]func(payload []byte)
}

// New creates a Client. Connect must be called before Publish will do
// anything but buffer.
func New(cfg Config) *Client {
	return &Client{
		cfg:      cfg,
		logger:   slog.Default().With("component", "broker", "site_id", cfg.SiteID),
		handlers: make(map[Suffix]func(payload []byte)),
	}
}

// Handle registers a callback for inbound messages on suffix. Must be
// called before Connect so the subscription list is complete at connect
// time.
func (c *Client) Handle(suffix Suffix, fn func(payload []byte)) {
	c.handlers[suffix] = fn
}

func (c *Client) topic(suffix Suffix) string {
	return fmt.Sprintf("%s/%s/%s", c.cfg.TopicRoot, c.cfg.SiteID, suffix)
}

// Topic returns the fully qualified topic name for suffix, for callers
// (the store's sync queue) that need to record it for later redelivery.
func (c *Client) Topic(suffix Suffix) string {
	return c.topic(suffix)
}

// lwtPayload is the retained message the broker delivers on our behalf if
// we disconnect abruptly.
func (c *Client) lwtPayload() []byte {
	payload, _ := json.Marshal(map[string]any{"online": false, "site_id": c.cfg.SiteID})
	return payload
}

// Connect opens the MQTT connection with the configured LWT and, on
// success, publishes the retained online status, subscribes every
// registered topic, and drains the offline buffer. It blocks until
// connected; paho's auto-reconnect then keeps retrying on its own with
// exponential backoff up to ReconnectMaxDelay.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetWill(c.topic(SuffixStatus), string(c.lwtPayload()), policies[SuffixStatus].qos, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(c.cfg.ReconnectDelay).
		SetMaxReconnectInterval(c.cfg.ReconnectMaxDelay).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if c.cfg.Credentials != "" {
		if user, pass, ok := strings.Cut(c.cfg.Credentials, ":"); ok {
			opts.SetUsername(user)
			opts.SetPassword(pass)
		}
	}

	c.sub = mqtt.NewClient(opts)
	token := c.sub.Connect()
	token.Wait()
	return token.Error()
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to broker")

	statusPayload, _ := json.Marshal(map[string]any{"online": true, "site_id": c.cfg.SiteID})
	c.publishRaw(c.topic(SuffixStatus), statusPayload, policies[SuffixStatus].qos, true)

	for suffix, handler := range c.handlers {
		h := handler
		policy := policies[suffix]
		token := c.sub.Subscribe(c.topic(suffix), policy.qos, func(_ mqtt.Client, m mqtt.Message) {
			h(m.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("subscribe failed", "suffix", suffix, "error", err)
		}
	}

	c.drainBuffer()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.logger.Warn("connection to broker lost", "error", err)
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish sends payload to the topic identified by suffix. When offline,
// bufferable topics are queued (oldest dropped if the buffer is full);
// non-bufferable topics (telemetry, telemetry/fast, heartbeat) are dropped
// with a warning log - stale fast data has no value once finally delivered.
func (c *Client) Publish(suffix Suffix, payload []byte) {
	policy := policies[suffix]
	topic := c.topic(suffix)

	if c.IsConnected() {
		c.publishRaw(topic, payload, policy.qos, false)
		return
	}

	if !policy.bufferable {
		c.logger.Warn("dropped message while offline", "suffix", suffix)
		return
	}

	c.enqueue(topic, payload, policy.qos)
}

func (c *Client) publishRaw(topic string, payload []byte, qos byte, retained bool) {
	token := c.sub.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

func (c *Client) enqueue(topic string, payload []byte, qos byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) >= c.cfg.OfflineBufferSize {
		c.buffer = c.buffer[1:] // drop oldest
	}
	c.buffer = append(c.buffer, bufferedMessage{topic: topic, payload: payload, qos: qos, enqueuedAt: time.Now()})
}

// drainBuffer flushes the offline buffer in FIFO order on reconnect.
func (c *Client) drainBuffer() {
	c.mu.Lock()
	pending := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	for _, m := range pending {
		c.publishRaw(m.topic, m.payload, m.qos, false)
	}
}

// BufferedCount returns how many messages are currently held in the
// offline buffer, for metrics/logging.
func (c *Client) BufferedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// PublishRaw publishes a payload straight to topic at qos, bypassing the
// suffix/policy table. Used by the sync package to redeliver rows queued by
// the store verbatim, since those rows already carry their own topic/QoS
// recorded at enqueue time.
func (c *Client) PublishRaw(topic string, payload []byte, qos byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	token := c.sub.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

// Disconnect publishes the offline status then closes the connection.
func (c *Client) Disconnect() {
	if c.sub == nil {
		return
	}
	offlinePayload, _ := json.Marshal(map[string]any{"online": false, "site_id": c.cfg.SiteID})
	c.publishRaw(c.topic(SuffixStatus), offlinePayload, policies[SuffixStatus].qos, true)
	c.sub.Disconnect(250)
}
