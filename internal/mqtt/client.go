package mqtt

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/observability/metrics"
	"github.com/vitalcam/vitalcam/internal/privacy"
)

// Availability payloads published on <prefix>/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration.
// A nil m records to a private registry.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	if _, err := url.Parse(cfg.Broker); err != nil || cfg.Broker == "" {
		return nil, errors.Newf("invalid broker URL %q", privacy.SanitizeURL(cfg.Broker)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", privacy.SanitizeURL(cfg.Broker)).
			Build()
	}
	if m == nil {
		var err error
		if m, err = metrics.NewMQTTMetrics(prometheus.NewRegistry()); err != nil {
			return nil, err
		}
	}
	return &client{
		config:  cfg,
		metrics: m,
		log:     GetLogger().With(logger.String("broker", privacy.SanitizeURL(cfg.Broker))),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return connectionError(errors.Newf("connection attempt too recent, last attempt was %v ago", since), c.config.Broker, "cooldown")
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectionError(errors.New(privacy.WrapError(err)), c.config.Broker, "parse_url")
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(errors.New(err), c.config.Broker, "resolve_host")
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetWill(c.statusTopic(), statusOffline, c.config.QoS, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.metrics.IncrementErrors("connect")
		return connectionError(errors.New(privacy.WrapError(err)), c.config.Broker, "connect")
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

func connectionError(b *errors.ErrorBuilder, broker, op string) error {
	return b.Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", privacy.SanitizeURL(broker)).
		Context("operation", op).
		Build()
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, c.config.Retain)
}

// PublishWithRetain sends a message with an explicit retain flag.
func (c *client) PublishWithRetain(ctx context.Context, topic string, payload string, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	token := c.internalClient.Publish(topic, c.config.QoS, retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		c.metrics.IncrementErrors("publish")
		return publishError(err, topic)
	}

	c.metrics.IncrementMessagesDelivered(topicKind(topic))
	c.metrics.ObserveMessageSize(float64(len(payload)))
	c.log.Debug("published", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}

// topicKind is the last topic level, used as the delivered-messages label.
func topicKind(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

// waitToken waits for a paho token, the timeout or ctx, whichever comes first.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.NewStd("operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect publishes the offline status and closes the connection.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient == nil || !c.internalClient.IsConnected() {
		return
	}
	token := c.internalClient.Publish(c.statusTopic(), c.config.QoS, true, statusOffline)
	token.WaitTimeout(c.config.DisconnectTimeout)
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.metrics.UpdateConnectionStatus(false)
	c.log.Info("disconnected from MQTT broker")
}

func (c *client) statusTopic() string {
	return c.config.TopicPrefix + "/status"
}

func (c *client) onConnect(client mqtt.Client) {
	c.log.Info("connected to MQTT broker")
	c.metrics.UpdateConnectionStatus(true)
	// Paho callbacks must not block on tokens.
	client.Publish(c.statusTopic(), c.config.QoS, true, statusOnline)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors("connection_lost")
}

func (c *client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	c.metrics.IncrementReconnectAttempts()
	c.log.Debug("reconnecting to MQTT broker")
}
