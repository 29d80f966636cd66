// Package mqtt publishes averaged vital-sign readings to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// GetLogger returns the module logger for MQTT.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message using the configured retain flag.
	Publish(ctx context.Context, topic string, payload string) error

	// PublishWithRetain sends a message with an explicit retain flag.
	PublishWithRetain(ctx context.Context, topic string, payload string, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()

	// TestConnection runs a staged connectivity check and streams the results.
	TestConnection(ctx context.Context, resultChan chan<- TestResult)
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // readings go to <prefix>/heart_rate etc.
	QoS         byte
	Retain      bool // true to retain messages at the broker
	// Connection timeouts
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultClientID is used when no node name is configured.
const DefaultClientID = "biometrics_sensor"

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          DefaultClientID,
		TopicPrefix:       "biometrics",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings maps the mqtt section of the configuration file. The
// client ID is the node name with a random suffix so that several instances
// can share a broker.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.TopicPrefix = settings.MQTT.TopicPrefix
	cfg.QoS = settings.MQTT.QoS
	cfg.Retain = settings.MQTT.Retain

	name := settings.Main.Name
	if name == "" {
		name = DefaultClientID
	}
	cfg.ClientID = name + "-" + uuid.NewString()[:8]
	return cfg
}
