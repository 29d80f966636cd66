// discovery.go: Home Assistant MQTT auto-discovery for the published vitals.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// deviceIDPrefix is the standard prefix for all vitalcam device identifiers
const deviceIDPrefix = "vitalcam"

// sensorSpec describes one Home Assistant sensor entity.
type sensorSpec struct {
	key   string // object id suffix
	name  string
	topic string // state topic suffix under the readings prefix
	unit  string
	icon  string
}

var sensors = []sensorSpec{
	{key: TypeHeartRate, name: "Heart Rate", topic: TopicHeartRate, unit: "bpm", icon: "mdi:heart-pulse"},
	{key: TypeStress, name: "Stress Index", topic: TopicStress, unit: UnitPercent, icon: "mdi:head-alert"},
	{key: TypeSpO2, name: "SpO2", topic: TopicSpO2, unit: UnitPercent, icon: "mdi:water-percent"},
}

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // readings prefix, e.g. biometrics
	DeviceName      string // device name shown in Home Assistant
	NodeID          string // node identifier (typically main.name from config)
	Version         string // software version
}

// DiscoveryPublisher publishes Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config *DiscoveryConfig) *DiscoveryPublisher {
	return &DiscoveryPublisher{
		client: client,
		config: *config,
	}
}

// PublishDiscovery publishes the availability sensor and one sensor per vital.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context) error {
	log := GetLogger()
	log.Info("publishing Home Assistant discovery messages",
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	nodeID := SanitizeID(p.config.NodeID)
	deviceID := fmt.Sprintf("%s_%s", deviceIDPrefix, nodeID)
	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         p.config.DeviceName,
		Manufacturer: "vitalcam",
		Model:        "Camera Vital Signs Monitor",
		SWVersion:    p.config.Version,
	}
	availabilityTopic := p.config.BaseTopic + "/status"

	status := DiscoveryPayload{
		Name:                "Status",
		UniqueID:            deviceID + "_status",
		StateTopic:          availabilityTopic,
		DeviceClass:         "connectivity",
		EntityCategory:      "diagnostic",
		PayloadAvailable:    statusOnline,
		PayloadNotAvailable: statusOffline,
		Device:              device,
		Origin:              p.defaultOrigin(),
	}
	if err := p.publishPayload(ctx, p.statusTopic(nodeID), &status); err != nil {
		return err
	}

	var firstErr error
	for _, s := range sensors {
		payload := DiscoveryPayload{
			Name:              s.name,
			UniqueID:          deviceID + "_" + s.key,
			StateTopic:        p.config.BaseTopic + "/" + s.topic,
			ValueTemplate:     "{{ value_json.data }}",
			UnitOfMeasurement: s.unit,
			StateClass:        "measurement",
			Icon:              s.icon,
			AvailabilityTopic: availabilityTopic,
			Device:            device,
			Origin:            p.defaultOrigin(),
		}
		if err := p.publishPayload(ctx, p.sensorTopic(nodeID, s.key), &payload); err != nil {
			log.Error("failed to publish sensor discovery", logger.String("sensor", s.key), logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RemoveDiscovery publishes empty retained payloads to remove all discovery entries.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context) error {
	nodeID := SanitizeID(p.config.NodeID)
	topics := []string{p.statusTopic(nodeID)}
	for _, s := range sensors {
		topics = append(topics, p.sensorTopic(nodeID, s.key))
	}

	var firstErr error
	for _, topic := range topics {
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			GetLogger().Warn("failed to remove discovery entry", logger.String("topic", topic), logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// publishPayload marshals and publishes a discovery payload. Discovery messages are retained.
func (p *DiscoveryPublisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return p.client.PublishWithRetain(ctx, topic, string(data), true)
}

func (p *DiscoveryPublisher) statusTopic(nodeID string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/status/config", p.config.DiscoveryPrefix, nodeID)
}

func (p *DiscoveryPublisher) sensorTopic(nodeID, key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s_%s/config", p.config.DiscoveryPrefix, nodeID, nodeID, key)
}

func (p *DiscoveryPublisher) defaultOrigin() *DiscoveryOrigin {
	return &DiscoveryOrigin{Name: "vitalcam", SWVersion: p.config.Version}
}
