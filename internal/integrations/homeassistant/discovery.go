// Package homeassistant macht den Zustand der Warteschlange über MQTT
// Discovery als Sensoren in Home Assistant sichtbar.
package homeassistant

import (
	"fmt"

	"fiscal-offline-go/config"

	log "github.com/sirupsen/logrus"
)

// Konstanten für Home Assistant MQTT Discovery
const (
	// Discovery-Präfix für Home Assistant (Standard ist "homeassistant")
	DefaultDiscoveryPrefix = "homeassistant"

	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"

	// Node-ID unter der alle Entitäten registriert werden
	NodeID = "fiscal_offline"
)

// Publisher ist der Teil des MQTT-Clients, den Discovery und Zustand brauchen
type Publisher interface {
	PublishRetain(topic string, payload interface{}) error
	StatusTopic() string
}

// SensorConfig repräsentiert die MQTT-Discovery-Konfiguration einer Entität
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	UnitOfMeasurement   string  `json:"unit_of_measurement,omitempty"`
	StateClass          string  `json:"state_class,omitempty"`
	DeviceClass         string  `json:"device_class,omitempty"`
	PayloadOn           string  `json:"payload_on,omitempty"`
	PayloadOff          string  `json:"payload_off,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	client Publisher
	prefix string
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(client Publisher, cfg config.MQTTConfig) *DiscoveryManager {
	prefix := cfg.DiscoveryPrefix
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return &DiscoveryManager{client: client, prefix: prefix}
}

// QueueStateTopic trägt die Zähler der Warteschlange als JSON
func QueueStateTopic(client Publisher) string {
	return client.StatusTopic() + "/queue"
}

// ConnectivityStateTopic trägt "ON" oder "OFF"
func ConnectivityStateTopic(client Publisher) string {
	return client.StatusTopic() + "/connectivity"
}

// Register veröffentlicht die Discovery-Konfigurationen aller Entitäten
func (dm *DiscoveryManager) Register() error {
	device := &Device{
		Identifiers:  []string{NodeID},
		Name:         "Fiscal Offline Sync",
		Manufacturer: "fiscal-offline-go",
		Model:        "Offline queue",
	}

	counters := []struct {
		field string
		name  string
		icon  string
	}{
		{"pending", "Pending operations", "mdi:tray-full"},
		{"processing", "Processing operations", "mdi:sync"},
		{"failed", "Failed operations", "mdi:alert-circle"},
		{"completed", "Completed operations", "mdi:check-circle"},
	}

	var failed int
	for _, c := range counters {
		sensor := dm.entity(c.field, c.name, device)
		sensor.StateTopic = QueueStateTopic(dm.client)
		sensor.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", c.field)
		sensor.Icon = c.icon
		sensor.UnitOfMeasurement = "operations"
		sensor.StateClass = "measurement"
		if err := dm.publish(ComponentSensor, c.field, sensor); err != nil {
			log.Errorf("Failed to register sensor %s: %v", c.field, err)
			failed++
		}
	}

	online := dm.entity("api_online", "Fiscal API reachable", device)
	online.StateTopic = ConnectivityStateTopic(dm.client)
	online.DeviceClass = "connectivity"
	online.PayloadOn = "ON"
	online.PayloadOff = "OFF"
	if err := dm.publish(ComponentBinarySensor, "api_online", online); err != nil {
		log.Errorf("Failed to register connectivity sensor: %v", err)
		failed++
	}

	if failed > 0 {
		return fmt.Errorf("failed to register %d Home Assistant entities", failed)
	}
	log.Info("Home Assistant discovery published")
	return nil
}

func (dm *DiscoveryManager) entity(objectID, name string, device *Device) SensorConfig {
	return SensorConfig{
		Name:                name,
		UniqueID:            fmt.Sprintf("%s_%s", NodeID, objectID),
		AvailabilityTopic:   dm.client.StatusTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              device,
	}
}

// DiscoveryTopic liefert das Topic <prefix>/<component>/<node>/<object>/config
func (dm *DiscoveryManager) DiscoveryTopic(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dm.prefix, component, NodeID, objectID)
}

func (dm *DiscoveryManager) publish(component, objectID string, sensor SensorConfig) error {
	if err := dm.client.PublishRetain(dm.DiscoveryTopic(component, objectID), sensor); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	return nil
}
