package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/events"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client veröffentlicht Lebenszyklus-Ereignisse der Warteschlange und
// empfängt Verbindungsmeldungen über einen MQTT-Broker
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	publishFn func(topic string, payload []byte, retain bool) error

	mu                   sync.RWMutex
	connectivityHandlers []func(online bool)
	connectHandlers      []func()
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	c := &Client{config: cfg}
	c.publishFn = c.publishRaw
	return c
}

// EventTopic ist das Topic für Ereignisse eines Typs
func (c *Client) EventTopic(t events.Type) string {
	return c.config.Topic + "/events/" + string(t)
}

// ConnectivityTopic empfängt "online" oder "offline"
func (c *Client) ConnectivityTopic() string {
	return c.config.Topic + "/connectivity"
}

// StatusTopic trägt die Verfügbarkeit dieses Dienstes (retained, mit Last Will)
func (c *Client) StatusTopic() string {
	return c.config.Topic + "/status"
}

// OnConnectivity registriert einen Handler für Verbindungsmeldungen
func (c *Client) OnConnectivity(handler func(online bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectivityHandlers = append(c.connectivityHandlers, handler)
}

// OnConnect registriert einen Handler, der nach jedem (Wieder-)Verbinden läuft
func (c *Client) OnConnect(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHandlers = append(c.connectHandlers, handler)
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	// Optionale Authentifizierung
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetWill(c.StatusTopic(), "offline", 1, true)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop beendet den MQTT-Client
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		_ = c.PublishRetain(c.StatusTopic(), "offline")
		c.client.Disconnect(250) // 250ms Wartezeit
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// onConnectHandler wird aufgerufen, wenn die Verbindung hergestellt wurde
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	if err := c.PublishRetain(c.StatusTopic(), "online"); err != nil {
		log.Warnf("Failed to publish availability: %v", err)
	}

	topic := c.ConnectivityTopic()
	log.Infof("Subscribing to MQTT topic: %s", topic)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
	}

	c.notifyConnected()
}

func (c *Client) notifyConnected() {
	c.mu.RLock()
	handlers := append([]func(){}, c.connectHandlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler()
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	c.handleMessage(msg.Topic(), msg.Payload())
}

func (c *Client) handleMessage(topic string, payload []byte) {
	log.Debugf("Received MQTT message on topic: %s", topic)

	if topic != c.ConnectivityTopic() {
		return
	}

	online, ok := ParseConnectivity(payload)
	if !ok {
		log.Warnf("Ignoring connectivity message with unknown payload %q", string(payload))
		return
	}

	c.mu.RLock()
	handlers := append([]func(bool){}, c.connectivityHandlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler(online)
	}
}

// ParseConnectivity versteht "online"/"offline" (und Synonyme) sowie {"online": bool}
func ParseConnectivity(payload []byte) (online bool, ok bool) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Online != nil {
		return *body.Online, true
	}

	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "online", "up", "true", "1":
		return true, true
	case "offline", "down", "false", "0":
		return false, true
	}
	return false, false
}

// Attach veröffentlicht alle Ereignisse des Busses als JSON unter EventTopic.
// Die zurückgegebene Funktion beendet die Weiterleitung.
func (c *Client) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		data, err := events.Encode(e)
		if err != nil {
			log.Errorf("Failed to marshal event for MQTT: %v", err)
			return
		}
		if err := c.publishFn(c.EventTopic(e.Type), data, false); err != nil {
			log.Debugf("Event %s not published: %v", e.Type, err)
		}
	})
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	var payloadBytes []byte
	var err error

	switch p := payload.(type) {
	case string:
		payloadBytes = []byte(p)
	case []byte:
		payloadBytes = p
	default:
		payloadBytes, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	return c.publishFn(topic, payloadBytes, retain)
}

func (c *Client) publishRaw(topic string, payload []byte, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, 1, retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
