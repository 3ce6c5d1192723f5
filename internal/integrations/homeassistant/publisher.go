package homeassistant

import (
	"context"

	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// StatsFunc liefert die aktuellen Zähler der Warteschlange
type StatsFunc func(ctx context.Context) (models.QueueStats, error)

// StatePublisher veröffentlicht die Zustände der Discovery-Entitäten
type StatePublisher struct {
	client Publisher
	stats  StatsFunc
}

// NewStatePublisher erstellt einen neuen Zustands-Publisher
func NewStatePublisher(client Publisher, stats StatsFunc) *StatePublisher {
	return &StatePublisher{client: client, stats: stats}
}

// Attach aktualisiert die Zähler nach jeder Änderung an der Warteschlange.
// Die zurückgegebene Funktion beendet die Weiterleitung.
func (p *StatePublisher) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.OperationAdded, events.BatchSyncCompleted, events.QueueEmpty:
			p.PublishQueue(context.Background())
		}
	})
}

// PublishQueue veröffentlicht die Zähler als retained JSON
func (p *StatePublisher) PublishQueue(ctx context.Context) {
	stats, err := p.stats(ctx)
	if err != nil {
		log.WithError(err).Debug("Queue stats unavailable for MQTT")
		return
	}
	if err := p.client.PublishRetain(QueueStateTopic(p.client), stats); err != nil {
		log.Debugf("Queue state not published: %v", err)
	}
}

// PublishConnectivity veröffentlicht den Verbindungsstatus als ON/OFF
func (p *StatePublisher) PublishConnectivity(online bool) {
	state := "OFF"
	if online {
		state = "ON"
	}
	if err := p.client.PublishRetain(ConnectivityStateTopic(p.client), state); err != nil {
		log.Debugf("Connectivity state not published: %v", err)
	}
}
