// Package connectivity verfolgt, ob die Fiskal-API erreichbar sein kann,
// und benachrichtigt beim Übergang von offline nach online.
package connectivity

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Probe ermittelt den aktuellen Verbindungsstatus
type Probe interface {
	Check(ctx context.Context) (bool, error)
}

// ProbeFunc erlaubt einfache Funktionen als Probe
type ProbeFunc func(ctx context.Context) (bool, error)

// Check ruft f auf
func (f ProbeFunc) Check(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Status ist der für die API sichtbare Zustand
type Status struct {
	Online    bool      `json:"online"`
	Source    string    `json:"source,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Monitor hält den Verbindungsstatus
type Monitor struct {
	mu        sync.RWMutex
	status    Status
	callbacks []func()
	listeners []func(online bool)
	probe     Probe
}

// NewMonitor erstellt einen Monitor mit Startzustand
func NewMonitor(online bool, probe Probe) *Monitor {
	return &Monitor{
		status: Status{Online: online, Source: "initial", ChangedAt: time.Now()},
		probe:  probe,
	}
}

// IsOnline meldet den aktuellen Zustand
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

// Status liefert den Zustand mit Herkunft der letzten Änderung
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// OnRestored registriert einen Rückruf für den Übergang offline → online
func (m *Monitor) OnRestored(cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// OnChange registriert einen Rückruf für jeden Zustandswechsel
func (m *Monitor) OnChange(cb func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, cb)
}

// SetOnline setzt den Zustand. OnRestored-Rückrufe laufen nur bei einer
// Wiederherstellung, alle Rückrufe außerhalb der Sperre.
func (m *Monitor) SetOnline(online bool, source string) {
	m.mu.Lock()
	if m.status.Online == online {
		m.mu.Unlock()
		return
	}
	restored := online && !m.status.Online
	m.status = Status{Online: online, Source: source, ChangedAt: time.Now()}
	callbacks := append([]func(){}, m.callbacks...)
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	if online {
		log.Infof("Connectivity online (source: %s)", source)
	} else {
		log.Warnf("Connectivity offline (source: %s)", source)
	}

	for _, cb := range listeners {
		cb(online)
	}
	if restored {
		for _, cb := range callbacks {
			cb()
		}
	}
}

// Start prüft den Zustand periodisch über die Probe, bis ctx endet
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if m.probe == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.check(ctx)
		for {
			select {
			case <-ticker.C:
				m.check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) check(ctx context.Context) {
	online, err := m.probe.Check(ctx)
	if err != nil {
		log.WithError(err).Debug("Connectivity probe failed")
		online = false
	}
	m.SetOnline(online, "probe")
}
