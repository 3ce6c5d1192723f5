package timezone

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	currentLocation *time.Location
	mu              sync.RWMutex
)

// Initialize setzt die Zeitzone, in der Zeitstempel von Operationen erzeugt werden.
// Ein leerer Name bedeutet UTC.
func Initialize(name string) {
	if name == "" {
		name = "UTC"
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", name, err)
		loc = time.UTC
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()

	log.Debugf("Timezone set to %s", loc)
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()

	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// RFC3339 formatiert die Zeit in der konfigurierten Zeitzone
func RFC3339(t time.Time) string {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()

	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339)
}
