// Package cache hält Antworten lesender Anfragen mit ressourcenabhängiger
// Gültigkeitsdauer. Abgelaufene Einträge verhalten sich wie fehlende Einträge.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	log "github.com/sirupsen/logrus"
)

// Entry ist ein einzelner Cache-Eintrag
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	Resource  string    `json:"resource"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats enthält Zähler für die Beobachtbarkeit
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Expired       int64 `json:"expired"`
	Evictions     int64 `json:"evictions"`     // wegen Kapazität verdrängt
	Invalidations int64 `json:"invalidations"` // durch Mutationen entfernt
}

// Store ist ein größenbeschränkter TTL-Cache. Bei voller Kapazität wird der
// am längsten nicht gelesene Eintrag verdrängt.
type Store struct {
	mu        sync.Mutex
	entries   *lru.Cache
	keys      map[string]struct{}
	maxSize   int
	now       func() time.Time
	persister Persister
	stats     Stats
}

// NewStore erstellt einen Cache. maxEntries <= 0 bedeutet unbegrenzt.
func NewStore(maxEntries int) *Store {
	if maxEntries < 0 {
		maxEntries = 0
	}
	s := &Store{
		entries: lru.New(maxEntries),
		keys:    make(map[string]struct{}),
		maxSize: maxEntries,
		now:     time.Now,
	}
	s.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(s.keys, key.(string))
	}
	return s
}

// SetClock ersetzt die Zeitquelle (für Tests)
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetPersister hinterlegt die optionale externe Persistenz
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// Get liefert eine Kopie des Werts, solange er nicht abgelaufen ist
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries.Get(key)
	if !ok {
		s.stats.Misses++
		return nil, false
	}
	e, ok := v.(*Entry)
	if !ok {
		s.entries.Remove(key)
		s.stats.Misses++
		return nil, false
	}
	if !s.now().Before(e.ExpiresAt) {
		s.entries.Remove(key)
		s.stats.Expired++
		s.stats.Misses++
		return nil, false
	}

	s.stats.Hits++
	return append([]byte(nil), e.Value...), true
}

// Set speichert value bis now+ttl. Eine TTL <= 0 speichert nichts.
func (s *Store) Set(key string, value []byte, resource string, ttl time.Duration) {
	if ttl <= 0 || key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(&Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Resource:  resource,
		ExpiresAt: s.now().Add(ttl),
	})
}

func (s *Store) add(e *Entry) {
	if _, exists := s.keys[e.Key]; !exists && s.maxSize > 0 && s.entries.Len() >= s.maxSize {
		s.stats.Evictions++
	}
	s.keys[e.Key] = struct{}{}
	s.entries.Add(e.Key, e)
}

// Evict entfernt alle Einträge, deren Schlüssel zum Muster passt, und liefert deren Anzahl
func (s *Store) Evict(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.keys {
		if Matches(key, pattern) {
			s.entries.Remove(key)
			removed++
		}
	}
	s.stats.Invalidations += int64(removed)

	if removed > 0 {
		log.WithFields(log.Fields{"pattern": pattern, "removed": removed}).Debug("Cache entries invalidated")
	}
	return removed
}

// Matches prüft, ob ein Schlüssel zu einem Invalidierungsmuster gehört: exakt
// gleich oder gefolgt von Query ("?"), Unterpfad ("/") bzw. Scope ("@"). Ein
// abschließendes "*" macht das Muster zu einem reinen Präfix.
func Matches(key, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return key == pattern ||
		strings.HasPrefix(key, pattern+"?") ||
		strings.HasPrefix(key, pattern+"/") ||
		strings.HasPrefix(key, pattern+"@")
}

// Sweep entfernt abgelaufene Einträge und liefert deren Anzahl
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []string
	for key := range s.keys {
		if v, ok := s.peek(key); ok && !now.Before(v.ExpiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.entries.Remove(key)
	}
	s.stats.Expired += int64(len(expired))
	return len(expired)
}

// peek liest einen Eintrag. lru kennt kein Lesen ohne Auffrischung, daher
// verändert auch peek die Verdrängungsreihenfolge.
func (s *Store) peek(key string) (*Entry, bool) {
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(*Entry)
	return e, ok
}

// StartSweeper räumt periodisch abgelaufene Einträge ab, bis ctx endet
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Debugf("Cache sweeper removed %d expired entries", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stats liefert eine Momentaufnahme der Zähler
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Entries = s.entries.Len()
	return stats
}

// Len liefert die Anzahl gespeicherter Einträge inklusive noch nicht abgeräumter abgelaufener
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// Clear leert den Cache
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Clear()
	s.keys = make(map[string]struct{})
}

// Snapshot liefert alle noch gültigen Einträge
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Entry, 0, len(s.keys))
	for key := range s.keys {
		if e, ok := s.peek(key); ok && now.Before(e.ExpiresAt) {
			out = append(out, *e)
		}
	}
	return out
}
