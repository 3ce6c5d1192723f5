package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/afs"
	log "github.com/sirupsen/logrus"
)

// Persister speichert und lädt Momentaufnahmen des Caches
type Persister interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// AFSPersister legt die Momentaufnahme als JSON unter einer afs-URL ab
// (file://, mem:// oder ein Cloud-Speicher)
type AFSPersister struct {
	fs  afs.Service
	url string
}

// NewAFSPersister erstellt einen Persister für die angegebene URL
func NewAFSPersister(url string) *AFSPersister {
	return &AFSPersister{fs: afs.New(), url: url}
}

// Load liest die Momentaufnahme. Eine fehlende Datei ergibt einen leeren Cache.
func (p *AFSPersister) Load(ctx context.Context) ([]Entry, error) {
	exists, err := p.fs.Exists(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to check cache snapshot %s: %w", p.url, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := p.fs.DownloadWithURL(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to download cache snapshot %s: %w", p.url, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode cache snapshot %s: %w", p.url, err)
	}
	return entries, nil
}

// Save schreibt die Momentaufnahme
func (p *AFSPersister) Save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}
	if err := p.fs.Upload(ctx, p.url, 0o644, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload cache snapshot %s: %w", p.url, err)
	}
	log.Debugf("Cache snapshot with %d entries written to %s", len(entries), p.url)
	return nil
}

// Restore lädt die Momentaufnahme über den Persister. Abgelaufene Einträge
// werden verworfen. Ist die Momentaufnahme unlesbar, bleibt der Cache leer.
func (s *Store) Restore(ctx context.Context) int {
	s.mu.Lock()
	p := s.persister
	s.mu.Unlock()
	if p == nil {
		return 0
	}

	entries, err := p.Load(ctx)
	if err != nil {
		log.Warnf("Cache snapshot unusable, starting empty: %v", err)
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	restored := 0
	for i := range entries {
		e := entries[i]
		if e.Key == "" || !now.Before(e.ExpiresAt) {
			continue
		}
		s.add(&e)
		restored++
	}
	log.Infof("Restored %d cache entries", restored)
	return restored
}

// Flush schreibt alle gültigen Einträge über den Persister
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	p := s.persister
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Save(ctx, s.Snapshot())
}
