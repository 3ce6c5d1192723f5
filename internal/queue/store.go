// Package queue verwaltet die Warteschlange offline angenommener Operationen.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fiscal-offline-go/internal/core/models"
)

// ErrNotFound wird geliefert, wenn keine Operation mit der ID existiert
var ErrNotFound = errors.New("operation not found")

// Store ist der Persistenz-Port der Warteschlange. Implementierungen liefern
// je Host-Umgebung dauerhaften Speicher; der Manager ist ihr einziger Schreiber.
type Store interface {
	Get(ctx context.Context, id string) (*models.QueuedOperation, error)
	Set(ctx context.Context, op *models.QueuedOperation) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.QueuedOperation, error)
}

// MemoryStore ist ein flüchtiger Store für Tests und eingebettete Nutzung
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*models.QueuedOperation
}

// NewMemoryStore erstellt einen leeren MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.QueuedOperation)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.QueuedOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return op.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, op *models.QueuedOperation) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("operation without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[op.ID] = op.Clone()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.items, id)
	return nil
}

// List liefert alle Operationen nach Erstellungszeit sortiert
func (s *MemoryStore) List(_ context.Context) ([]*models.QueuedOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]*models.QueuedOperation, 0, len(s.items))
	for _, op := range s.items {
		ops = append(ops, op.Clone())
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops, nil
}
