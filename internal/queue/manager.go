package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/events"
	"fiscal-offline-go/internal/util/timezone"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// EnqueueRequest beschreibt eine neue mutierende Anfrage
type EnqueueRequest struct {
	Kind         string            `json:"kind"`
	ResourceType string            `json:"resource_type"`
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Priority     int               `json:"priority"`
	MaxRetries   int               `json:"max_retries,omitempty"` // 0 = Standard aus der Konfiguration
}

// Manager ist der einzige Schreiber des Stores. Alle Statuswechsel laufen
// unter einem gemeinsamen Mutex, damit ein Batch atomar entnommen wird.
type Manager struct {
	store   Store
	cfg     config.QueueConfig
	emitter events.Emitter
	now     func() time.Time
	mu      sync.Mutex
}

// NewManager erstellt einen Manager über dem angegebenen Store
func NewManager(store Store, cfg config.QueueConfig, emitter events.Emitter) *Manager {
	return &Manager{
		store:   store,
		cfg:     cfg,
		emitter: emitter,
		now:     timezone.Now,
	}
}

// SetClock ersetzt die Zeitquelle (für Tests)
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Config liefert die unveränderliche Konfiguration
func (m *Manager) Config() config.QueueConfig {
	return m.cfg
}

// Enqueue legt eine neue Operation im Status pending an
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (*models.QueuedOperation, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" || req.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint and method are required", ErrInvalidRequest)
	}

	m.mu.Lock()

	ops, err := m.store.List(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	active := 0
	for _, op := range ops {
		if !op.IsTerminal() {
			active++
		}
	}
	if active >= m.cfg.MaxQueueSize {
		m.mu.Unlock()
		return nil, &QueueFullError{MaxSize: m.cfg.MaxQueueSize}
	}

	now := m.now()
	op := &models.QueuedOperation{
		ID:            uuid.New().String(),
		Kind:          req.Kind,
		ResourceType:  req.ResourceType,
		Endpoint:      req.Endpoint,
		Method:        method,
		Status:        models.StatusPending,
		Priority:      req.Priority,
		MaxRetries:    m.cfg.MaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}
	if op.Kind == "" {
		op.Kind = models.KindForMethod(method)
	}
	if req.MaxRetries > 0 {
		op.MaxRetries = min(req.MaxRetries, m.cfg.MaxRetries)
	}
	if len(req.Payload) > 0 {
		op.Payload = datatypes.JSON(req.Payload)
	}
	if len(req.Headers) > 0 {
		headers, err := json.Marshal(req.Headers)
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("failed to encode headers: %w", err)
		}
		op.Headers = datatypes.JSON(headers)
	}

	if err := m.store.Set(ctx, op); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to store operation: %w", err)
	}
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"resource":     op.ResourceType,
		"method":       op.Method,
		"priority":     op.Priority,
	}).Info("Operation enqueued")

	m.emit(events.Event{Type: events.OperationAdded, Operation: op.Clone()})
	return op.Clone(), nil
}

// DequeueBatch entnimmt bis zu n fällige Operationen (Priorität absteigend,
// bei Gleichstand älteste zuerst) und markiert sie als processing.
func (m *Manager) DequeueBatch(ctx context.Context, n int) ([]*models.QueuedOperation, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ops, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	now := m.now()
	eligible := make([]*models.QueuedOperation, 0, len(ops))
	for _, op := range ops {
		if op.Status == models.StatusPending && !op.NextAttemptAt.After(now) {
			eligible = append(eligible, op)
		}
	}
	SortForDequeue(eligible)
	if len(eligible) > n {
		eligible = eligible[:n]
	}

	batch := make([]*models.QueuedOperation, 0, len(eligible))
	for _, op := range eligible {
		op.Status = models.StatusProcessing
		op.UpdatedAt = now
		if err := m.store.Set(ctx, op); err != nil {
			m.revert(ctx, batch)
			return nil, fmt.Errorf("failed to mark operation %s as processing: %w", op.ID, err)
		}
		batch = append(batch, op.Clone())
	}
	return batch, nil
}

// revert setzt bereits markierte Operationen eines gescheiterten Batches zurück
func (m *Manager) revert(ctx context.Context, batch []*models.QueuedOperation) {
	for _, op := range batch {
		op.Status = models.StatusPending
		if err := m.store.Set(ctx, op); err != nil {
			log.WithError(err).WithField("operation_id", op.ID).Error("Failed to revert operation to pending")
		}
	}
}

// SortForDequeue ordnet nach Priorität absteigend, dann CreatedAt aufsteigend, dann ID
func SortForDequeue(ops []*models.QueuedOperation) {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// MarkCompleted schließt eine laufende Operation erfolgreich ab
func (m *Manager) MarkCompleted(ctx context.Context, id string) (*models.QueuedOperation, error) {
	return m.transition(ctx, id, models.StatusCompleted, func(op *models.QueuedOperation) error {
		return nil
	})
}

// MarkFailed schließt eine laufende Operation endgültig als fehlgeschlagen ab
func (m *Manager) MarkFailed(ctx context.Context, id, errMsg string) (*models.QueuedOperation, error) {
	return m.transition(ctx, id, models.StatusFailed, func(op *models.QueuedOperation) error {
		op.LastError = errMsg
		return nil
	})
}

// Reschedule gibt eine laufende Operation nach einem wiederholbaren Fehler
// zurück in die Warteschlange. Sie wird frühestens nach delay erneut entnommen.
func (m *Manager) Reschedule(ctx context.Context, id, errMsg string, delay time.Duration) (*models.QueuedOperation, error) {
	return m.transition(ctx, id, models.StatusPending, func(op *models.QueuedOperation) error {
		if op.RetryCount >= op.MaxRetries {
			return fmt.Errorf("%w: operation %s (%d/%d)", ErrRetryBudgetExhausted, op.ID, op.RetryCount, op.MaxRetries)
		}
		op.RetryCount++
		op.LastError = errMsg
		op.NextAttemptAt = op.UpdatedAt.Add(delay)
		return nil
	})
}

// Release gibt eine laufende Operation unverändert an die Warteschlange zurück,
// wenn ihr Versuch abgebrochen wurde. RetryCount bleibt gleich.
func (m *Manager) Release(ctx context.Context, id string) (*models.QueuedOperation, error) {
	return m.transition(ctx, id, models.StatusPending, func(op *models.QueuedOperation) error {
		op.NextAttemptAt = op.UpdatedAt
		return nil
	})
}

func (m *Manager) transition(ctx context.Context, id, to string, apply func(op *models.QueuedOperation) error) (*models.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != models.StatusProcessing {
		return nil, transitionError(id, op.Status, to)
	}

	op.UpdatedAt = m.now()
	if err := apply(op); err != nil {
		return nil, err
	}
	op.Status = to

	if err := m.store.Set(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to update operation %s: %w", id, err)
	}
	return op.Clone(), nil
}

// Get liefert eine Kopie der Operation
func (m *Manager) Get(ctx context.Context, id string) (*models.QueuedOperation, error) {
	return m.store.Get(ctx, id)
}

// List liefert Operationen in Entnahme-Reihenfolge, optional nach Status gefiltert
func (m *Manager) List(ctx context.Context, statuses ...string) ([]*models.QueuedOperation, error) {
	ops, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(statuses) > 0 {
		wanted := make(map[string]bool, len(statuses))
		for _, s := range statuses {
			wanted[s] = true
		}
		filtered := ops[:0]
		for _, op := range ops {
			if wanted[op.Status] {
				filtered = append(filtered, op)
			}
		}
		ops = filtered
	}
	SortForDequeue(ops)
	return ops, nil
}

// Stats zählt die Operationen je Status
func (m *Manager) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats

	ops, err := m.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list queue: %w", err)
	}
	for _, op := range ops {
		stats.Total++
		switch op.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusProcessing:
			stats.Processing++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// RecoverStale setzt Operationen, die bei einem Abbruch in processing
// verblieben sind, zurück auf pending. Darf nur ohne aktiven Durchlauf laufen.
func (m *Manager) RecoverStale(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	now := m.now()
	recovered := 0
	for _, op := range ops {
		if op.Status != models.StatusProcessing {
			continue
		}
		op.Status = models.StatusPending
		op.UpdatedAt = now
		op.NextAttemptAt = now
		if err := m.store.Set(ctx, op); err != nil {
			return recovered, fmt.Errorf("failed to recover operation %s: %w", op.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		log.Infof("Recovered %d stale operations", recovered)
	}
	return recovered, nil
}

// Requeue legt eine endgültig fehlgeschlagene Operation als neue Operation
// wieder an. Der fehlgeschlagene Eintrag bleibt unverändert erhalten.
func (m *Manager) Requeue(ctx context.Context, id string) (*models.QueuedOperation, error) {
	op, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != models.StatusFailed {
		return nil, transitionError(id, op.Status, models.StatusPending)
	}

	var payload json.RawMessage
	if len(op.Payload) > 0 {
		payload = json.RawMessage(op.Payload)
	}
	return m.Enqueue(ctx, EnqueueRequest{
		Kind:         op.Kind,
		ResourceType: op.ResourceType,
		Endpoint:     op.Endpoint,
		Method:       op.Method,
		Payload:      payload,
		Headers:      op.HeaderMap(),
		Priority:     op.Priority,
		MaxRetries:   op.MaxRetries,
	})
}

// Remove löscht eine abgeschlossene Operation
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !op.IsTerminal() {
		return transitionError(id, op.Status, "removed")
	}
	return m.store.Remove(ctx, id)
}

// PurgeTerminal löscht abgeschlossene Operationen, die vor cutoff zuletzt geändert wurden
func (m *Manager) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	removed := 0
	for _, op := range ops {
		if !op.IsTerminal() || !op.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Remove(ctx, op.ID); err != nil {
			return removed, fmt.Errorf("failed to remove operation %s: %w", op.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) emit(e events.Event) {
	if m.emitter != nil {
		m.emitter.Emit(e)
	}
}
