// Package events verteilt Lebenszyklus-Ereignisse der Warteschlange und der
// Synchronisation synchron an registrierte Beobachter.
package events

import (
	"fmt"
	"sync"
	"time"

	"fiscal-offline-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Type benennt ein Lebenszyklus-Ereignis
type Type string

const (
	OperationAdded     Type = "operation_added"
	OperationCompleted Type = "operation_completed"
	OperationFailed    Type = "operation_failed"
	BatchSyncCompleted Type = "batch_sync_completed"
	QueueEmpty         Type = "queue_empty"
	Error              Type = "error"
)

// Event ist ein einzelnes Ereignis. Je nach Typ sind nur einzelne Felder gesetzt.
type Event struct {
	Type      Type
	Operation *models.QueuedOperation
	Result    *models.SyncResult
	Batch     *models.BatchSyncResult
	Err       error
	Time      time.Time
}

// Handler empfängt Ereignisse. Handler laufen im Kontext des Auslösers und
// sollten daher nicht blockieren.
type Handler func(Event)

// Emitter ist die schmale Schnittstelle, über die Komponenten Ereignisse auslösen
type Emitter interface {
	Emit(e Event)
}

// Bus hält die Liste der Beobachter
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// NewBus erstellt einen leeren Bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registriert einen Handler. Die zurückgegebene Funktion meldet ihn wieder ab
// und darf mehrfach aufgerufen werden.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Listeners bündelt typisierte Rückrufe; nicht gesetzte Felder werden ignoriert
type Listeners struct {
	OnOperationAdded     func(op *models.QueuedOperation)
	OnOperationCompleted func(res *models.SyncResult)
	OnOperationFailed    func(res *models.SyncResult)
	OnBatchSyncCompleted func(batch *models.BatchSyncResult)
	OnQueueEmpty         func()
	OnError              func(err error)
}

// SubscribeListeners registriert typisierte Rückrufe als einen Handler
func (b *Bus) SubscribeListeners(l Listeners) func() {
	return b.Subscribe(func(e Event) {
		switch e.Type {
		case OperationAdded:
			if l.OnOperationAdded != nil {
				l.OnOperationAdded(e.Operation)
			}
		case OperationCompleted:
			if l.OnOperationCompleted != nil {
				l.OnOperationCompleted(e.Result)
			}
		case OperationFailed:
			if l.OnOperationFailed != nil {
				l.OnOperationFailed(e.Result)
			}
		case BatchSyncCompleted:
			if l.OnBatchSyncCompleted != nil {
				l.OnBatchSyncCompleted(e.Batch)
			}
		case QueueEmpty:
			if l.OnQueueEmpty != nil {
				l.OnQueueEmpty()
			}
		case Error:
			if l.OnError != nil {
				l.OnError(e.Err)
			}
		}
	})
}

// Emit stellt ein Ereignis synchron an alle Handler zu. Panics in Handlern
// werden abgefangen, protokolliert und als Error-Ereignis weitergereicht.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	var failures []error
	for _, h := range handlers {
		if err := safeCall(h, e); err != nil {
			log.WithError(err).WithField("event", e.Type).Warn("Event handler failed")
			failures = append(failures, err)
		}
	}

	// Fehler aus Error-Handlern werden nur protokolliert
	if e.Type == Error {
		return
	}
	for _, err := range failures {
		b.Emit(Event{Type: Error, Err: err, Operation: e.Operation})
	}
}

func safeCall(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on %s: %v", e.Type, r)
		}
	}()
	h(e)
	return nil
}
