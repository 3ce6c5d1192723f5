// Package sync spielt die offline angenommenen Operationen gegen die
// Fiskal-API ab, sobald die Verbindung besteht.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/cache"
	"fiscal-offline-go/internal/cachekey"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/events"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/transport"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine leert die Warteschlange in Durchläufen. Es läuft höchstens ein
// Durchlauf gleichzeitig.
type Engine struct {
	manager   *queue.Manager
	transport transport.Port
	cache     *cache.Store
	keys      *cachekey.Generator
	emitter   events.Emitter
	cfg       config.QueueConfig

	active  atomic.Bool
	trigger chan struct{}
	online  func() bool

	mutex   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine erstellt eine Engine. cacheStore darf nil sein.
func NewEngine(manager *queue.Manager, port transport.Port, cacheStore *cache.Store, keys *cachekey.Generator, emitter events.Emitter) *Engine {
	if keys == nil {
		keys = cachekey.NewGenerator(nil)
	}
	return &Engine{
		manager:   manager,
		transport: port,
		cache:     cacheStore,
		keys:      keys,
		emitter:   emitter,
		cfg:       manager.Config(),
		trigger:   make(chan struct{}, 1),
	}
}

// Backoff berechnet die Wartezeit nach einem fehlgeschlagenen Versuch.
// retryCount ist die Anzahl der Wiederholungen vor diesem Versuch.
func Backoff(cfg config.QueueConfig, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(cfg.RetryDelay) * math.Pow(cfg.BackoffMultiplier, float64(retryCount))

	if cfg.MaxRetryDelay > 0 && delay > float64(cfg.MaxRetryDelay) {
		return cfg.MaxRetryDelay
	}
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// SetOnlineCheck lässt die Schleife Durchläufe überspringen, solange
// online false liefert. ProcessQueue selbst prüft den Zustand nicht.
func (e *Engine) SetOnlineCheck(online func() bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.online = online
}

// IsActive meldet, ob gerade ein Durchlauf läuft
func (e *Engine) IsActive() bool {
	return e.active.Load()
}

// ProcessQueue führt einen Durchlauf aus. Läuft bereits einer, kehrt die
// Methode sofort mit (nil, false) zurück.
func (e *Engine) ProcessQueue(ctx context.Context) (*models.BatchSyncResult, bool) {
	if !e.active.CompareAndSwap(false, true) {
		log.Debug("Sync pass already running, skipping")
		return nil, false
	}
	defer e.active.Store(false)

	result := &models.BatchSyncResult{Results: []models.SyncResult{}}

	for ctx.Err() == nil {
		batch, err := e.manager.DequeueBatch(ctx, e.cfg.BatchSize)
		if err != nil {
			e.emitError(fmt.Errorf("failed to dequeue batch: %w", err), nil)
			break
		}
		if len(batch) == 0 {
			break
		}

		log.Infof("Processing batch of %d queued operations", len(batch))

		outcomes := e.attemptAll(ctx, batch)
		// Statuswechsel überdauern einen Abbruch, damit nichts in processing hängen bleibt
		settleCtx := context.WithoutCancel(ctx)
		interrupted := ctx.Err() != nil
		for i, op := range batch {
			if interrupted && outcomes[i].err != nil {
				e.release(settleCtx, op, outcomes[i].err)
				continue
			}
			result.Add(e.settle(settleCtx, op, outcomes[i]))
		}
	}

	if result.Total > 0 {
		log.WithFields(log.Fields{
			"total":   result.Total,
			"success": result.SuccessCount,
			"failure": result.FailureCount,
		}).Info("Sync pass finished")
		e.emit(events.Event{Type: events.BatchSyncCompleted, Batch: result})
	}

	stats, err := e.manager.Stats(context.WithoutCancel(ctx))
	if err != nil {
		e.emitError(fmt.Errorf("failed to read queue stats: %w", err), nil)
	} else if stats.Pending == 0 {
		e.emit(events.Event{Type: events.QueueEmpty})
	}

	return result, true
}

type outcome struct {
	resp *transport.Response
	err  error
}

// attemptAll sendet alle Operationen eines Batches parallel. Die Ergebnisse
// stehen in der Reihenfolge des Batches.
func (e *Engine) attemptAll(ctx context.Context, batch []*models.QueuedOperation) []outcome {
	outcomes := make([]outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, op := range batch {
		i, op := i, op
		g.Go(func() error {
			outcomes[i] = e.attempt(ctx, op)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Engine) attempt(ctx context.Context, op *models.QueuedOperation) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("transport panic: %v", r)}
		}
	}()

	var payload []byte
	if len(op.Payload) > 0 {
		payload = []byte(op.Payload)
	}
	resp, err := e.transport.Request(ctx, op.Method, op.Endpoint, payload, op.HeaderMap())
	return outcome{resp: resp, err: err}
}

func (e *Engine) settle(ctx context.Context, op *models.QueuedOperation, out outcome) models.SyncResult {
	logger := log.WithFields(log.Fields{
		"operation_id": op.ID,
		"method":       op.Method,
		"endpoint":     op.Endpoint,
	})

	if out.err == nil {
		return e.complete(ctx, op, out.resp, logger)
	}

	res := models.SyncResult{Operation: op, Error: out.err.Error()}
	var te *transport.Error
	if errors.As(out.err, &te) {
		res.Status = te.Status
		res.Response = te.Body
	}

	retryable := transport.IsRetryable(out.err)
	if retryable && op.RetryCount < op.MaxRetries {
		delay := Backoff(e.cfg, op.RetryCount)
		updated, err := e.manager.Reschedule(ctx, op.ID, out.err.Error(), delay)
		if err == nil {
			logger.WithField("retry_in", delay).Warnf("Operation failed, retry %d/%d scheduled: %v",
				updated.RetryCount, updated.MaxRetries, out.err)
			res.Operation = updated
			e.emit(events.Event{Type: events.OperationFailed, Operation: updated, Result: &res})
			return res
		}
		e.emitError(err, op)
	}

	msg := out.err.Error()
	if retryable {
		msg = fmt.Sprintf("%s: %s", queue.ErrRetryBudgetExhausted, msg)
	}
	failed, err := e.manager.MarkFailed(ctx, op.ID, msg)
	if err != nil {
		e.emitError(err, op)
	} else {
		res.Operation = failed
	}
	res.Error = msg

	logger.Errorf("Operation failed permanently: %s", msg)
	e.emit(events.Event{Type: events.OperationFailed, Operation: res.Operation, Result: &res})
	return res
}

// release gibt eine durch Abbruch des Durchlaufs unterbrochene Operation
// ohne Verbrauch eines Wiederholungsversuchs an die Warteschlange zurück
func (e *Engine) release(ctx context.Context, op *models.QueuedOperation, cause error) {
	if _, err := e.manager.Release(ctx, op.ID); err != nil {
		e.emitError(err, op)
		return
	}
	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"cause":        cause,
	}).Info("Sync pass interrupted, operation returned to queue")
}

func (e *Engine) complete(ctx context.Context, op *models.QueuedOperation, resp *transport.Response, logger *log.Entry) models.SyncResult {
	res := models.SyncResult{Operation: op, Success: true}
	if resp != nil {
		res.Status = resp.Status
		res.Response = resp.Data
	}

	done, err := e.manager.MarkCompleted(ctx, op.ID)
	if err != nil {
		res.Error = err.Error()
		e.emitError(err, op)
	} else {
		res.Operation = done
	}

	e.invalidate(op.Endpoint, op.Method)

	logger.Info("Operation synchronized")
	e.emit(events.Event{Type: events.OperationCompleted, Operation: res.Operation, Result: &res})
	return res
}

func (e *Engine) invalidate(endpoint, method string) {
	if e.cache == nil {
		return
	}
	for _, pattern := range e.keys.InvalidationPatterns(endpoint, method) {
		e.cache.Evict(pattern)
	}
}

// Start stellt hängengebliebene Operationen wieder her und startet die
// Schleife aus Intervall und Auslösern
func (e *Engine) Start(ctx context.Context) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return nil
	}

	if _, err := e.manager.RecoverStale(ctx); err != nil {
		return fmt.Errorf("failed to recover stale operations: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.loop(loopCtx, e.online)

	log.Info("Sync engine started")
	return nil
}

// Stop beendet die Schleife und wartet auf einen laufenden Durchlauf.
// Die Schleife selbst nimmt die Sperre nie.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.running {
		return
	}

	e.cancel()
	e.wg.Wait()
	e.running = false

	log.Info("Sync engine stopped")
}

// TriggerSync fordert einen Durchlauf an. Mehrere Anforderungen vor dem
// nächsten Durchlauf werden zusammengefasst.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// ConnectivityRestored wird aufgerufen, sobald die Verbindung wieder besteht
func (e *Engine) ConnectivityRestored() {
	log.Info("Connectivity restored, triggering sync")
	e.TriggerSync()
}

func (e *Engine) loop(ctx context.Context, online func() bool) {
	defer e.wg.Done()

	interval := e.cfg.SyncInterval
	if interval <= 0 {
		interval = config.DefaultQueueConfig().SyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		if online != nil && !online() {
			log.Debug("Offline, skipping sync pass")
			return
		}
		e.ProcessQueue(ctx)
	}

	// Beim Start einmal sofort ausführen
	run()

	for {
		select {
		case <-ticker.C:
			run()
		case <-e.trigger:
			run()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) emitError(err error, op *models.QueuedOperation) {
	log.WithError(err).Error("Sync engine error")
	e.emit(events.Event{Type: events.Error, Err: err, Operation: op})
}
