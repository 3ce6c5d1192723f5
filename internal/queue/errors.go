package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull wird geliefert, wenn die maximale Anzahl aktiver Operationen erreicht ist
	ErrQueueFull = errors.New("queue is full")
	// ErrInvalidTransition meldet einen unzulässigen Statuswechsel
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRetryBudgetExhausted meldet, dass keine Wiederholungen mehr erlaubt sind
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrInvalidRequest meldet eine unvollständige Anfrage an Enqueue
	ErrInvalidRequest = errors.New("invalid request")
)

// QueueFullError trägt die Kapazität, an der Enqueue gescheitert ist
type QueueFullError struct {
	MaxSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue is full (max size: %d)", e.MaxSize)
}

// Unwrap erlaubt errors.Is(err, ErrQueueFull)
func (e *QueueFullError) Unwrap() error {
	return ErrQueueFull
}

func transitionError(id, from, to string) error {
	return fmt.Errorf("%w: operation %s is %s, cannot become %s", ErrInvalidTransition, id, from, to)
}
