package bus

import (
	"errors"
	"fmt"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

var (
	ErrNilEvent        = errors.New("eventbus: nil event")
	ErrNilHandler      = errors.New("eventbus: nil handler")
	ErrEmptyPattern    = errors.New("eventbus: empty subscription pattern")
	ErrBusClosed       = errors.New("eventbus: closed")
	ErrAlreadyStarted  = errors.New("eventbus: already started")
	ErrQueueFull       = errors.New("eventbus: queue full")
	ErrHandlerNotFound = errors.New("eventbus: handler not found")
)

// QueueFullError is the backpressure signal of a saturated lane.
type QueueFullError struct {
	Lane     model.Priority
	Capacity int
	EventID  string
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("eventbus: %s lane full (capacity %d), event %s rejected", e.Lane, e.Capacity, e.EventID)
}

func (e *QueueFullError) Unwrap() error { return ErrQueueFull }

// HandlerError wraps a failure raised by one subscription.
type HandlerError struct {
	HandlerID string
	EventID   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on event %s: %v", e.HandlerID, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError is returned in place of a recovered handler panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
