package model

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the redelivery budget of a freshly constructed event.
const DefaultMaxRetries = 3

// Well-known payload and metadata keys.
const (
	FieldSymbol     = "symbol"
	FieldExchange   = "exchange"
	FieldPrice      = "price"
	FieldDataType   = "data_type"
	FieldSide       = "side"
	FieldConfidence = "confidence"
	FieldLevel      = "level"
	FieldMessage    = "message"

	MetaPublisherID = "publisher_id"
	MetaReceivedAt  = "received_at"
	MetaCorrelation = "correlation_id"
)

// Event is the unit of work flowing through the bus and the processor.
// The dispatch path is the only writer of RetryCount once an event is published.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Kind       EventKind         `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Source     string            `json:"source"`
	Priority   Priority          `json:"priority"`
	Data       map[string]any    `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
}

// EventOption customizes an event at construction time.
type EventOption func(*Event)

// WithPriority overrides the kind-derived priority.
func WithPriority(p Priority) EventOption {
	return func(e *Event) { e.Priority = p }
}

// WithMaxRetries sets the redelivery budget.
func WithMaxRetries(n int) EventOption {
	return func(e *Event) { e.MaxRetries = max(n, 0) }
}

// WithTimestamp sets the provenance time instead of now.
func WithTimestamp(ts time.Time) EventOption {
	return func(e *Event) { e.Timestamp = ts }
}

// WithMetadata attaches a single annotation.
func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[key] = value
	}
}

// NewEvent builds an event with a fresh process-unique ID.
func NewEvent(eventType string, kind EventKind, source string, data map[string]any, opts ...EventOption) *Event {
	if data == nil {
		data = make(map[string]any)
	}
	ev := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Kind:       kind,
		Timestamp:  time.Now(),
		Source:     source,
		Priority:   kind.DefaultPriority(),
		Data:       data,
		Metadata:   make(map[string]string),
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// NewMarketDataEvent builds a `market_data.<dataType>` event for a symbol quote.
func NewMarketDataEvent(source, symbol, exchange, dataType string, price float64, extra map[string]any, opts ...EventOption) *Event {
	data := make(map[string]any, len(extra)+4)
	maps.Copy(data, extra)
	data[FieldSymbol] = symbol
	data[FieldExchange] = exchange
	data[FieldDataType] = dataType
	data[FieldPrice] = price
	return NewEvent("market_data."+dataType, KindMarketData, source, data, opts...)
}

// NewTradingSignalEvent builds a `signal.<side>` event. Signals are always critical.
func NewTradingSignalEvent(source, symbol, exchange, side string, confidence float64, opts ...EventOption) *Event {
	data := map[string]any{
		FieldSymbol:     symbol,
		FieldExchange:   exchange,
		FieldSide:       side,
		FieldConfidence: confidence,
	}
	return NewEvent("signal."+side, KindTradingSignal, source, data, opts...)
}

// NewAnalysisEvent builds an `analysis.<name>` event carrying indicator results.
func NewAnalysisEvent(source, symbol, name string, result map[string]any, opts ...EventOption) *Event {
	data := make(map[string]any, len(result)+1)
	maps.Copy(data, result)
	data[FieldSymbol] = symbol
	return NewEvent("analysis."+name, KindAnalysis, source, data, opts...)
}

// NewAlertEvent builds an `alert.<level>` event.
func NewAlertEvent(source, level, message string, opts ...EventOption) *Event {
	data := map[string]any{FieldLevel: level, FieldMessage: message}
	return NewEvent("alert."+level, KindAlert, source, data, opts...)
}

// NewSystemEvent builds a `system.<name>` event.
func NewSystemEvent(source, name string, data map[string]any, opts ...EventOption) *Event {
	return NewEvent("system."+name, KindSystem, source, data, opts...)
}

// NewErrorEvent builds an `error.<component>` event from a failure.
func NewErrorEvent(source, component string, err error, opts ...EventOption) *Event {
	data := map[string]any{FieldMessage: err.Error()}
	return NewEvent("error."+component, KindError, source, data, opts...)
}

// TypePrefix returns the first dot-separated segment of Type.
func (e *Event) TypePrefix() string {
	prefix, _, _ := strings.Cut(e.Type, ".")
	return prefix
}

// Symbol returns the payload symbol or an empty string.
func (e *Event) Symbol() string { return e.stringField(FieldSymbol) }

// Exchange returns the payload exchange or an empty string.
func (e *Event) Exchange() string { return e.stringField(FieldExchange) }

// Price extracts a numeric price from the payload.
func (e *Event) Price() (float64, bool) {
	switch v := e.Data[FieldPrice].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (e *Event) stringField(key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}

// Meta returns a metadata value or an empty string.
func (e *Event) Meta(key string) string {
	return e.Metadata[key]
}

// SetMeta writes a metadata value, allocating the map lazily.
func (e *Event) SetMeta(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}

// CanRetry reports whether another delivery attempt fits the budget.
func (e *Event) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// CopyFrom overwrites e with src while reusing e's own maps,
// so a pooled event never shares payload storage with the producer.
func (e *Event) CopyFrom(src *Event) {
	data, meta := e.Data, e.Metadata
	if data == nil {
		data = make(map[string]any, len(src.Data))
	}
	if meta == nil {
		meta = make(map[string]string, len(src.Metadata))
	}
	clear(data)
	clear(meta)
	maps.Copy(data, src.Data)
	maps.Copy(meta, src.Metadata)

	*e = *src
	e.Data = data
	e.Metadata = meta
}

// Clone returns a detached copy with its own maps.
func (e *Event) Clone() *Event {
	c := &Event{}
	c.CopyFrom(e)
	return c
}

// Reset wipes e back to the zero value, keeping the allocated maps for reuse.
func (e *Event) Reset() {
	data, meta := e.Data, e.Metadata
	clear(data)
	clear(meta)

	// [BLANK_SLATE_ASSIGNMENT]
	*e = Event{Data: data, Metadata: meta}
}

// IsZero reports whether e holds no event, which is the state pooled objects are kept in.
func (e *Event) IsZero() bool {
	return e.ID == "" && e.Type == "" && len(e.Data) == 0 && len(e.Metadata) == 0
}
