// Package diag distributes non-fatal diagnostics emitted by the expression
// runtime: dispatch ambiguities and call-mode fallbacks. Warnings are
// delivered synchronously to subscribed handlers; the default handler logs
// through slog.
package diag

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a warning.
type Kind string

const (
	// KindAmbiguousDispatch marks multiple eligible non-favored
	// implementations for one dispatch key.
	KindAmbiguousDispatch Kind = "ambiguous-dispatch"

	// KindCallModeFallback marks an invocation whose call-site mode could
	// not be determined and was resolved by fallback policy.
	KindCallModeFallback Kind = "call-mode-fallback"
)

// Warning is a single diagnostic. Warnings are immutable once created.
type Warning struct {
	// ID uniquely identifies the warning.
	ID string
	// Kind classifies the warning.
	Kind Kind
	// Time is when the warning was emitted.
	Time time.Time
	// Verb is the generic callable the warning concerns.
	Verb string
	// Key is the dispatch key, for ambiguity warnings.
	Key string
	// Backends are the backends involved, for ambiguity warnings.
	Backends []string
	// Site is the best-effort call-site location (file:line), for
	// call-mode warnings.
	Site string
	// Message is the human-readable description.
	Message string
}

// Handler receives warnings. Handlers run synchronously on the emitting
// goroutine and must not block.
type Handler func(Warning)

// Subscription is an active handler registration.
type Subscription struct {
	bus *Bus
	id  int64
}

// Unsubscribe removes the handler from the bus.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

// Bus fans warnings out to subscribed handlers. A zero-value Bus is not
// usable; create one with NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int64]busEntry
	nextID   int64
}

type busEntry struct {
	kinds   map[Kind]bool // nil means all kinds
	handler Handler
}

// NewBus creates an empty warning bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int64]busEntry)}
}

// Subscribe registers a handler for the given kinds. With no kinds the
// handler receives every warning.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	var kindSet map[Kind]bool
	if len(kinds) > 0 {
		kindSet = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			kindSet[k] = true
		}
	}
	b.handlers[b.nextID] = busEntry{kinds: kindSet, handler: handler}
	return &Subscription{bus: b, id: b.nextID}
}

func (b *Bus) remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Emit delivers a warning to all matching handlers. The ID and timestamp
// are filled in when absent.
func (b *Bus) Emit(w Warning) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Time.IsZero() {
		w.Time = time.Now()
	}

	b.mu.RLock()
	entries := make([]busEntry, 0, len(b.handlers))
	for _, e := range b.handlers {
		if e.kinds == nil || e.kinds[w.Kind] {
			entries = append(entries, e)
		}
	}
	b.mu.RUnlock()

	for _, e := range entries {
		e.handler(w)
	}
}

// LogHandler returns a handler that logs warnings through the given
// logger with structured fields. A nil logger uses slog.Default().
func LogHandler(logger *slog.Logger) Handler {
	return func(w Warning) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		attrs := []any{
			slog.String("kind", string(w.Kind)),
			slog.String("verb", w.Verb),
		}
		if w.Key != "" {
			attrs = append(attrs, slog.String("key", w.Key))
		}
		if len(w.Backends) > 0 {
			attrs = append(attrs, slog.Any("backends", w.Backends))
		}
		if w.Site != "" {
			attrs = append(attrs, slog.String("site", w.Site))
		}
		l.Warn(w.Message, attrs...)
	}
}

// defaultBus is the process-wide bus warnings are emitted to unless a
// dedicated bus is configured.
var defaultBus = func() *Bus {
	b := NewBus()
	b.Subscribe(LogHandler(nil))
	return b
}()

// Default returns the process-wide warning bus.
func Default() *Bus {
	return defaultBus
}
