// Package eventlog implements structured event-log emissions on every
// transition that would be actionable for an operator: an appendable log
// plus an in-process fan-out, separating in-process delivery from
// whatever persists the events it carries.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is a closed set of actionable event kinds.
type Kind string

const (
	KindNewBuild    Kind = "new_build"
	KindNewProduct  Kind = "new_product"
	KindScanFailed  Kind = "scan_failed"
	KindNewRegions  Kind = "new_regions"
)

// Event is one emitted occurrence.
type Event struct {
	ID        uuid.UUID
	Kind      Kind
	At        time.Time
	ProductID int64
	Detail    string
}

// Sink persists events, e.g. into the events table.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Log fans events out to a Sink and to any in-process subscribers,
// scoped down to what this pipeline needs: synchronous delivery within a
// single scan's goroutines.
type Log struct {
	sink Sink

	mu   sync.RWMutex
	subs []func(Event)
}

// New returns a Log that persists through sink. A nil sink drops events
// on the floor after notifying subscribers — used by tests that only
// care about the in-process fan-out.
func New(sink Sink) *Log {
	return &Log{sink: sink}
}

// Subscribe registers fn to be called synchronously, in Emit's
// goroutine, for every subsequently emitted event.
func (l *Log) Subscribe(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

// Emit persists ev (if a sink is configured) and notifies subscribers.
// Persistence errors are returned but never block subscriber notification
// — an event log failure must not be allowed to break the caller's
// control flow (it is observability, not correctness state).
func (l *Log) Emit(ctx context.Context, kind Kind, productID int64, detail string) error {
	ev := Event{ID: uuid.New(), Kind: kind, At: time.Now(), ProductID: productID, Detail: detail}

	l.mu.RLock()
	subs := append([]func(Event){}, l.subs...)
	l.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}

	if l.sink == nil {
		return nil
	}
	return l.sink.Append(ctx, ev)
}
