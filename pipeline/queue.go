// Package pipeline implements the bounded producer/consumer queue shared
// by C4 (Tile Materialiser) and C5 (LOD Synthesiser) for batched writes
// into the tiles table.
package pipeline

import (
	"context"

	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/metrics"
)

// TileWrite is one materialized-or-synthesized tile ready for insertion
// into the tiles table: its content hash and pixel dimension.
type TileWrite struct {
	Hash     digest.Digest
	TileSize int16
}

// QueueCapacity is the bounded queue depth between producers (C4, C5) and
// the single consumer.
const QueueCapacity = 500

// BatchSize is the consumer's batch size for writes into the tiles table.
const BatchSize = 50

// TileWriter persists a batch of tile rows. Implemented by sql.TileStore
// in production and by an in-memory fake in tests.
type TileWriter interface {
	InsertTileBatch(ctx context.Context, batch []TileWrite) error
}

// Queue is the bounded channel of TileWrite values C4 and C5 push onto,
// with wait-on-full producer semantics: Push blocks until
// there is room.
type Queue struct {
	ch chan TileWrite
}

// NewQueue returns a queue with the standard capacity.
func NewQueue() *Queue {
	return &Queue{ch: make(chan TileWrite, QueueCapacity)}
}

// Push enqueues a tile write, blocking if the queue is full, or returning
// ctx.Err() if ctx is cancelled first.
func (q *Queue) Push(ctx context.Context, w TileWrite) error {
	select {
	case q.ch <- w:
		metrics.TileQueueDepth.Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no more producers will push. Callers must ensure every producer has returned before
// calling Close.
func (q *Queue) Close() { close(q.ch) }

// Drain runs the single consumer loop: reads from the queue until it is
// closed and drained, batching writes of up to BatchSize before flushing
// via writer.InsertTileBatch. Returns the first flush error encountered,
// if any, after draining the remainder of the channel so producers never
// deadlock on a full queue mid-failure.
func Drain(ctx context.Context, q *Queue, writer TileWriter) error {
	batch := make([]TileWrite, 0, BatchSize)
	var firstErr error

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := writer.InsertTileBatch(ctx, batch); err != nil && firstErr == nil {
			firstErr = err
		}
		batch = batch[:0]
	}

	for w := range q.ch {
		metrics.TileQueueDepth.Set(float64(len(q.ch)))
		batch = append(batch, w)
		if len(batch) >= BatchSize {
			flush()
		}
	}
	flush()
	return firstErr
}
