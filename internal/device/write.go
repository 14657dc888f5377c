package device

import (
	"context"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// batch accumulates coalesced writes until the debounce timer fires.
// dps is guarded by Client.mu until the batch is taken by flush.
type batch struct {
	dps  tuya.DPS
	done chan struct{}
	err  error
}

func newBatch() *batch {
	return &batch{dps: make(tuya.DPS), done: make(chan struct{})}
}

// finish records the outcome and wakes every awaiter. Called exactly once.
func (b *batch) finish(err error) {
	b.err = err
	close(b.done)
}

// Write is a handle on a staged write. Every caller whose values landed in
// the same batch shares the outcome of the single SET that carries them.
//
// A Write may be dropped without waiting; the SET is still sent.
type Write struct {
	b *batch
}

// completedWrite returns a handle that is already done.
func completedWrite(err error) *Write {
	b := newBatch()
	b.finish(err)
	return &Write{b: b}
}

// Done is closed once the SET has completed or failed.
func (w *Write) Done() <-chan struct{} {
	return w.b.done
}

// Err returns the outcome, or nil while the write is still pending.
func (w *Write) Err() error {
	select {
	case <-w.b.done:
		return w.b.err
	default:
		return nil
	}
}

// Wait blocks until the SET completes or ctx is done.
// Giving up on the wait does not cancel the write.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.b.done:
		return w.b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
