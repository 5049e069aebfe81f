package hashstate

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pendingWrite is the single debounce slot of a binding.
type pendingWrite[T any] struct {
	gen   uint64
	value T
	timer Timer
}

// Set writes value to the fragment and the mirror, then updates the
// in-memory value. With a debounce window the write is deferred and
// replaces any write still pending, so Get keeps returning the old value
// until the window expires. Set on a closed binding does nothing.
func (b *Binding[T]) Set(value T) {
	if b.debounce > 0 {
		b.schedule(value)
		return
	}

	b.opMu.Lock()
	if b.isClosed() {
		b.opMu.Unlock()
		b.logger.Debug("set on closed binding ignored")
		return
	}
	err := b.commit(value)
	b.opMu.Unlock()

	b.report(err)
}

// SetOptional calls Set with the held value. An absent value is never
// written.
func (b *Binding[T]) SetOptional(value Optional[T]) {
	if v, ok := value.Get(); ok {
		b.Set(v)
	}
}

// Pending reports whether a debounced write is waiting to fire.
func (b *Binding[T]) Pending() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pending != nil
}

// Flush commits a pending debounced write immediately. It reports whether
// there was one.
func (b *Binding[T]) Flush() bool {
	b.mu.Lock()
	p := b.pending
	if p != nil {
		p.timer.Stop()
	}
	b.mu.Unlock()

	if p == nil {
		return false
	}
	return b.fire(p.gen)
}

// Clear removes the key from the fragment and the mirror. The in-memory
// value and any pending debounced write are left alone; a pending write
// still fires afterwards.
func (b *Binding[T]) Clear() {
	b.opMu.Lock()
	if b.isClosed() {
		b.opMu.Unlock()
		return
	}

	var errs []error
	if err := b.frag.Remove(b.key); err != nil {
		b.metrics.recordWriteError(b.key, OpRemove)
		errs = append(errs, &WriteError{Key: b.key, Op: OpRemove, Target: SourceFragment, Err: err})
	}
	if b.mirror != nil {
		if err := b.mirror.Remove(b.key); err != nil {
			b.metrics.recordWriteError(b.key, OpRemove)
			errs = append(errs, &WriteError{Key: b.key, Op: OpRemove, Target: SourceMirror, Err: err})
		}
	}
	b.opMu.Unlock()

	b.report(errors.Join(errs...))
}

// schedule replaces the debounce slot with a timer for value.
func (b *Binding[T]) schedule(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.pending != nil {
		b.pending.timer.Stop()
		b.metrics.recordCoalesced(b.key)
	}
	b.gen++
	gen := b.gen
	p := &pendingWrite[T]{gen: gen, value: value}
	b.pending = p
	p.timer = b.clock.AfterFunc(b.debounce, func() { b.fire(gen) })
}

// fire commits the pending write if it is still generation gen. A timer
// that lost a race with Stop finds a newer generation, or none, and does
// nothing.
func (b *Binding[T]) fire(gen uint64) bool {
	b.opMu.Lock()

	b.mu.Lock()
	p := b.pending
	if b.closed || p == nil || p.gen != gen {
		b.mu.Unlock()
		b.opMu.Unlock()
		return false
	}
	b.pending = nil
	b.mu.Unlock()

	err := b.commit(p.value)
	b.opMu.Unlock()

	b.report(err)
	return true
}

// commit encodes value, writes the fragment and then the mirror, and only
// then updates the in-memory value. The caller holds opMu.
func (b *Binding[T]) commit(value T) error {
	_, span := b.tracer.Start(context.Background(), "hashstate.commit",
		trace.WithAttributes(attribute.String("hashstate.key", b.key)))
	defer span.End()

	err := b.write(value)
	if err != nil {
		var we *WriteError
		if errors.As(err, &we) {
			b.metrics.recordWriteError(b.key, we.Op)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	b.mu.Lock()
	b.value = Some(value)
	b.prev = b.value
	b.mu.Unlock()

	b.metrics.recordCommit(b.key)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (b *Binding[T]) write(value T) error {
	encoded, err := b.encode(value)
	if err != nil {
		return &WriteError{Key: b.key, Op: OpEncode, Err: err}
	}
	if err := b.frag.Write(b.key, encoded); err != nil {
		return &WriteError{Key: b.key, Op: OpWrite, Target: SourceFragment, Err: err}
	}
	if b.mirror != nil {
		if err := b.mirror.Write(b.key, encoded); err != nil {
			return &WriteError{Key: b.key, Op: OpWrite, Target: SourceMirror, Err: err}
		}
	}
	return nil
}

func (b *Binding[T]) encode(value T) (encoded string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return b.codec.Encode(value)
}
