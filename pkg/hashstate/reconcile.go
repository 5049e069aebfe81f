package hashstate

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolve computes the current value from the stores without updating the
// binding. Decode and read failures go to the ErrorSink, joined into a
// single report.
func (b *Binding[T]) Resolve() Optional[T] {
	b.opMu.Lock()
	value, err := b.resolve()
	b.opMu.Unlock()

	b.report(err)
	return value
}

// resolve reads the mirror (when enabled), then the fragment, then falls
// back to the initial value. A source whose content fails to decode is
// skipped. The caller holds opMu.
func (b *Binding[T]) resolve() (Optional[T], error) {
	_, span := b.tracer.Start(context.Background(), "hashstate.resolve",
		trace.WithAttributes(attribute.String("hashstate.key", b.key)))
	defer span.End()

	var errs []error
	if b.mirror != nil {
		if value, ok, err := b.readFrom(b.mirror, SourceMirror); ok {
			span.SetAttributes(attribute.String("hashstate.source", string(SourceMirror)))
			return Some(value), nil
		} else if err != nil {
			errs = append(errs, err)
		}
	}

	value, ok, err := b.readFrom(b.frag, SourceFragment)
	if err != nil {
		errs = append(errs, err)
	}
	joined := errors.Join(errs...)
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, joined.Error())
	}
	if ok {
		span.SetAttributes(attribute.String("hashstate.source", string(SourceFragment)))
		return Some(value), joined
	}

	span.SetAttributes(attribute.String("hashstate.source", "initial"))
	return b.initial, joined
}

type reader interface {
	Read(key string) (string, bool, error)
}

// readFrom returns ok=true only for content that was present and decoded.
func (b *Binding[T]) readFrom(store reader, source Source) (T, bool, error) {
	var zero T
	raw, found, err := store.Read(b.key)
	if err != nil {
		return zero, false, &ReadError{Key: b.key, Source: source, Err: err}
	}
	if !found {
		return zero, false, nil
	}
	value, err := b.decode(raw)
	if err != nil {
		b.metrics.recordDecodeError(b.key, source)
		return zero, false, &DecodeError{Key: b.key, Source: source, Encoded: raw, Err: err}
	}
	return value, true, nil
}

func (b *Binding[T]) decode(raw string) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return b.codec.Decode(raw)
}
