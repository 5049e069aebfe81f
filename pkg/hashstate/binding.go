package hashstate

import (
	"log/slog"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// MirrorStore is session-scoped key/value storage kept consistent with the
// fragment. Read reports ok=false for a missing key. Implementations must
// read live state on every call.
type MirrorStore interface {
	Read(key string) (encoded string, ok bool, err error)
	Write(key, encoded string) error
	Remove(key string) error
}

// FragmentStore is key/value access to the URL fragment plus notification
// of changes made outside the binding (navigation, back/forward, manual
// edits). Read must parse the live fragment on every call.
type FragmentStore interface {
	Read(key string) (encoded string, ok bool, err error)
	Write(key, encoded string) error
	Remove(key string) error

	// Subscribe registers fn for change notifications and returns a function
	// that removes it.
	Subscribe(fn func()) (cancel func())
}

// Options configures a Binding. The zero value is usable.
type Options[T any] struct {
	// Initial is resolved when neither store holds the key.
	Initial Optional[T]

	// Codec converts values to their stored form (default: DefaultCodec[T]()).
	Codec Codec[T]

	// Debounce delays and coalesces writes. Zero commits immediately.
	Debounce time.Duration

	// Mirror is consulted before the fragment and written after it when
	// SyncMirror is true.
	Mirror     MirrorStore
	SyncMirror bool

	// OnChange is called when an external change alters the resolved value.
	OnChange func(newValue, oldValue Optional[T])

	// Errors receives decode, read and write failures (default: LogSink).
	Errors ErrorSink

	// Equal compares resolved values (default: reflect.DeepEqual).
	Equal func(a, b T) bool

	// Clock schedules debounced commits (default: SystemClock).
	Clock Clock

	// Metrics records binding activity when non-nil.
	Metrics *Metrics

	// Tracer creates commit and resolve spans (default: otel.Tracer("hashstate")).
	Tracer trace.Tracer

	// Logger is used for diagnostics (default: slog.Default()).
	Logger *slog.Logger
}

// Binding synchronizes one key of the fragment with an in-memory value.
type Binding[T any] struct {
	key      string
	frag     FragmentStore
	mirror   MirrorStore
	codec    Codec[T]
	initial  Optional[T]
	debounce time.Duration
	onChange func(newValue, oldValue Optional[T])
	sink     ErrorSink
	equal    func(a, b T) bool
	clock    Clock
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	// opMu serializes store access: resolve, commit, clear and change
	// handling never interleave.
	opMu sync.Mutex

	mu          sync.RWMutex
	value       Optional[T]
	prev        Optional[T]
	pending     *pendingWrite[T]
	gen         uint64
	closed      bool
	unsubscribe func()
}

// Bind creates a binding for key, resolves its current value and subscribes
// to frag's change notifications. It panics if frag is nil.
func Bind[T any](key string, frag FragmentStore, opts Options[T]) *Binding[T] {
	if frag == nil {
		panic("hashstate: Bind called with nil FragmentStore")
	}

	b := &Binding[T]{
		key:      key,
		frag:     frag,
		codec:    opts.Codec,
		initial:  opts.Initial,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		sink:     opts.Errors,
		equal:    opts.Equal,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
	}
	if opts.SyncMirror {
		b.mirror = opts.Mirror
	}
	if b.codec == nil {
		b.codec = DefaultCodec[T]()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "hashstate", "key", key)
	if b.sink == nil {
		b.sink = LogSink{Logger: b.logger}
	}
	if b.equal == nil {
		b.equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	if b.clock == nil {
		b.clock = SystemClock
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer("hashstate")
	}

	b.opMu.Lock()
	value, err := b.resolve()
	b.value = value
	b.prev = value
	b.unsubscribe = frag.Subscribe(b.handleChange)
	b.opMu.Unlock()

	b.report(err)
	return b
}

// Key returns the fragment key.
func (b *Binding[T]) Key() string {
	return b.key
}

// Get returns the current value and whether it is present.
func (b *Binding[T]) Get() (T, bool) {
	return b.Value().Get()
}

// Value returns the current value.
func (b *Binding[T]) Value() Optional[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// Close cancels any pending debounced write and stops listening for
// changes. The stored entries are left in place. Close is idempotent.
func (b *Binding[T]) Close() {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.pending != nil {
		b.pending.timer.Stop()
		b.pending = nil
	}
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (b *Binding[T]) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// same reports whether two resolved values are equal; two absent values
// are equal.
func (b *Binding[T]) same(x, y Optional[T]) bool {
	xv, xok := x.Get()
	yv, yok := y.Get()
	if xok != yok {
		return false
	}
	return !xok || b.equal(xv, yv)
}

// report hands err to the sink. It must be called without holding opMu.
func (b *Binding[T]) report(err error) {
	if err != nil {
		b.sink.Record(err)
	}
}
