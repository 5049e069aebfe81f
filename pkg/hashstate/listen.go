package hashstate

// handleChange reacts to an external fragment change: it re-resolves the
// value, always adopts it, and calls OnChange only when it differs from the
// last value observed. Echoes of the binding's own commits resolve to the
// value the commit already recorded and are absorbed here.
func (b *Binding[T]) handleChange() {
	b.opMu.Lock()
	if b.isClosed() {
		b.opMu.Unlock()
		return
	}

	next, err := b.resolve()

	b.mu.Lock()
	old := b.prev
	changed := !b.same(old, next)
	b.prev = next
	b.value = next
	b.mu.Unlock()
	b.opMu.Unlock()

	b.metrics.recordNotification(b.key, changed)
	b.report(err)
	if changed && b.onChange != nil {
		b.onChange(next, old)
	}
}
