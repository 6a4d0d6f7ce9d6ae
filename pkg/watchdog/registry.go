package watchdog

import (
	"reflect"
	"slices"
	"sync"
)

// Registry is an ordered set of listeners, safe for concurrent use.
//
// Membership is by identity: two listeners are the same when they compare
// equal as interface values, which for pointer listeners means the same
// pointer. Dispatch always iterates a snapshot, so registration may change
// while an outcome is being delivered.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers l. Adding a listener that is already present is a no-op.
func (r *Registry) Add(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	if !isComparable(l) {
		return ErrListenerNotComparable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(l) >= 0 {
		return nil
	}
	r.listeners = append(r.listeners, l)
	return nil
}

// Remove unregisters l and reports whether it was present.
// Removing an absent listener is a no-op.
func (r *Registry) Remove(l Listener) bool {
	if l == nil || !isComparable(l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(l)
	if i < 0 {
		return false
	}
	r.listeners = slices.Delete(r.listeners, i, i+1)
	return true
}

// Contains reports whether l is registered.
func (r *Registry) Contains(l Listener) bool {
	if l == nil || !isComparable(l) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(l) >= 0
}

// Clear removes all listeners.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = nil
}

// Snapshot returns the registered listeners in registration order.
func (r *Registry) Snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(l Listener) int {
	for i, existing := range r.listeners {
		if existing == l {
			return i
		}
	}
	return -1
}

// isComparable reports whether l can be compared with ==. A struct listener
// whose type is comparable may still hold an uncomparable value in an
// interface field, which only shows when the comparison runs. Listeners that
// pass can be compared with every other registered listener without panicking.
func isComparable(l Listener) (ok bool) {
	if !reflect.TypeOf(l).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return l == l //nolint:staticcheck // panics if a field holds an uncomparable value
}
