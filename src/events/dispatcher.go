// Package events is a small publish/subscribe registry mapping event names
// to ordered listener lists.
package events

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Listener is the handle returned by On and Once. Functions are not
// comparable in Go, so the handle is what Off matches against.
type Listener[T any] struct {
	fn    func(T)
	once  bool
	fired atomic.Bool
}

// Dispatcher maps event names to listeners. It is safe for concurrent use and
// may be mutated from inside a listener.
type Dispatcher[T any] struct {
	mu        sync.RWMutex
	listeners map[string][]*Listener[T]
	logger    zerolog.Logger
}

// New creates an empty dispatcher.
func New[T any](logger zerolog.Logger) *Dispatcher[T] {
	return &Dispatcher[T]{
		listeners: make(map[string][]*Listener[T]),
		logger:    logger,
	}
}

// On registers fn for event. Registering the same function twice yields two
// independent listeners.
func (d *Dispatcher[T]) On(event string, fn func(T)) *Listener[T] {
	return d.add(event, &Listener[T]{fn: fn})
}

// Once registers fn to run at most once for event. The returned handle can be
// passed to Off before the first firing.
func (d *Dispatcher[T]) Once(event string, fn func(T)) *Listener[T] {
	return d.add(event, &Listener[T]{fn: fn, once: true})
}

func (d *Dispatcher[T]) add(event string, l *Listener[T]) *Listener[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[event] = append(d.listeners[event], l)
	return l
}

// Off removes the registration matching l. The event key is pruned once its
// last listener is gone.
func (d *Dispatcher[T]) Off(event string, l *Listener[T]) bool {
	if l == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.listeners[event]
	for i, cur := range list {
		if cur != l {
			continue
		}
		if l.once {
			l.fired.Store(true)
		}
		// Copy so snapshots taken by in-flight emits stay intact.
		next := make([]*Listener[T], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(d.listeners, event)
		} else {
			d.listeners[event] = next
		}
		return true
	}
	return false
}

// Emit invokes every listener registered for event, in registration order, on
// the calling goroutine. The listener list is snapshotted first: listeners
// added during the pass wait for the next Emit, listeners removed during the
// pass still run in it, except once-listeners, which never run after Off.
// A panicking listener is logged and skipped. Emit reports whether any
// listener was registered.
func (d *Dispatcher[T]) Emit(event string, arg T) bool {
	d.mu.RLock()
	snapshot := d.listeners[event]
	d.mu.RUnlock()

	if len(snapshot) == 0 {
		return false
	}
	for _, l := range snapshot {
		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			d.Off(event, l)
		}
		d.invoke(event, l, arg)
	}
	return true
}

func (d *Dispatcher[T]) invoke(event string, l *Listener[T], arg T) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("event", event).
				Interface("panic", r).
				Msg("listener panicked")
		}
	}()
	l.fn(arg)
}

// ListenerCount returns the number of listeners registered for event.
func (d *Dispatcher[T]) ListenerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[event])
}

// RemoveAllListeners drops the listeners of the given events, or of every
// event when called without arguments.
func (d *Dispatcher[T]) RemoveAllListeners(events ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(events) == 0 {
		d.listeners = make(map[string][]*Listener[T])
		return
	}
	for _, ev := range events {
		delete(d.listeners, ev)
	}
}

// EventNames returns the events that currently have listeners, sorted.
func (d *Dispatcher[T]) EventNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.listeners))
	for name := range d.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
