package services

import (
	"sync"
	"time"
)

// stopper is the part of *time.Timer the debouncer needs.
type stopper interface {
	Stop() bool
}

type pendingValue[T any] struct {
	value T
	timer stopper
	gen   uint64
}

// Debouncer delays fn until no Schedule for the same key happened during
// the quiet window. Only the last scheduled value of a burst is delivered.
type Debouncer[T any] struct {
	mu        sync.Mutex
	wait      time.Duration
	fn        func(key string, v T)
	afterFunc func(time.Duration, func()) stopper
	pending   map[string]*pendingValue[T]
	gen       uint64
	closed    bool
}

func NewDebouncer[T any](wait time.Duration, fn func(key string, v T)) *Debouncer[T] {
	return &Debouncer[T]{
		wait:      wait,
		fn:        fn,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		pending:   make(map[string]*pendingValue[T]),
	}
}

// Schedule replaces the pending value of key and restarts its timer.
// It reports false once the debouncer is stopped.
func (d *Debouncer[T]) Schedule(key string, v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	p := &pendingValue[T]{value: v, gen: gen}
	p.timer = d.afterFunc(d.wait, func() { d.fire(key, gen) })
	d.pending[key] = p
	return true
}

func (d *Debouncer[T]) fire(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		// superseded or flushed
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	d.fn(key, p.value)
}

// Update mutates the pending value of key in place. It reports whether a
// value was pending.
func (d *Debouncer[T]) Update(key string, mutate func(*T)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	mutate(&p.value)
	return true
}

// Pending reports whether key has a value waiting.
func (d *Debouncer[T]) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Flush delivers the pending value of key now, on the calling goroutine.
func (d *Debouncer[T]) Flush(key string) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		d.fn(key, p.value)
	}
	return ok
}

// FlushAll delivers every pending value and returns how many there were.
func (d *Debouncer[T]) FlushAll() int {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	n := 0
	for _, k := range keys {
		if d.Flush(k) {
			n++
		}
	}
	return n
}

// Stop cancels every timer without delivering. Later Schedule calls are
// ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for k, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, k)
	}
}
