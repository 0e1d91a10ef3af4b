package utils

import (
	"sync"
	"time"
)

type pending struct {
	timer *time.Timer
	fn    func()
	gen   uint64
}

// KeyedDebouncer delays fn per key until delay has passed without another
// Trigger for the same key. Keys never cancel each other.
type KeyedDebouncer[K comparable] struct {
	delay   time.Duration
	mu      sync.Mutex
	gen     uint64
	entries map[K]*pending
}

func NewKeyedDebouncer[K comparable](delay time.Duration) *KeyedDebouncer[K] {
	return &KeyedDebouncer[K]{
		delay:   delay,
		entries: make(map[K]*pending),
	}
}

func (d *KeyedDebouncer[K]) Trigger(key K, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.timer.Stop()
	}
	d.gen++
	gen := d.gen
	e := &pending{fn: fn, gen: gen}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
	d.entries[key] = e
}

func (d *KeyedDebouncer[K]) fire(key K, gen uint64) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if !ok || e.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	d.mu.Unlock()
	e.fn()
}

// Cancel drops the pending call for key and reports whether one existed.
func (d *KeyedDebouncer[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.entries, key)
	return true
}

// Flush runs the pending call for key now.
func (d *KeyedDebouncer[K]) Flush(key K) bool {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok {
		e.timer.Stop()
		delete(d.entries, key)
	}
	d.mu.Unlock()
	if ok {
		e.fn()
	}
	return ok
}

// FlushAll runs every pending call now, in no particular order.
func (d *KeyedDebouncer[K]) FlushAll() int {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.entries))
	for k, e := range d.entries {
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(d.entries, k)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Stop cancels every pending call.
func (d *KeyedDebouncer[K]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, e := range d.entries {
		e.timer.Stop()
		delete(d.entries, k)
	}
}

func (d *KeyedDebouncer[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
