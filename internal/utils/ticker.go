package utils

import (
	"sync/atomic"
	"time"
)

// Ticker is the subset of *time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ManualTicker delivers ticks only when Tick is called.
type ManualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

func (m *ManualTicker) Stop() { m.stopped.Store(true) }

func (m *ManualTicker) Stopped() bool { return m.stopped.Load() }

// Tick blocks until the consumer receives the tick. It returns false when
// nobody received it within timeout.
func (m *ManualTicker) Tick(timeout time.Duration) bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}
