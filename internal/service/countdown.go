package service

import (
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/utils"
)

// Countdown ticks once per second from a starting value and calls onExpire
// exactly once when it reaches zero.
type Countdown struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func StartCountdown(seconds int, newTicker utils.TickerFactory, onTick func(remaining int), onExpire func()) *Countdown {
	if newTicker == nil {
		newTicker = utils.NewRealTicker
	}
	c := &Countdown{stop: make(chan struct{})}
	ticker := newTicker(time.Second)
	remaining := seconds

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C():
			}
			select {
			case <-c.stop:
				return
			default:
			}
			if remaining > 0 {
				remaining--
			}
			onTick(remaining)
			if remaining == 0 {
				onExpire()
				return
			}
		}
	}()
	return c
}

// Stop does not wait for the loop; a tick already being handled is dropped by the owner.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
