package onboarding

import (
	"sync"
	"time"
)

// Countdown is a repeating one-tick-per-interval clock bound to a test session.
// Arm replaces any previous arm cycle; Disarm is idempotent.
type Countdown interface {
	Arm(initialSeconds int, onTick func(remaining int), onExpire func())
	Disarm()
}

// TickerCountdown drives a Countdown from a time.Ticker in its own goroutine
type TickerCountdown struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerCountdown creates a countdown that ticks every interval
func NewTickerCountdown(interval time.Duration) *TickerCountdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerCountdown{interval: interval}
}

// Arm starts counting down from initialSeconds. onTick receives the remaining
// seconds after each tick; onExpire runs once when zero is reached.
func (t *TickerCountdown) Arm(initialSeconds int, onTick func(remaining int), onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarmLocked()

	stop := make(chan struct{})
	t.stop = stop
	go t.run(stop, initialSeconds, onTick, onExpire)
}

// Disarm stops the current arm cycle. It never waits for callbacks, so it is
// safe to call while holding a lock the callbacks also take.
func (t *TickerCountdown) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

// Armed reports whether an arm cycle is active
func (t *TickerCountdown) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *TickerCountdown) disarmLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

func (t *TickerCountdown) run(stop <-chan struct{}, remaining int, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// stop may have been closed while the tick was pending
		select {
		case <-stop:
			return
		default:
		}

		if remaining > 0 {
			remaining--
		}
		if onTick != nil {
			onTick(remaining)
		}
		if remaining == 0 {
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}
