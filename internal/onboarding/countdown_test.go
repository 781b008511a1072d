package onboarding

import (
	"sync"
	"testing"
	"time"
)

func TestTickerCountdownExpires(t *testing.T) {
	cd := NewTickerCountdown(time.Millisecond)

	var (
		mu    sync.Mutex
		ticks []int
	)
	expired := make(chan struct{}, 2)

	cd.Arm(3, func(remaining int) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}, func() {
		expired <- struct{}{}
	})

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("ticks[%d] = %d, want %d", i, ticks[i], want[i])
		}
	}

	select {
	case <-expired:
		t.Error("onExpire called twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickerCountdownDisarm(t *testing.T) {
	cd := NewTickerCountdown(5 * time.Millisecond)
	expired := make(chan struct{}, 1)

	cd.Arm(2, nil, func() { expired <- struct{}{} })
	if !cd.Armed() {
		t.Fatal("Armed() = false after Arm")
	}
	cd.Disarm()
	cd.Disarm()
	if cd.Armed() {
		t.Fatal("Armed() = true after Disarm")
	}

	select {
	case <-expired:
		t.Error("disarmed countdown expired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickerCountdownRearmReplacesCycle(t *testing.T) {
	cd := NewTickerCountdown(time.Millisecond)
	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	cd.Arm(1000, nil, func() { first <- struct{}{} })
	cd.Arm(2, nil, func() { second <- struct{}{} })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second cycle did not expire")
	}
	select {
	case <-first:
		t.Error("replaced cycle expired")
	default:
	}
	cd.Disarm()
}
