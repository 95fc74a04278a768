// internal/countdown/countdown_test.go
// Countdown tests on a fake clock.
package countdown

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inline(f func()) { f() }

// recvTick fails the test if no tick arrives in time.
func recvTick(t *testing.T, ch <-chan int, within time.Duration) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for tick")
		return -1
	}
}

func recvNothing(t *testing.T, ch <-chan int, within time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("expected nothing within %v, got %d", within, v)
	case <-time.After(within):
	}
}

func TestCountdown_TicksDownAndFiresDoneOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New(clock, inline)

	ticks := make(chan int, 16)
	done := make(chan int, 4)
	c.Start(3, func(r int) { ticks <- r }, func() { done <- 1 })
	assert.True(t, c.Running())
	assert.Equal(t, 3, c.Remaining())

	for _, want := range []int{2, 1, 0} {
		clock.Advance(time.Second)
		got := recvTick(t, ticks, time.Second)
		assert.Equal(t, want, got)
		assert.GreaterOrEqual(t, got, 0)
	}

	recvTick(t, done, time.Second)
	assert.False(t, c.Running())
	assert.Equal(t, 0, c.Remaining())

	clock.Advance(5 * time.Second)
	recvNothing(t, done, 50*time.Millisecond)
	recvNothing(t, ticks, 50*time.Millisecond)
}

func TestCountdown_HugeWindowDoesNotWrap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock, inline)

	ticks := make(chan int, 4)
	done := make(chan int, 1)
	c.Start(10_000_000_000, func(r int) { ticks <- r }, func() { done <- 1 })

	clock.Advance(time.Second)
	got := recvTick(t, ticks, time.Second)
	assert.Greater(t, got, 1_000_000_000)
	assert.True(t, c.Running())
	recvNothing(t, done, 50*time.Millisecond)
}

func TestCountdown_RestartDropsStaleRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New(clock, inline)

	first := make(chan int, 16)
	firstDone := make(chan int, 1)
	c.Start(2, func(r int) { first <- r }, func() { firstDone <- 1 })

	second := make(chan int, 16)
	c.Start(5, func(r int) { second <- r }, nil)
	assert.Equal(t, 5, c.Remaining())

	clock.Advance(time.Second)
	assert.Equal(t, 4, recvTick(t, second, time.Second))

	clock.Advance(time.Second)
	assert.Equal(t, 3, recvTick(t, second, time.Second))

	recvNothing(t, first, 50*time.Millisecond)
	recvNothing(t, firstDone, 50*time.Millisecond)
}

func TestCountdown_StopPreventsDone(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New(clock, inline)

	done := make(chan int, 1)
	c.Start(1, nil, func() { done <- 1 })
	c.Stop()
	assert.False(t, c.Running())

	clock.Advance(3 * time.Second)
	recvNothing(t, done, 50*time.Millisecond)
	assert.Equal(t, 1, c.Remaining())
}

func TestCountdown_NonPositiveFiresImmediately(t *testing.T) {
	c := New(clockwork.NewFakeClock(), inline)

	done := 0
	c.Start(0, nil, func() { done++ })
	require.Equal(t, 1, done)
	assert.Equal(t, 0, c.Remaining())
	assert.False(t, c.Running())
}

func TestCountdown_RealClockWithShortInterval(t *testing.T) {
	c := New(clockwork.NewRealClock(), inline, WithInterval(5*time.Millisecond))

	done := make(chan int, 1)
	c.Start(3, nil, func() { done <- 1 })
	recvTick(t, done, time.Second)
	assert.Equal(t, 0, c.Remaining())
}
