// internal/countdown/countdown.go
// Package countdown provides the second-resolution timer shared by the
// match confirmation window and the room chat clock.
package countdown

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown counts down whole ticks from a deadline. Every callback runs
// through the dispatch function handed to New, so a countdown owned by a
// connection never races the state machine it drives.
//
// Starting a countdown cancels the previous run; ticks still in flight from
// the cancelled run are dropped.
type Countdown struct {
	clock    clockwork.Clock
	dispatch func(func())
	interval time.Duration

	mu        sync.Mutex
	gen       uint64
	running   bool
	deadline  time.Time
	remaining int
	stop      chan struct{}
}

type Option func(*Countdown)

// WithInterval sets the length of one tick. Defaults to one second.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

func New(clock clockwork.Clock, dispatch func(func()), opts ...Option) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	c := &Countdown{clock: clock, dispatch: dispatch, interval: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins counting down from ticks. onTick receives every new
// remaining value down to 0; onDone fires exactly once when 0 is reached.
// A non-positive start fires onDone immediately.
func (c *Countdown) Start(ticks int, onTick func(remaining int), onDone func()) {
	c.mu.Lock()
	c.cancelLocked()
	c.gen++
	gen := c.gen

	if ticks <= 0 {
		c.remaining = 0
		c.mu.Unlock()
		c.dispatch(func() {
			if c.current(gen) && onDone != nil {
				onDone()
			}
		})
		return
	}

	// keep the deadline representable
	if limit := math.MaxInt64 / int64(c.interval); int64(ticks) > limit {
		ticks = int(limit)
	}
	c.running = true
	c.remaining = ticks
	c.deadline = c.clock.Now().Add(time.Duration(ticks) * c.interval)
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.NewTicker(c.interval)
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				c.dispatch(func() { c.tick(gen, onTick, onDone) })
			}
		}
	}()
}

// Stop cancels the current run. Remaining keeps its last value.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.gen++
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) cancelLocked() {
	if c.running {
		c.running = false
		close(c.stop)
	}
}

func (c *Countdown) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Countdown) tick(gen uint64, onTick func(int), onDone func()) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	left := c.deadline.Sub(c.clock.Now())
	remaining := 0
	if left > 0 {
		remaining = int((left + c.interval - 1) / c.interval)
	}
	if remaining == c.remaining {
		c.mu.Unlock()
		return
	}
	c.remaining = remaining
	if remaining == 0 {
		c.cancelLocked()
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if remaining == 0 && onDone != nil {
		onDone()
	}
}
