// internal/conn/mailbox.go
// Unbounded queue of closures feeding the Manager loop.
package conn

import "sync"

// mailbox is an unbounded FIFO of closures drained by the Manager loop.
// Posting never blocks, so transport goroutines and timer callbacks can
// hand work to the loop without risking a deadlock against it.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (b *mailbox) post(f func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, f)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

func (b *mailbox) drain() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch
}

func (b *mailbox) close() {
	b.mu.Lock()
	b.closed = true
	b.queue = nil
	b.mu.Unlock()
}
