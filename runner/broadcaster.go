package runner

import (
	"sync"

	"github.com/evalcore/evalcore/execution"
)

// Broadcaster fans a single source of EventFrames out to any number of
// subscribers, each buffered independently so one slow reader can't stall
// another. Grounded on internal/channel/tunable.go's buffered-channel
// shape, simplified from its auto-tuning behavior to a fixed buffer per
// subscriber since the Runner's own event volume (one case_started plus one
// case_finished per case) doesn't warrant runtime resizing.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan execution.EventFrame
	nextID      int
	bufferSize  int
}

// NewBroadcaster builds a Broadcaster whose per-subscriber channels hold
// bufferSize frames before Publish starts dropping frames for that
// subscriber rather than blocking the Runner.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broadcaster{
		subscribers: make(map[int]chan execution.EventFrame),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel receiving every frame Published after this
// call, and a cancel func the caller must invoke to stop receiving and
// release the channel.
func (b *Broadcaster) Subscribe() (<-chan execution.EventFrame, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan execution.EventFrame, b.bufferSize)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish fans frame out to every current subscriber. A subscriber whose
// buffer is full is skipped for this frame rather than blocking the Runner;
// SSE consumers are expected to tolerate a dropped intermediate frame since
// get_status remains the source of truth.
func (b *Broadcaster) Publish(frame execution.EventFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are currently attached, for
// diagnostics and tests.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
