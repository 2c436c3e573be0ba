package bridge

import (
	"sync"
	"time"
)

// Notification is an in-process republish of a remote callback. Name is
// stable across releases; Payload carries the callback's data unchanged.
type Notification struct {
	Name      string
	Payload   map[string]any
	Timestamp time.Time
}

// Subscription is one consumer of a Bus. Read notifications from C until
// it is closed by Unsubscribe.
type Subscription struct {
	C  <-chan Notification
	ch chan Notification

	lossless bool
	gone     chan struct{}
	goneOnce sync.Once
}

// Bus hands remote notifications to in-process consumers. The bridge run
// loop holds a lossless subscription; observers such as loggers use lossy
// ones and never slow the remote caller down.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe adds a lossy subscriber: once its buffer of bufSize is full,
// further notifications are skipped for it.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	return b.add(bufSize, false)
}

// SubscribeLossless adds a subscriber that sees every notification in
// publish order. Publish waits for it while its buffer is full, so the
// subscriber must keep reading until it unsubscribes.
func (b *Bus) SubscribeLossless(bufSize int) *Subscription {
	return b.add(bufSize, true)
}

func (b *Bus) add(bufSize int, lossless bool) *Subscription {
	ch := make(chan Notification, bufSize)
	sub := &Subscription{C: ch, ch: ch, lossless: lossless, gone: make(chan struct{})}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe releases any Publish waiting on sub, then removes sub and
// closes its channel. Calling it twice is harmless.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.goneOnce.Do(func() { close(sub.gone) })

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers n to every subscriber. It returns once every lossless
// subscriber has n buffered or has unsubscribed.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.lossless {
			select {
			case sub.ch <- n:
			case <-sub.gone:
			}
			continue
		}

		select {
		case sub.ch <- n:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
