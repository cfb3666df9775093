package events

import (
	"context"
	"slices"
	"sync"
)

// MemoryBroker fans payloads out to subscribers inside one process.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: DefaultBuffer,
	}
}

// Publish delivers payload to every current subscriber of topic.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for s := range b.subs[topic] {
		offer(s.ch, slices.Clone(payload))
	}
	return nil
}

// Subscribe registers a subscriber on topic. The subscription is closed
// when ctx is done or Close is called.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan []byte, b.buffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s, nil
}

// Close ends every subscription and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.topic)
		}
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan []byte
	once   sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

// Close unregisters before closing the channel; Publish holds the read
// lock while sending, so no send can race the close.
func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.broker.remove(s)
		close(s.ch)
	})
	return nil
}
