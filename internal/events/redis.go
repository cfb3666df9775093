package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker carries the change feed over Redis pub/sub so that every
// API process sees mutations made by any other.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	buffer int
}

// NewRedisBroker creates a broker that publishes on "<prefix>:<topic>" channels.
func NewRedisBroker(client *redis.Client, prefix string, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: prefix,
		logger: logger,
		buffer: DefaultBuffer,
	}
}

func (b *RedisBroker) channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + ":" + topic
}

// Publish sends payload to every subscriber of topic across processes.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning,
// so publications made after Subscribe returns are not missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, b.buffer),
		done: make(chan struct{}),
	}
	go s.pump(ctx, b.logger.With(zap.String("topic", topic)))
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}

func (s *redisSubscription) pump(ctx context.Context, logger *zap.Logger) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				logger.Debug("Redis subscription channel closed")
				return
			}
			offer(s.out, []byte(msg.Payload))
		}
	}
}
