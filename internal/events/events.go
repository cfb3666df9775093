// Package events is the change feed: publishers announce mutations on a
// topic and every subscriber of that topic, in this process or another,
// receives the payload.
package events

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("events: broker closed")

// DefaultBuffer is the per-subscription queue length. When a subscriber
// falls behind, the oldest queued payload is dropped.
const DefaultBuffer = 16

// Broker publishes payloads to topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers payloads for one topic until closed. The channel
// is closed when the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Change is the payload published for task and message mutations.
// Subscribers re-read the full collection on every change.
type Change struct {
	Kind      string `json:"kind"`
	ProjectID uint64 `json:"project_id"`
	ID        uint64 `json:"id,omitempty"`
}

const (
	KindTaskCreated    = "task.created"
	KindTaskUpdated    = "task.updated"
	KindTaskDeleted    = "task.deleted"
	KindMessageCreated = "message.created"
)

// ProjectTasksTopic is the topic for mutations of a project's task collection.
func ProjectTasksTopic(projectID uint64) string {
	return fmt.Sprintf("project:%d:tasks", projectID)
}

// ProjectMessagesTopic is the topic for a project's chat.
func ProjectMessagesTopic(projectID uint64) string {
	return fmt.Sprintf("project:%d:messages", projectID)
}

// offer enqueues payload without blocking, dropping the oldest queued
// payload when ch is full.
func offer(ch chan []byte, payload []byte) {
	for {
		select {
		case ch <- payload:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
