package broker

import (
	"context"
	"errors"
	"log"
	"sync"
)

var errQueueClosed = errors.New("channel queue closed")

// ChannelQueue is an in-process MessageQueue backed by a buffered
// channel. It serves tests and single-binary deployments that have no
// Kafka to talk to.
type ChannelQueue struct {
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelQueue(buffer int) *ChannelQueue {
	return &ChannelQueue{
		messages: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (q *ChannelQueue) Publish(ctx context.Context, data []byte) error {
	select {
	case q.messages <- data:
		return nil
	case <-q.done:
		return errQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Consume(ctx context.Context, handler func([]byte) error) error {
	for {
		select {
		case msg := <-q.messages:
			if err := handler(msg); err != nil {
				log.Printf("Error processing message: %v", err)
			}
		case <-q.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *ChannelQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
