package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/daergoth/HomeWire/internal/broker"
	"github.com/daergoth/HomeWire/internal/domain"
)

// LogNotifier is the default flow target when no flow engine is wired
// up: it just logs every change event.
type LogNotifier struct {
	name string
}

func NewLogNotifier(name string) *LogNotifier {
	return &LogNotifier{name: name}
}

func (n *LogNotifier) Submit(ctx context.Context, event domain.ChangeEvent) error {
	if event.Value != nil {
		log.Printf("[%s] Device %d/%s changed to %.2f at %s",
			n.name, event.DeviceID, event.DeviceType, *event.Value, event.Timestamp)
	} else {
		log.Printf("[%s] Device %d/%s reported without value at %s",
			n.name, event.DeviceID, event.DeviceType, event.Timestamp)
	}
	return nil
}

// QueueNotifier publishes change events to a message queue for the
// external flow execution engine.
type QueueNotifier struct {
	queue broker.MessageQueue
}

func NewQueueNotifier(queue broker.MessageQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Submit(ctx context.Context, event domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize change event: %w", err)
	}
	return n.queue.Publish(ctx, data)
}
