package domain

import (
	"context"
	"time"
)

// Reading is one timestamped sample reported by a device. Value is a
// pointer because some device protocols emit heartbeats without a
// numeric payload; stores treat a nil value as "nothing to record".
type Reading struct {
	DeviceID   int       `json:"device_id"`
	DeviceType string    `json:"device_type"`
	Category   string    `json:"category,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Value      *float64  `json:"value,omitempty"`
}

type BulkReadings struct {
	Data []Reading `json:"data"`
}

// ChangeEvent is what the flow engine receives for every ingested
// reading, value or not.
type ChangeEvent struct {
	DeviceID   int       `json:"device_id"`
	DeviceType string    `json:"device_type"`
	Value      *float64  `json:"value,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type FlowNotifier interface {
	Submit(ctx context.Context, event ChangeEvent) error
}
