package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that miss. Callers should treat it
// as "no live data yet", not as a distinct failure.
var ErrNotFound = errors.New("not found")

// Interval selects the rollup resolution for statistic queries.
type Interval string

const (
	IntervalCurrent Interval = "current"
	IntervalMinute  Interval = "minute"
	IntervalHour    Interval = "hour"
	IntervalDay     Interval = "day"
)

func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case IntervalCurrent, IntervalMinute, IntervalHour, IntervalDay:
		return Interval(s), nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// StatQuery narrows a statistic query. A non-nil DeviceID restricts the
// result to a single device and forces minute resolution.
type StatQuery struct {
	Interval   Interval `json:"interval"`
	DeviceType string   `json:"device_type,omitempty"`
	DeviceID   *int     `json:"device_id,omitempty"`
}

// StatPoint is one rolled-up average at the query's resolution.
type StatPoint struct {
	DeviceID   int       `json:"device_id" bson:"dev_id"`
	DeviceType string    `json:"device_type" bson:"type"`
	Timestamp  time.Time `json:"timestamp" bson:"date"`
	Average    float64   `json:"average" bson:"ave"`
}

// LiveValue is the most recently ingested reading for a device.
type LiveValue struct {
	DeviceID   int     `json:"device_id"`
	DeviceType string  `json:"device_type"`
	Value      float64 `json:"value"`
}

// StatStore accumulates per-minute running averages and answers rollup
// queries over them.
type StatStore interface {
	RecordSample(ctx context.Context, deviceID int, deviceType string, ts time.Time, value *float64) error
	Query(ctx context.Context, q StatQuery) ([]StatPoint, error)
	DeleteDevice(ctx context.Context, deviceID int, deviceType string) error
}

// LiveStore caches the latest value per (device type, device id).
type LiveStore interface {
	SetValue(ctx context.Context, deviceID int, deviceType string, value *float64) error
	ListAll(ctx context.Context) ([]LiveValue, error)
	GetOne(ctx context.Context, deviceID int, deviceType string) (LiveValue, error)
	ClearOne(ctx context.Context, deviceID int, deviceType string) error
}
