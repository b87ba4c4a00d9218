package db

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/daergoth/HomeWire/internal/domain"
)

// In-memory counterparts of the Mongo stores. They implement the same
// rollup semantics and are used by tests and the channels dev mode,
// where no MongoDB is available.

type memorySlot struct {
	minute int
	num    int
	sum    float64
}

type bucketKey struct {
	deviceID   int
	deviceType string
	hour       time.Time
}

type MemoryStatisticStore struct {
	mu      sync.Mutex
	buckets map[bucketKey][]memorySlot
}

func NewMemoryStatisticStore() *MemoryStatisticStore {
	return &MemoryStatisticStore{buckets: make(map[bucketKey][]memorySlot)}
}

func (s *MemoryStatisticStore) RecordSample(ctx context.Context, deviceID int, deviceType string, ts time.Time, value *float64) error {
	if value == nil {
		log.Printf("statistic: reading without value for device %d/%s, skipping", deviceID, deviceType)
		return nil
	}

	key := bucketKey{
		deviceID:   deviceID,
		deviceType: deviceType,
		hour:       ts.UTC().Truncate(time.Hour),
	}
	minute := ts.UTC().Minute()

	s.mu.Lock()
	defer s.mu.Unlock()

	slots := s.buckets[key]
	for i := range slots {
		if slots[i].minute == minute {
			slots[i].num++
			slots[i].sum += *value
			return nil
		}
	}
	s.buckets[key] = append(slots, memorySlot{minute: minute, num: 1, sum: *value})
	return nil
}

func (s *MemoryStatisticStore) Query(ctx context.Context, q domain.StatQuery) ([]domain.StatPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.DeviceID != nil {
		return s.minutePoints(func(k bucketKey) bool {
			return k.deviceID == *q.DeviceID && k.deviceType == q.DeviceType
		})
	}

	match := func(k bucketKey) bool {
		return q.DeviceType == "" || k.deviceType == q.DeviceType
	}

	switch q.Interval {
	case domain.IntervalCurrent, domain.IntervalMinute:
		return s.minutePoints(match)
	case domain.IntervalHour:
		return s.hourPoints(match)
	case domain.IntervalDay:
		return s.dayPoints(match)
	}
	return nil, fmt.Errorf("unknown interval %q", q.Interval)
}

func (s *MemoryStatisticStore) minutePoints(match func(bucketKey) bool) ([]domain.StatPoint, error) {
	var points []domain.StatPoint
	for key, slots := range s.buckets {
		if !match(key) {
			continue
		}
		for _, slot := range slots {
			if slot.num == 0 {
				return nil, fmt.Errorf("corrupt bucket for device %d/%s: zero-count slot", key.deviceID, key.deviceType)
			}
			points = append(points, domain.StatPoint{
				DeviceID:   key.deviceID,
				DeviceType: key.deviceType,
				Timestamp:  key.hour.Add(time.Duration(slot.minute) * time.Minute),
				Average:    slot.sum / float64(slot.num),
			})
		}
	}
	sortPoints(points)
	return points, nil
}

func (s *MemoryStatisticStore) hourPoints(match func(bucketKey) bool) ([]domain.StatPoint, error) {
	var points []domain.StatPoint
	for key, slots := range s.buckets {
		if !match(key) {
			continue
		}
		// Unweighted mean of the per-minute means.
		var total float64
		for _, slot := range slots {
			if slot.num == 0 {
				return nil, fmt.Errorf("corrupt bucket for device %d/%s: zero-count slot", key.deviceID, key.deviceType)
			}
			total += slot.sum / float64(slot.num)
		}
		points = append(points, domain.StatPoint{
			DeviceID:   key.deviceID,
			DeviceType: key.deviceType,
			Timestamp:  key.hour,
			Average:    total / float64(len(slots)),
		})
	}
	sortPoints(points)
	return points, nil
}

func (s *MemoryStatisticStore) dayPoints(match func(bucketKey) bool) ([]domain.StatPoint, error) {
	type dayKey struct {
		deviceID   int
		deviceType string
		day        time.Time
	}
	type dayAccum struct {
		total float64
		hours int
	}

	accums := make(map[dayKey]*dayAccum)
	for key, slots := range s.buckets {
		if !match(key) {
			continue
		}
		// Sample-weighted average for the hour, unlike hourPoints.
		var num int
		var sum float64
		for _, slot := range slots {
			num += slot.num
			sum += slot.sum
		}
		if num == 0 {
			return nil, fmt.Errorf("corrupt bucket for device %d/%s: zero-count slot", key.deviceID, key.deviceType)
		}

		h := key.hour
		dk := dayKey{
			deviceID:   key.deviceID,
			deviceType: key.deviceType,
			day:        time.Date(h.Year(), h.Month(), h.Day(), 0, 0, 0, 0, time.UTC),
		}
		accum, ok := accums[dk]
		if !ok {
			accum = &dayAccum{}
			accums[dk] = accum
		}
		accum.total += sum / float64(num)
		accum.hours++
	}

	var points []domain.StatPoint
	for dk, accum := range accums {
		points = append(points, domain.StatPoint{
			DeviceID:   dk.deviceID,
			DeviceType: dk.deviceType,
			Timestamp:  dk.day,
			Average:    accum.total / float64(accum.hours),
		})
	}
	sortPoints(points)
	return points, nil
}

func (s *MemoryStatisticStore) DeleteDevice(ctx context.Context, deviceID int, deviceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.buckets {
		if key.deviceID == deviceID && key.deviceType == deviceType {
			delete(s.buckets, key)
		}
	}
	return nil
}

func sortPoints(points []domain.StatPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

type MemoryLiveStore struct {
	mu     sync.Mutex
	values map[string]map[int]float64
}

func NewMemoryLiveStore() *MemoryLiveStore {
	return &MemoryLiveStore{values: make(map[string]map[int]float64)}
}

func (s *MemoryLiveStore) SetValue(ctx context.Context, deviceID int, deviceType string, value *float64) error {
	if value == nil {
		log.Printf("live: reading without value for device %d/%s, skipping", deviceID, deviceType)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.values[deviceType]
	if !ok {
		byID = make(map[int]float64)
		s.values[deviceType] = byID
	}
	byID[deviceID] = *value
	return nil
}

func (s *MemoryLiveStore) ListAll(ctx context.Context) ([]domain.LiveValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.LiveValue
	for deviceType, byID := range s.values {
		for deviceID, value := range byID {
			result = append(result, domain.LiveValue{
				DeviceID:   deviceID,
				DeviceType: deviceType,
				Value:      value,
			})
		}
	}
	return result, nil
}

func (s *MemoryLiveStore) GetOne(ctx context.Context, deviceID int, deviceType string) (domain.LiveValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[deviceType][deviceID]
	if !ok {
		return domain.LiveValue{}, domain.ErrNotFound
	}
	return domain.LiveValue{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Value:      value,
	}, nil
}

func (s *MemoryLiveStore) ClearOne(ctx context.Context, deviceID int, deviceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values[deviceType], deviceID)
	return nil
}

type MemoryDeviceCatalog struct {
	mu      sync.Mutex
	devices map[bucketKey]domain.Device
}

func NewMemoryDeviceCatalog() *MemoryDeviceCatalog {
	return &MemoryDeviceCatalog{devices: make(map[bucketKey]domain.Device)}
}

func (s *MemoryDeviceCatalog) FindByIDAndType(ctx context.Context, deviceID int, deviceType string) (domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[bucketKey{deviceID: deviceID, deviceType: deviceType}]
	if !ok {
		return domain.Device{}, domain.ErrNotFound
	}
	return device, nil
}

func (s *MemoryDeviceCatalog) Save(ctx context.Context, device domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[bucketKey{deviceID: device.ID, deviceType: device.Type}] = device
	return nil
}

func (s *MemoryDeviceCatalog) List(ctx context.Context) ([]domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []domain.Device
	for _, device := range s.devices {
		devices = append(devices, device)
	}
	return devices, nil
}
