package processing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/daergoth/HomeWire/internal/domain"
)

// DeviceProcessor fans one normalized reading out to the statistic and
// live stores, auto-registers unknown devices in the catalog, and hands
// the change event to the flow engine. It does no aggregation itself.
type DeviceProcessor struct {
	stats   domain.StatStore
	live    domain.LiveStore
	catalog domain.DeviceCatalog
	flow    domain.FlowNotifier
}

func NewDeviceProcessor(stats domain.StatStore, live domain.LiveStore, catalog domain.DeviceCatalog, flow domain.FlowNotifier) *DeviceProcessor {
	return &DeviceProcessor{
		stats:   stats,
		live:    live,
		catalog: catalog,
		flow:    flow,
	}
}

// Process ingests one reading. Both store writes are always attempted;
// a single store failing is logged and counted but does not fail the
// call. Only when both stores reject the reading is an error returned,
// and no retry happens here in either case.
func (p *DeviceProcessor) Process(ctx context.Context, r domain.Reading) error {
	statErr := p.stats.RecordSample(ctx, r.DeviceID, r.DeviceType, r.Timestamp, r.Value)
	if statErr != nil {
		log.Printf("processing: statistic store rejected reading for device %d/%s: %v", r.DeviceID, r.DeviceType, statErr)
		storeFailures.WithLabelValues("statistic").Inc()
	}

	liveErr := p.live.SetValue(ctx, r.DeviceID, r.DeviceType, r.Value)
	if liveErr != nil {
		log.Printf("processing: live store rejected reading for device %d/%s: %v", r.DeviceID, r.DeviceType, liveErr)
		storeFailures.WithLabelValues("live").Inc()
	}

	if statErr != nil && liveErr != nil {
		return fmt.Errorf("both stores rejected reading for device %d/%s: %w", r.DeviceID, r.DeviceType, errors.Join(statErr, liveErr))
	}

	p.registerUnknownDevice(ctx, r)
	p.notifyFlow(ctx, r)

	readingsProcessed.Inc()
	return nil
}

// registerUnknownDevice adds a placeholder catalog entry the first time
// a device is seen. Catalog trouble never fails ingestion.
func (p *DeviceProcessor) registerUnknownDevice(ctx context.Context, r domain.Reading) {
	if p.catalog == nil {
		return
	}

	_, err := p.catalog.FindByIDAndType(ctx, r.DeviceID, r.DeviceType)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Printf("processing: device catalog lookup failed for device %d/%s: %v", r.DeviceID, r.DeviceType, err)
		return
	}

	device := domain.Device{
		ID:       r.DeviceID,
		Name:     fmt.Sprintf("Unknown - %s%d", r.DeviceType, r.DeviceID),
		Category: r.Category,
		Type:     r.DeviceType,
		Favorite: false,
	}
	if err := p.catalog.Save(ctx, device); err != nil {
		log.Printf("processing: failed to auto-register device %d/%s: %v", r.DeviceID, r.DeviceType, err)
	}
}

func (p *DeviceProcessor) notifyFlow(ctx context.Context, r domain.Reading) {
	if p.flow == nil {
		return
	}

	event := domain.ChangeEvent{
		DeviceID:   r.DeviceID,
		DeviceType: r.DeviceType,
		Value:      r.Value,
		Timestamp:  r.Timestamp,
	}
	if err := p.flow.Submit(ctx, event); err != nil {
		log.Printf("processing: flow notification failed for device %d/%s: %v", r.DeviceID, r.DeviceType, err)
		return
	}
	changeEvents.Inc()
}
