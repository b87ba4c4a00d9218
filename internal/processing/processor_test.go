package processing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/daergoth/HomeWire/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeStatStore struct {
	recorded []domain.Reading
	err      error
}

func (f *fakeStatStore) RecordSample(ctx context.Context, deviceID int, deviceType string, ts time.Time, value *float64) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, domain.Reading{DeviceID: deviceID, DeviceType: deviceType, Timestamp: ts, Value: value})
	return nil
}

func (f *fakeStatStore) Query(ctx context.Context, q domain.StatQuery) ([]domain.StatPoint, error) {
	return nil, nil
}

func (f *fakeStatStore) DeleteDevice(ctx context.Context, deviceID int, deviceType string) error {
	return nil
}

type fakeLiveStore struct {
	set []domain.Reading
	err error
}

func (f *fakeLiveStore) SetValue(ctx context.Context, deviceID int, deviceType string, value *float64) error {
	if f.err != nil {
		return f.err
	}
	f.set = append(f.set, domain.Reading{DeviceID: deviceID, DeviceType: deviceType, Value: value})
	return nil
}

func (f *fakeLiveStore) ListAll(ctx context.Context) ([]domain.LiveValue, error) {
	return nil, nil
}

func (f *fakeLiveStore) GetOne(ctx context.Context, deviceID int, deviceType string) (domain.LiveValue, error) {
	return domain.LiveValue{}, domain.ErrNotFound
}

func (f *fakeLiveStore) ClearOne(ctx context.Context, deviceID int, deviceType string) error {
	return nil
}

type fakeCatalog struct {
	devices map[string]domain.Device
	findErr error
	saveErr error
	saved   []domain.Device
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{devices: make(map[string]domain.Device)}
}

func catalogKey(deviceID int, deviceType string) string {
	return fmt.Sprintf("%s/%d", deviceType, deviceID)
}

func (f *fakeCatalog) FindByIDAndType(ctx context.Context, deviceID int, deviceType string) (domain.Device, error) {
	if f.findErr != nil {
		return domain.Device{}, f.findErr
	}
	device, ok := f.devices[catalogKey(deviceID, deviceType)]
	if !ok {
		return domain.Device{}, domain.ErrNotFound
	}
	return device, nil
}

func (f *fakeCatalog) Save(ctx context.Context, device domain.Device) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.devices[catalogKey(device.ID, device.Type)] = device
	f.saved = append(f.saved, device)
	return nil
}

func (f *fakeCatalog) List(ctx context.Context) ([]domain.Device, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []domain.ChangeEvent
	err    error
}

func (f *fakeNotifier) Submit(ctx context.Context, event domain.ChangeEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func fval(v float64) *float64 { return &v }

func testReading() domain.Reading {
	return domain.Reading{
		DeviceID:   7,
		DeviceType: "temperature",
		Category:   "sensor",
		Timestamp:  time.Date(2017, time.March, 4, 15, 5, 0, 0, time.UTC),
		Value:      fval(21.5),
	}
}

func TestProcessFansOutToBothStores(t *testing.T) {
	stats := &fakeStatStore{}
	live := &fakeLiveStore{}
	catalog := newFakeCatalog()
	notifier := &fakeNotifier{}

	p := NewDeviceProcessor(stats, live, catalog, notifier)
	require.NoError(t, p.Process(context.Background(), testReading()))

	require.Len(t, stats.recorded, 1)
	require.Len(t, live.set, 1)
	require.Len(t, notifier.events, 1)

	event := notifier.events[0]
	require.Equal(t, 7, event.DeviceID)
	require.Equal(t, "temperature", event.DeviceType)
	require.Equal(t, 21.5, *event.Value)
}

func TestProcessAutoRegistersUnknownDevice(t *testing.T) {
	catalog := newFakeCatalog()
	p := NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, catalog, &fakeNotifier{})

	require.NoError(t, p.Process(context.Background(), testReading()))

	require.Len(t, catalog.saved, 1)
	device := catalog.saved[0]
	require.Equal(t, "Unknown - temperature7", device.Name)
	require.Equal(t, "sensor", device.Category)
	require.False(t, device.Favorite)

	// Second reading for the same device does not re-register.
	require.NoError(t, p.Process(context.Background(), testReading()))
	require.Len(t, catalog.saved, 1)
}

func TestProcessKnownDeviceNotOverwritten(t *testing.T) {
	catalog := newFakeCatalog()
	existing := domain.Device{ID: 7, Name: "Kitchen sensor", Type: "temperature", Favorite: true}
	require.NoError(t, catalog.Save(context.Background(), existing))
	catalog.saved = nil

	p := NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, catalog, &fakeNotifier{})
	require.NoError(t, p.Process(context.Background(), testReading()))

	require.Empty(t, catalog.saved)
}

func TestProcessPartialStoreFailureSucceeds(t *testing.T) {
	storeErr := errors.New("mongo down")

	for name, p := range map[string]*DeviceProcessor{
		"statistic failing": NewDeviceProcessor(&fakeStatStore{err: storeErr}, &fakeLiveStore{}, newFakeCatalog(), &fakeNotifier{}),
		"live failing":      NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{err: storeErr}, newFakeCatalog(), &fakeNotifier{}),
	} {
		require.NoError(t, p.Process(context.Background(), testReading()), name)
	}
}

func TestProcessBothStoresFailingErrors(t *testing.T) {
	storeErr := errors.New("mongo down")
	notifier := &fakeNotifier{}
	p := NewDeviceProcessor(&fakeStatStore{err: storeErr}, &fakeLiveStore{err: storeErr}, newFakeCatalog(), notifier)

	err := p.Process(context.Background(), testReading())
	require.Error(t, err)
	require.ErrorIs(t, err, storeErr)
	require.Empty(t, notifier.events)
}

func TestProcessFlowNotifiedEvenOnPartialFailure(t *testing.T) {
	notifier := &fakeNotifier{}
	p := NewDeviceProcessor(&fakeStatStore{err: errors.New("mongo down")}, &fakeLiveStore{}, newFakeCatalog(), notifier)

	require.NoError(t, p.Process(context.Background(), testReading()))
	require.Len(t, notifier.events, 1)
}

func TestProcessCatalogFailureDoesNotFailIngestion(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.findErr = errors.New("catalog down")
	notifier := &fakeNotifier{}

	p := NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, catalog, notifier)
	require.NoError(t, p.Process(context.Background(), testReading()))
	require.Len(t, notifier.events, 1)

	catalog = newFakeCatalog()
	catalog.saveErr = errors.New("catalog down")
	p = NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, catalog, notifier)
	require.NoError(t, p.Process(context.Background(), testReading()))
}

func TestProcessNilValueStillNotifiesFlow(t *testing.T) {
	stats := &fakeStatStore{}
	live := &fakeLiveStore{}
	notifier := &fakeNotifier{}
	p := NewDeviceProcessor(stats, live, newFakeCatalog(), notifier)

	reading := testReading()
	reading.Value = nil
	require.NoError(t, p.Process(context.Background(), reading))

	// The stores received the nil-value reading (and dropped it), and
	// the flow engine still heard about the event.
	require.Len(t, stats.recorded, 1)
	require.Nil(t, stats.recorded[0].Value)
	require.Len(t, notifier.events, 1)
	require.Nil(t, notifier.events[0].Value)
}

func TestProcessFlowFailureIsSwallowed(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("flow down")}
	p := NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, newFakeCatalog(), notifier)

	require.NoError(t, p.Process(context.Background(), testReading()))
	require.Len(t, notifier.events, 1)
}

func TestProcessWithoutCatalogOrFlow(t *testing.T) {
	p := NewDeviceProcessor(&fakeStatStore{}, &fakeLiveStore{}, nil, nil)
	require.NoError(t, p.Process(context.Background(), testReading()))
}
