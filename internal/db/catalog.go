package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/daergoth/HomeWire/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const setupCollection = "device_setup"

// DeviceCatalogStore is the device setup catalog consulted during
// ingestion for auto-discovery.
type DeviceCatalogStore struct {
	collection *mongo.Collection
}

func NewDeviceCatalogStore(db *mongo.Database) *DeviceCatalogStore {
	return &DeviceCatalogStore{collection: db.Collection(setupCollection)}
}

func (s *DeviceCatalogStore) FindByIDAndType(ctx context.Context, deviceID int, deviceType string) (domain.Device, error) {
	var device domain.Device
	err := s.collection.FindOne(ctx, bson.M{
		"dev_id": deviceID,
		"type":   deviceType,
	}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Device{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Device{}, fmt.Errorf("failed to look up device %d/%s: %w", deviceID, deviceType, err)
	}
	return device, nil
}

func (s *DeviceCatalogStore) Save(ctx context.Context, device domain.Device) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"dev_id": device.ID, "type": device.Type},
		bson.M{"$set": device},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save device %d/%s: %w", device.ID, device.Type, err)
	}
	return nil
}

func (s *DeviceCatalogStore) List(ctx context.Context) ([]domain.Device, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer cursor.Close(ctx)

	var devices []domain.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}
