package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/daergoth/HomeWire/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const liveCollection = "live_data"

// LiveStore keeps one document per device type in the live_data
// collection, mapping device ids to their latest value:
//
//	{type, values: {"<dev_id>": <float>, ...}}
//
// Every mutation touches a single values.<id> field so concurrent
// updates for different devices of the same type never conflict.
type LiveStore struct {
	collection *mongo.Collection
}

func NewLiveStore(db *mongo.Database) *LiveStore {
	return &LiveStore{collection: db.Collection(liveCollection)}
}

// valueField addresses one device's entry inside a type document.
// All update paths go through here; never concatenate field paths at
// call sites.
func valueField(deviceID int) string {
	return "values." + strconv.Itoa(deviceID)
}

type liveDocument struct {
	Type   string             `bson:"type"`
	Values map[string]float64 `bson:"values"`
}

func (s *LiveStore) SetValue(ctx context.Context, deviceID int, deviceType string, value *float64) error {
	if value == nil {
		log.Printf("live: reading without value for device %d/%s, skipping", deviceID, deviceType)
		return nil
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"type": deviceType},
		bson.M{"$set": bson.M{valueField(deviceID): *value}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set live value for device %d/%s: %w", deviceID, deviceType, err)
	}
	return nil
}

func (s *LiveStore) ListAll(ctx context.Context) ([]domain.LiveValue, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list live values: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []liveDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode live documents: %w", err)
	}

	var result []domain.LiveValue
	for _, doc := range docs {
		for key, value := range doc.Values {
			deviceID, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("corrupt live document for type %q: bad device key %q", doc.Type, key)
			}
			result = append(result, domain.LiveValue{
				DeviceID:   deviceID,
				DeviceType: doc.Type,
				Value:      value,
			})
		}
	}

	return result, nil
}

// GetOne returns domain.ErrNotFound both when the type document is
// missing and when it has no entry for the device; callers cannot tell
// the two apart.
func (s *LiveStore) GetOne(ctx context.Context, deviceID int, deviceType string) (domain.LiveValue, error) {
	var doc liveDocument
	err := s.collection.FindOne(ctx, bson.M{"type": deviceType}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.LiveValue{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LiveValue{}, fmt.Errorf("failed to look up live value for device %d/%s: %w", deviceID, deviceType, err)
	}

	value, ok := doc.Values[strconv.Itoa(deviceID)]
	if !ok {
		return domain.LiveValue{}, domain.ErrNotFound
	}

	return domain.LiveValue{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Value:      value,
	}, nil
}

func (s *LiveStore) ClearOne(ctx context.Context, deviceID int, deviceType string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"type": deviceType},
		bson.M{"$unset": bson.M{valueField(deviceID): ""}})
	if err != nil {
		return fmt.Errorf("failed to clear live value for device %d/%s: %w", deviceID, deviceType, err)
	}
	return nil
}
