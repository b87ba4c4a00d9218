package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/daergoth/HomeWire/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const statisticCollection = "statistic_data"

// recordAttempts bounds the retry loop in RecordSample. Each retry only
// happens when a concurrent writer won a race for the same bucket, so
// hitting the bound means the document is pathologically contended.
const recordAttempts = 5

// StatisticStore keeps one document per (device, hour) in the
// statistic_data collection:
//
//	{dev_id, type, date_hour, values: [{minute, num, sum}, ...]}
//
// Each minute slot carries a running count and sum so averages can be
// rolled up at read time without storing raw samples.
type StatisticStore struct {
	collection *mongo.Collection
}

func NewStatisticStore(db *mongo.Database) (*StatisticStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	collection := db.Collection(statisticCollection)

	indexModels := []mongo.IndexModel{
		{
			// The bucket key. Uniqueness turns the concurrent
			// create-bucket race into a duplicate-key error that
			// RecordSample retries as an in-place update.
			Keys: bson.D{
				{Key: "dev_id", Value: 1},
				{Key: "date_hour", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "date_hour", Value: 1},
			},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to ensure statistic indexes: %w", err)
	}

	return &StatisticStore{collection: collection}, nil
}

// RecordSample folds one reading into its minute slot. A nil value is
// dropped with a warning; callers must not rely on an error for it.
func (s *StatisticStore) RecordSample(ctx context.Context, deviceID int, deviceType string, ts time.Time, value *float64) error {
	if value == nil {
		log.Printf("statistic: reading without value for device %d/%s, skipping", deviceID, deviceType)
		return nil
	}

	hour := ts.UTC().Truncate(time.Hour)
	minute := ts.UTC().Minute()

	for attempt := 0; attempt < recordAttempts; attempt++ {
		// Fast path: the slot already exists, bump it in place.
		res, err := s.collection.UpdateOne(ctx,
			bucketSlotFilter(deviceID, deviceType, hour, minute),
			slotIncrement(*value))
		if err != nil {
			return fmt.Errorf("failed to increment minute slot: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		// No slot yet: append one, creating the bucket if needed. The
		// $ne guard keeps a concurrent writer from producing a second
		// slot for the same minute.
		_, err = s.collection.UpdateOne(ctx,
			bucketWithoutSlotFilter(deviceID, deviceType, hour, minute),
			slotPush(minute, *value),
			options.UpdateOne().SetUpsert(true))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to append minute slot: %w", err)
		}
		// Lost the create race: the bucket (or the slot itself)
		// appeared between the two updates. Go around again.
	}

	return fmt.Errorf("gave up recording sample for device %d/%s after %d contended attempts", deviceID, deviceType, recordAttempts)
}

// Query rolls stored buckets up to the requested resolution inside the
// database and returns the points ordered by timestamp.
func (s *StatisticStore) Query(ctx context.Context, q domain.StatQuery) ([]domain.StatPoint, error) {
	pipeline, err := buildStatPipeline(q)
	if err != nil {
		return nil, err
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var points []domain.StatPoint
	if err := cursor.All(ctx, &points); err != nil {
		return nil, fmt.Errorf("failed to decode statistic points: %w", err)
	}

	return points, nil
}

func (s *StatisticStore) DeleteDevice(ctx context.Context, deviceID int, deviceType string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{
		"dev_id": deviceID,
		"type":   deviceType,
	})
	if err != nil {
		return fmt.Errorf("failed to delete statistics for device %d/%s: %w", deviceID, deviceType, err)
	}
	return nil
}

func bucketFilter(deviceID int, deviceType string, hour time.Time) bson.M {
	return bson.M{
		"dev_id":    deviceID,
		"date_hour": hour,
		"type":      deviceType,
	}
}

func bucketSlotFilter(deviceID int, deviceType string, hour time.Time, minute int) bson.M {
	filter := bucketFilter(deviceID, deviceType, hour)
	filter["values.minute"] = minute
	return filter
}

func bucketWithoutSlotFilter(deviceID int, deviceType string, hour time.Time, minute int) bson.M {
	filter := bucketFilter(deviceID, deviceType, hour)
	filter["values.minute"] = bson.M{"$ne": minute}
	return filter
}

func slotIncrement(value float64) bson.M {
	return bson.M{
		"$inc": bson.M{
			"values.$.num": 1,
			"values.$.sum": value,
		},
	}
}

func slotPush(minute int, value float64) bson.M {
	return bson.M{
		"$push": bson.M{
			"values": bson.M{
				"minute": minute,
				"num":    1,
				"sum":    value,
			},
		},
	}
}

func buildStatPipeline(q domain.StatQuery) ([]bson.M, error) {
	var pipeline []bson.M

	if q.DeviceID != nil {
		// Single-device queries are always minute-resolution.
		pipeline = append(pipeline, bson.M{"$match": bson.M{
			"dev_id": *q.DeviceID,
			"type":   q.DeviceType,
		}})
		return append(pipeline, minuteStages()...), nil
	}

	if q.DeviceType != "" {
		pipeline = append(pipeline, bson.M{"$match": bson.M{"type": q.DeviceType}})
	}

	switch q.Interval {
	case domain.IntervalCurrent, domain.IntervalMinute:
		return append(pipeline, minuteStages()...), nil
	case domain.IntervalHour:
		return append(pipeline, hourStages()...), nil
	case domain.IntervalDay:
		return append(pipeline, dayStages()...), nil
	}
	return nil, fmt.Errorf("unknown interval %q", q.Interval)
}

// minuteStages unwinds every slot into its own point at
// date_hour + minute, averaged over that slot alone.
func minuteStages() []bson.M {
	return []bson.M{
		{"$unwind": "$values"},
		{"$project": bson.M{
			"_id":    0,
			"dev_id": 1,
			"type":   1,
			"date": bson.M{"$add": bson.A{
				"$date_hour",
				bson.M{"$multiply": bson.A{"$values.minute", 60000}},
			}},
			"ave": bson.M{"$divide": bson.A{"$values.sum", "$values.num"}},
		}},
		{"$sort": bson.M{"date": 1}},
	}
}

// hourStages emits one point per bucket whose average is the unweighted
// mean of the per-minute means. Minutes with few samples count the same
// as busy ones; historical consumers depend on exactly this.
func hourStages() []bson.M {
	return []bson.M{
		{"$project": bson.M{
			"_id":    0,
			"dev_id": 1,
			"type":   1,
			"date":   "$date_hour",
			"ave": bson.M{"$avg": bson.M{"$map": bson.M{
				"input": "$values",
				"as":    "value",
				"in":    bson.M{"$divide": bson.A{"$$value.sum", "$$value.num"}},
			}}},
		}},
		{"$sort": bson.M{"date": 1}},
	}
}

// dayStages first collapses each bucket into a sample-weighted hour
// average, then groups same-day hours with an unweighted mean. Note the
// weighting differs from hourStages on purpose; see DESIGN.md.
func dayStages() []bson.M {
	return []bson.M{
		{"$project": bson.M{
			"_id":    0,
			"dev_id": 1,
			"type":   1,
			"date": bson.M{"$subtract": bson.A{
				"$date_hour",
				bson.M{"$multiply": bson.A{bson.M{"$hour": "$date_hour"}, 60, 60000}},
			}},
			"ave": bson.M{"$divide": bson.A{
				bson.M{"$sum": "$values.sum"},
				bson.M{"$sum": "$values.num"},
			}},
		}},
		{"$group": bson.M{
			"_id": bson.M{
				"date":   "$date",
				"dev_id": "$dev_id",
				"type":   "$type",
			},
			"ave": bson.M{"$avg": "$ave"},
		}},
		{"$project": bson.M{
			"_id":    0,
			"dev_id": "$_id.dev_id",
			"type":   "$_id.type",
			"date":   "$_id.date",
			"ave":    "$ave",
		}},
		{"$sort": bson.M{"date": 1}},
	}
}
