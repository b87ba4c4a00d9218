package db

import (
	"testing"
	"time"

	"github.com/daergoth/HomeWire/internal/domain"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var testHour = time.Date(2017, time.March, 4, 15, 0, 0, 0, time.UTC)

func TestBucketSlotFilter(t *testing.T) {
	filter := bucketSlotFilter(7, "temperature", testHour, 42)

	require.Equal(t, bson.M{
		"dev_id":        7,
		"date_hour":     testHour,
		"type":          "temperature",
		"values.minute": 42,
	}, filter)
}

func TestBucketWithoutSlotFilter(t *testing.T) {
	filter := bucketWithoutSlotFilter(7, "temperature", testHour, 42)

	require.Equal(t, bson.M{"$ne": 42}, filter["values.minute"])
}

func TestSlotIncrement(t *testing.T) {
	update := slotIncrement(21.5)

	require.Equal(t, bson.M{
		"$inc": bson.M{
			"values.$.num": 1,
			"values.$.sum": 21.5,
		},
	}, update)
}

func TestSlotPush(t *testing.T) {
	update := slotPush(42, 21.5)

	require.Equal(t, bson.M{
		"$push": bson.M{
			"values": bson.M{
				"minute": 42,
				"num":    1,
				"sum":    21.5,
			},
		},
	}, update)
}

func TestBuildStatPipelineMinute(t *testing.T) {
	pipeline, err := buildStatPipeline(domain.StatQuery{Interval: domain.IntervalMinute})
	require.NoError(t, err)

	require.Len(t, pipeline, 3)
	require.Equal(t, "$values", pipeline[0]["$unwind"])

	project := pipeline[1]["$project"].(bson.M)
	require.Equal(t, bson.M{"$divide": bson.A{"$values.sum", "$values.num"}}, project["ave"])
	require.Equal(t, bson.M{"date": 1}, pipeline[2]["$sort"])
}

func TestBuildStatPipelineCurrentMatchesMinute(t *testing.T) {
	current, err := buildStatPipeline(domain.StatQuery{Interval: domain.IntervalCurrent})
	require.NoError(t, err)
	minute, err := buildStatPipeline(domain.StatQuery{Interval: domain.IntervalMinute})
	require.NoError(t, err)

	require.Equal(t, minute, current)
}

func TestBuildStatPipelineHour(t *testing.T) {
	pipeline, err := buildStatPipeline(domain.StatQuery{Interval: domain.IntervalHour})
	require.NoError(t, err)

	require.Len(t, pipeline, 2)
	project := pipeline[0]["$project"].(bson.M)
	require.Equal(t, "$date_hour", project["date"])

	// The hour average must be the unweighted mean of per-minute means,
	// not sum-of-sums over sum-of-counts.
	avg := project["ave"].(bson.M)["$avg"].(bson.M)
	mapped := avg["$map"].(bson.M)
	require.Equal(t, "$values", mapped["input"])
	require.Equal(t, bson.M{"$divide": bson.A{"$$value.sum", "$$value.num"}}, mapped["in"])
}

func TestBuildStatPipelineDay(t *testing.T) {
	pipeline, err := buildStatPipeline(domain.StatQuery{Interval: domain.IntervalDay})
	require.NoError(t, err)

	require.Len(t, pipeline, 4)

	// Hour buckets collapse with a sample-weighted divide before the
	// per-day group averages them.
	project := pipeline[0]["$project"].(bson.M)
	require.Equal(t, bson.M{"$divide": bson.A{
		bson.M{"$sum": "$values.sum"},
		bson.M{"$sum": "$values.num"},
	}}, project["ave"])

	group := pipeline[1]["$group"].(bson.M)
	require.Equal(t, bson.M{"$avg": "$ave"}, group["ave"])
	require.Equal(t, bson.M{"date": 1}, pipeline[3]["$sort"])
}

func TestBuildStatPipelineTypeFilter(t *testing.T) {
	for _, interval := range []domain.Interval{domain.IntervalMinute, domain.IntervalHour, domain.IntervalDay} {
		pipeline, err := buildStatPipeline(domain.StatQuery{Interval: interval, DeviceType: "humidity"})
		require.NoError(t, err)
		require.Equal(t, bson.M{"$match": bson.M{"type": "humidity"}}, pipeline[0], "interval %s", interval)
	}
}

func TestBuildStatPipelineDeviceForcesMinute(t *testing.T) {
	deviceID := 3
	pipeline, err := buildStatPipeline(domain.StatQuery{
		Interval:   domain.IntervalDay,
		DeviceType: "temperature",
		DeviceID:   &deviceID,
	})
	require.NoError(t, err)

	require.Equal(t, bson.M{"$match": bson.M{"dev_id": 3, "type": "temperature"}}, pipeline[0])
	require.Equal(t, "$values", pipeline[1]["$unwind"])
}

func TestBuildStatPipelineUnknownInterval(t *testing.T) {
	_, err := buildStatPipeline(domain.StatQuery{Interval: "week"})
	require.Error(t, err)
}
