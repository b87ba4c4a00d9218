package server

import (
	"github.com/daergoth/HomeWire/internal/broker"
	"github.com/daergoth/HomeWire/internal/db"
	"github.com/daergoth/HomeWire/internal/domain"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type ServerConfig struct {
	MessageQueue broker.MessageQueue
	Stats        domain.StatStore
	Live         domain.LiveStore
	Catalog      domain.DeviceCatalog
	Flow         domain.FlowNotifier
	WorkerCount  int
	BatchSize    int
	Port         string
}

type ConfigOption func(*ServerConfig) error

func WithKafka(brokers, topic, groupID string) ConfigOption {
	return func(config *ServerConfig) error {
		mq, err := broker.NewKafkaQueue(brokers, topic, groupID)
		if err != nil {
			return err
		}
		config.MessageQueue = mq
		return nil
	}
}

func WithChannels(buffer int) ConfigOption {
	return func(config *ServerConfig) error {
		config.MessageQueue = broker.NewChannelQueue(buffer)
		return nil
	}
}

func WithMongoDB(client *mongo.Client, database string) ConfigOption {
	return func(config *ServerConfig) error {
		mdb := client.Database(database)

		stats, err := db.NewStatisticStore(mdb)
		if err != nil {
			return err
		}
		config.Stats = stats
		config.Live = db.NewLiveStore(mdb)
		config.Catalog = db.NewDeviceCatalogStore(mdb)
		return nil
	}
}

// WithMemoryStores swaps both stores and the catalog for in-memory
// implementations. Data lives only as long as the process.
func WithMemoryStores() ConfigOption {
	return func(config *ServerConfig) error {
		config.Stats = db.NewMemoryStatisticStore()
		config.Live = db.NewMemoryLiveStore()
		config.Catalog = db.NewMemoryDeviceCatalog()
		return nil
	}
}

func WithFlowNotifier(notifier domain.FlowNotifier) ConfigOption {
	return func(config *ServerConfig) error {
		config.Flow = notifier
		return nil
	}
}

func WithWorkerConfig(workerCount, batchSize int) ConfigOption {
	return func(config *ServerConfig) error {
		config.WorkerCount = workerCount
		config.BatchSize = batchSize
		return nil
	}
}

func WithPort(port string) ConfigOption {
	return func(config *ServerConfig) error {
		config.Port = port
		return nil
	}
}
