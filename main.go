package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/daergoth/HomeWire/core/flow"
	"github.com/daergoth/HomeWire/core/server"
	"github.com/daergoth/HomeWire/internal/broker"
	"github.com/daergoth/HomeWire/internal/db"
)

func main() {
	messageQueueType := os.Getenv("MESSAGE_QUEUE_TYPE") // kafka, channels
	if messageQueueType == "" {
		messageQueueType = "kafka"
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	var srv *server.Server
	var err error

	switch messageQueueType {
	case "kafka":
		brokers := os.Getenv("KAFKA_BROKERS")
		if brokers == "" {
			brokers = "localhost:9092"
		}

		client, cerr := db.NewMongoConnection(mongoURI)
		if cerr != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", cerr)
		}

		// Change events go out on their own topic for the flow engine.
		changeQueue, cerr := broker.NewKafkaQueue(brokers, "device-changes", "homewire")
		if cerr != nil {
			log.Fatalf("Failed to create change event queue: %v", cerr)
		}

		srv, err = server.NewServer(
			server.WithKafka(brokers, "device-data", "homewire"),
			server.WithMongoDB(client, "homewire"),
			server.WithFlowNotifier(flow.NewQueueNotifier(changeQueue)),
			server.WithWorkerConfig(8, 200),
			server.WithPort(port),
		)
	case "channels":
		// Single-binary dev mode: in-process queue, in-memory stores.
		srv, err = server.NewServer(
			server.WithChannels(1024),
			server.WithMemoryStores(),
			server.WithWorkerConfig(2, 50),
			server.WithPort(port),
		)
	default:
		log.Fatalf("Unknown message queue type %q", messageQueueType)
	}

	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received...")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	srv.Close()
	log.Println("Server shutdown complete")
}
