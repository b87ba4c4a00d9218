package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/daergoth/HomeWire/internal/broker"
	"github.com/daergoth/HomeWire/internal/domain"
	"github.com/daergoth/HomeWire/internal/processing"
)

const flushInterval = 5 * time.Second

// Worker consumes bulk readings from the message queue and feeds them
// to the device processor through a pool of goroutines. Readings are
// batched per worker and flushed on size or on a timer.
type Worker struct {
	processor   *processing.DeviceProcessor
	workerCount int
	batchSize   int
	queue       chan domain.Reading
}

func NewWorker(processor *processing.DeviceProcessor, workerCount, batchSize int) *Worker {
	return &Worker{
		processor:   processor,
		workerCount: workerCount,
		batchSize:   batchSize,
		queue:       make(chan domain.Reading, workerCount*batchSize),
	}
}

// Start blocks until ctx is cancelled. Cancellation is a normal
// shutdown, not an error.
func (w *Worker) Start(ctx context.Context, mq broker.MessageQueue) error {
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.run(ctx, workerID)
		}(i)
	}

	err := mq.Consume(ctx, w.handleMessage)
	wg.Wait()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (w *Worker) handleMessage(data []byte) error {
	var bulk domain.BulkReadings
	if err := json.Unmarshal(data, &bulk); err != nil {
		return fmt.Errorf("failed to unmarshal readings: %w", err)
	}

	for _, reading := range bulk.Data {
		w.queue <- reading
	}
	return nil
}

func (w *Worker) run(ctx context.Context, workerID int) {
	log.Printf("Worker %d started", workerID)
	defer log.Printf("Worker %d stopped", workerID)

	batch := make([]domain.Reading, 0, w.batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.processBatch(batch)
			return
		case <-ticker.C:
			w.processBatch(batch)
			batch = batch[:0]
		case reading := <-w.queue:
			batch = append(batch, reading)
			if len(batch) >= w.batchSize {
				w.processBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Worker) processBatch(batch []domain.Reading) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	// Fresh context: a cancelled ingest context must not drop readings
	// that were already accepted into the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, reading := range batch {
		if err := w.processor.Process(ctx, reading); err != nil {
			log.Printf("Failed to process reading for device %d/%s: %v", reading.DeviceID, reading.DeviceType, err)
			failed++
		}
	}

	log.Printf("Processed batch of %d readings (%d failed) in %v", len(batch), failed, time.Since(start))
}
