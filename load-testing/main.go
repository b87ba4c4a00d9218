package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type LoadTestConfig struct {
	TargetURL       string
	ConcurrentUsers int
	Duration        time.Duration
	RequestsPerSec  int
}

type Reading struct {
	DeviceID   int       `json:"device_id"`
	DeviceType string    `json:"device_type"`
	Category   string    `json:"category,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Value      *float64  `json:"value,omitempty"`
}

type BulkReadings struct {
	Data []Reading `json:"data"`
}

type TestResults struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatency    time.Duration
	MinLatency      time.Duration
	MaxLatency      time.Duration
	Errors          []string
	mu              sync.RWMutex
}

func (tr *TestResults) AddResult(success bool, latency time.Duration, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.TotalRequests++
	tr.TotalLatency += latency

	if tr.MinLatency == 0 || latency < tr.MinLatency {
		tr.MinLatency = latency
	}
	if latency > tr.MaxLatency {
		tr.MaxLatency = latency
	}

	if success {
		tr.SuccessRequests++
	} else {
		tr.FailedRequests++
		if err != nil {
			tr.Errors = append(tr.Errors, err.Error())
		}
	}
}

func (tr *TestResults) GetStats() (float64, float64, time.Duration) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	successRate := float64(tr.SuccessRequests) / float64(tr.TotalRequests) * 100
	avgLatency := tr.TotalLatency / time.Duration(tr.TotalRequests)

	return successRate, float64(tr.TotalRequests), avgLatency
}

func generateReadings(count int) BulkReadings {
	deviceTypes := []string{"temperature", "humidity", "light", "motion", "power"}
	categories := []string{"sensor", "actuator"}

	data := make([]Reading, count)

	for i := 0; i < count; i++ {
		deviceType := deviceTypes[rand.Intn(len(deviceTypes))]

		var value float64
		switch deviceType {
		case "temperature":
			value = rand.Float64()*30 + 5 // 5-35 C
		case "humidity":
			value = rand.Float64() * 100 // 0-100%
		case "light":
			value = rand.Float64() * 1000 // 0-1000 lux
		case "motion":
			value = float64(rand.Intn(2)) // 0 or 1
		case "power":
			value = rand.Float64() * 3000 // 0-3000 W
		}

		reading := Reading{
			DeviceID:   rand.Intn(20) + 1,
			DeviceType: deviceType,
			Category:   categories[rand.Intn(len(categories))],
			Timestamp:  time.Now().Add(-time.Duration(rand.Intn(3600)) * time.Second),
			Value:      &value,
		}

		// A small share of readings arrives without a value, the way
		// flaky devices report in practice.
		if rand.Intn(100) == 0 {
			reading.Value = nil
		}

		data[i] = reading
	}

	return BulkReadings{Data: data}
}

func sendRequest(client *http.Client, url string, data BulkReadings) (bool, time.Duration, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return false, 0, err
	}

	start := time.Now()

	req, err := http.NewRequest("POST", url+"/api/v1/readings", bytes.NewBuffer(jsonData))
	if err != nil {
		return false, time.Since(start), err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false, time.Since(start), err
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	if !success {
		return false, latency, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return true, latency, nil
}

func worker(ctx context.Context, workerID int, config LoadTestConfig, results *TestResults, wg *sync.WaitGroup) {
	defer wg.Done()

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ticker := time.NewTicker(time.Second / time.Duration(config.RequestsPerSec))
	defer ticker.Stop()

	log.Printf("Worker %d started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopped", workerID)
			return
		case <-ticker.C:
			batchSize := rand.Intn(50) + 10 // 10-60 readings per batch
			testData := generateReadings(batchSize)

			success, latency, err := sendRequest(client, config.TargetURL, testData)
			results.AddResult(success, latency, err)
		}
	}
}

func printProgress(ctx context.Context, results *TestResults, duration time.Duration) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			remaining := duration - elapsed

			successRate, totalReqs, avgLatency := results.GetStats()

			fmt.Printf("\n=== Progress Update ===\n")
			fmt.Printf("Elapsed: %v, Remaining: %v\n", elapsed.Round(time.Second), remaining.Round(time.Second))
			fmt.Printf("Total Requests: %.0f\n", totalReqs)
			fmt.Printf("Success Rate: %.2f%%\n", successRate)
			fmt.Printf("Average Latency: %v\n", avgLatency.Round(time.Millisecond))
			fmt.Printf("Requests/sec: %.2f\n", totalReqs/elapsed.Seconds())

			if remaining <= 0 {
				return
			}
		}
	}
}

func testStatsEndpoint(client *http.Client, baseURL string) error {
	fmt.Println("\n=== Testing Stats Endpoint ===")

	for _, interval := range []string{"minute", "hour", "day"} {
		query := map[string]interface{}{
			"interval": interval,
		}

		jsonData, _ := json.Marshal(query)

		start := time.Now()
		resp, err := client.Post(baseURL+"/api/v1/stats", "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("stats request failed: %w", err)
		}

		latency := time.Since(start)

		if resp.StatusCode != 200 {
			resp.Body.Close()
			return fmt.Errorf("stats endpoint returned HTTP %d", resp.StatusCode)
		}

		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			resp.Body.Close()
			return fmt.Errorf("failed to decode stats response: %w", err)
		}
		resp.Body.Close()

		fmt.Printf("%s query completed in %v, results: %v\n", interval, latency.Round(time.Millisecond), result["count"])
	}

	return nil
}

func main() {
	config := LoadTestConfig{
		TargetURL:       getEnv("TARGET_URL", "http://localhost:8080"),
		ConcurrentUsers: getEnvInt("CONCURRENT_USERS", 10),
		Duration:        getEnvDuration("DURATION", "60s"),
		RequestsPerSec:  getEnvInt("REQUESTS_PER_SEC", 5),
	}

	fmt.Printf("=== Load Test Configuration ===\n")
	fmt.Printf("Target URL: %s\n", config.TargetURL)
	fmt.Printf("Concurrent Users: %d\n", config.ConcurrentUsers)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Requests per second per user: %d\n", config.RequestsPerSec)

	fmt.Println("\nWaiting for service to be ready...")
	client := &http.Client{Timeout: 5 * time.Second}

	for i := 0; i < 30; i++ {
		resp, err := client.Get(config.TargetURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			fmt.Println("Service is ready!")
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		fmt.Printf("Waiting for service... (%d/30)\n", i+1)
		time.Sleep(2 * time.Second)
	}

	results := &TestResults{}

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	go printProgress(ctx, results, config.Duration)

	var wg sync.WaitGroup
	fmt.Printf("\nStarting %d concurrent users...\n", config.ConcurrentUsers)

	for i := 0; i < config.ConcurrentUsers; i++ {
		wg.Add(1)
		go worker(ctx, i+1, config, results, &wg)
	}

	wg.Wait()

	fmt.Printf("\n=== Final Results ===\n")
	successRate, totalReqs, avgLatency := results.GetStats()

	fmt.Printf("Total Requests: %.0f\n", totalReqs)
	fmt.Printf("Successful Requests: %d\n", results.SuccessRequests)
	fmt.Printf("Failed Requests: %d\n", results.FailedRequests)
	fmt.Printf("Success Rate: %.2f%%\n", successRate)
	fmt.Printf("Average Latency: %v\n", avgLatency.Round(time.Millisecond))
	fmt.Printf("Min Latency: %v\n", results.MinLatency.Round(time.Millisecond))
	fmt.Printf("Max Latency: %v\n", results.MaxLatency.Round(time.Millisecond))
	fmt.Printf("Throughput: %.2f requests/second\n", totalReqs/config.Duration.Seconds())

	if len(results.Errors) > 0 {
		fmt.Printf("\n=== Errors (showing first 10) ===\n")
		for i, err := range results.Errors {
			if i >= 10 {
				fmt.Printf("... and %d more errors\n", len(results.Errors)-10)
				break
			}
			fmt.Printf("- %s\n", err)
		}
	}

	if err := testStatsEndpoint(&http.Client{Timeout: 30 * time.Second}, config.TargetURL); err != nil {
		fmt.Printf("Stats endpoint test failed: %v\n", err)
	}

	fmt.Println("\nLoad test completed!")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	if parsed, err := time.ParseDuration(defaultValue); err == nil {
		return parsed
	}
	return time.Minute
}
