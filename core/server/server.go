package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daergoth/HomeWire/core/flow"
	"github.com/daergoth/HomeWire/internal/domain"
	"github.com/daergoth/HomeWire/internal/processing"
	"github.com/daergoth/HomeWire/internal/worker"
)

type Server struct {
	config *ServerConfig
	worker *worker.Worker
	router *gin.Engine
}

func NewServer(options ...ConfigOption) (*Server, error) {
	config := &ServerConfig{
		WorkerCount: 4,
		BatchSize:   100,
		Port:        "8080",
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return nil, err
		}
	}

	if config.Stats == nil || config.Live == nil {
		if err := WithMemoryStores()(config); err != nil {
			return nil, err
		}
	}
	if config.MessageQueue == nil {
		if err := WithChannels(config.WorkerCount * config.BatchSize)(config); err != nil {
			return nil, err
		}
	}
	if config.Flow == nil {
		config.Flow = flow.NewLogNotifier("FlowExecutor")
	}

	processor := processing.NewDeviceProcessor(config.Stats, config.Live, config.Catalog, config.Flow)

	server := &Server{
		config: config,
		worker: worker.NewWorker(processor, config.WorkerCount, config.BatchSize),
		router: gin.Default(),
	}

	server.setupRoutes()
	return server, nil
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Metrics endpoint
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.POST("/readings", s.handleIngest)
		api.POST("/stats", s.handleGetStats)
		api.GET("/devices", s.handleListDevices)
		api.DELETE("/devices/:type/:id", s.handleDeleteDevice)
		api.GET("/live", s.handleListLive)
		api.GET("/live/:type/:id", s.handleGetLive)
		api.DELETE("/live/:type/:id", s.handleClearLive)
	}
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleIngest(c *gin.Context) {
	var bulk domain.BulkReadings
	if err := c.ShouldBindJSON(&bulk); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(bulk.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no readings provided"})
		return
	}

	data, err := json.Marshal(bulk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serialize readings"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.config.MessageQueue.Publish(ctx, data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish readings"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "readings accepted for processing",
		"count":   len(bulk.Data),
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	var query domain.StatQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Interval == "" {
		query.Interval = domain.IntervalHour
	}
	if _, err := domain.ParseInterval(string(query.Interval)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	results, err := s.config.Stats.Query(ctx, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleListDevices(c *gin.Context) {
	if s.config.Catalog == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no device catalog configured"})
		return
	}

	devices, err := s.config.Catalog.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// handleDeleteDevice drops the device's statistic buckets and its live
// entry. Both removals are idempotent.
func (s *Server) handleDeleteDevice(c *gin.Context) {
	deviceType, deviceID, ok := devicePathParams(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.config.Stats.DeleteDevice(ctx, deviceID, deviceType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete device statistics"})
		return
	}
	if err := s.config.Live.ClearOne(ctx, deviceID, deviceType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear live value"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleListLive(c *gin.Context) {
	values, err := s.config.Live.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list live values"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"values": values, "count": len(values)})
}

func (s *Server) handleGetLive(c *gin.Context) {
	deviceType, deviceID, ok := devicePathParams(c)
	if !ok {
		return
	}

	value, err := s.config.Live.GetOne(c.Request.Context(), deviceID, deviceType)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live data for device"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get live value"})
		return
	}

	c.JSON(http.StatusOK, value)
}

func (s *Server) handleClearLive(c *gin.Context) {
	deviceType, deviceID, ok := devicePathParams(c)
	if !ok {
		return
	}

	if err := s.config.Live.ClearOne(c.Request.Context(), deviceID, deviceType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear live value"})
		return
	}

	c.Status(http.StatusNoContent)
}

func devicePathParams(c *gin.Context) (deviceType string, deviceID int, ok bool) {
	deviceType = c.Param("type")
	deviceID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id must be an integer"})
		return "", 0, false
	}
	return deviceType, deviceID, true
}

func (s *Server) Start(ctx context.Context) error {
	// Start the ingestion workers
	go func() {
		if err := s.worker.Start(ctx, s.config.MessageQueue); err != nil {
			log.Printf("Worker pool error: %v", err)
		}
	}()

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on port %s", s.config.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Close() error {
	if s.config.MessageQueue != nil {
		s.config.MessageQueue.Close()
	}
	return nil
}
