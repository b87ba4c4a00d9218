package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readingsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homewire_readings_processed_total",
		Help: "Readings successfully fanned out to the stores.",
	})

	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homewire_store_failures_total",
		Help: "Store writes that failed during ingestion, by store.",
	}, []string{"store"})

	changeEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homewire_change_events_total",
		Help: "Change events handed to the flow engine.",
	})
)
