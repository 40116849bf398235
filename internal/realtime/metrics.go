package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total number of row-change events published.",
		},
		[]string{"resource"},
	)

	// eventsDropped counts events a slow subscriber did not receive.
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Total number of events dropped because a subscriber buffer was full.",
		},
		[]string{"resource"},
	)

	openStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_open_streams",
			Help: "Current number of open websocket streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDropped, openStreams)
}
