package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_sessions_active",
		Help: "Number of open planning sessions",
	})
	SessionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_sessions_expired_total",
		Help: "Total sessions dropped after sitting idle",
	})
	RechecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_rechecks_total",
		Help: "Done-links rechecks by trigger",
	}, []string{"trigger"})
	HighlightsAddedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_highlights_added_total",
		Help: "Highlights drawn by trigger",
	}, []string{"trigger"})
	HighlightsRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_highlights_removed_total",
		Help: "Highlights removed by trigger",
	}, []string{"trigger"})
	TransformsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_transforms_total",
		Help: "Coordinate transforms by outcome (shifted, outside_china, bypass)",
	}, []string{"outcome"})
	FeedMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_feed_messages_total",
		Help: "Live feed messages by subject kind and status",
	}, []string{"kind", "status"})
	RefreshRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_refresh_runs_total",
		Help: "Periodic map-data refresh passes",
	})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "overlay_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsExpiredTotal)
	prometheus.MustRegister(RechecksTotal)
	prometheus.MustRegister(HighlightsAddedTotal)
	prometheus.MustRegister(HighlightsRemovedTotal)
	prometheus.MustRegister(TransformsTotal)
	prometheus.MustRegister(FeedMessagesTotal)
	prometheus.MustRegister(RefreshRunsTotal)
	prometheus.MustRegister(RequestDurationMs)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
