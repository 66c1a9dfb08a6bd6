// Package metrics holds the Prometheus collectors for the reconciliation path.
// Collectors register with the default registry on import; cmd/propsync-devapi
// and `propsync watch --metrics-addr` expose them over /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propsync_events_total",
		Help: "Push events seen by the reconciler, by entity, action and outcome",
	}, []string{"entity", "action", "outcome"})

	malformedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propsync_malformed_events_total",
		Help: "Push frames dropped because they could not be normalized",
	}, []string{"event"})

	snapshotLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propsync_snapshot_loads_total",
		Help: "Snapshot loads by entity and result",
	}, []string{"entity", "result"})

	snapshotLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propsync_snapshot_load_duration_seconds",
		Help:    "Duration of snapshot loads",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"entity"})

	resyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propsync_resyncs_total",
		Help: "Snapshot reloads scheduled after a push channel reconnect",
	}, []string{"entity"})

	channelReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propsync_channel_reconnects_total",
		Help: "Push channel reconnect attempts",
	})

	channelConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propsync_channel_connected",
		Help: "1 while the push channel is connected",
	})

	viewsMounted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propsync_views_mounted",
		Help: "Currently mounted live views",
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propsync_devapi_broadcasts_total",
		Help: "Events broadcast by the development API",
	}, []string{"event"})
)

// Event counts one reconciler outcome
func Event(entity, action, outcome string) {
	eventsTotal.WithLabelValues(entity, action, outcome).Inc()
}

// MalformedEvent counts one dropped frame
func MalformedEvent(name string) {
	malformedEventsTotal.WithLabelValues(name).Inc()
}

// SnapshotLoad records the result and duration of one load
func SnapshotLoad(entity string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	snapshotLoadsTotal.WithLabelValues(entity, result).Inc()
	snapshotLoadDuration.WithLabelValues(entity).Observe(time.Since(started).Seconds())
}

// Resync counts one reconnect-triggered reload
func Resync(entity string) {
	resyncsTotal.WithLabelValues(entity).Inc()
}

// ChannelReconnect counts one reconnect attempt
func ChannelReconnect() {
	channelReconnectsTotal.Inc()
}

// ChannelConnected sets the connection gauge
func ChannelConnected(up bool) {
	if up {
		channelConnected.Set(1)
		return
	}
	channelConnected.Set(0)
}

// ViewMounted adjusts the mounted views gauge by delta
func ViewMounted(delta int) {
	viewsMounted.Add(float64(delta))
}

// Broadcast counts one devapi push
func Broadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
