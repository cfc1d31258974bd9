package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sendit/internal/lifecycle"
	"sendit/internal/queue"
	"sendit/internal/reconcile"
)

const namespace = "sendit"

// Metrics holds the collectors for one client.
type Metrics struct {
	registry *prometheus.Registry

	recordsApplied *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec
	commands       *prometheus.CounterVec
	noticesDropped *prometheus.CounterVec

	queueItems  *prometheus.GaugeVec
	queueBytes  *prometheus.GaugeVec
	previewSize prometheus.Gauge
	downloading prometheus.Gauge
}

var _ reconcile.Recorder = (*Metrics)(nil)

// New registers the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		recordsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_applied_total",
				Help:      "Lifecycle records applied to the queue store",
			},
			[]string{"kind", "queue"},
		),
		recordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_dropped_total",
				Help:      "Lifecycle records dropped without a store mutation",
			},
			[]string{"kind", "queue", "reason"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Backend commands issued",
			},
			[]string{"command", "status"},
		),
		noticesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notices_dropped_total",
				Help:      "Notices dropped because a reader fell behind",
			},
			[]string{"kind"},
		),
		queueItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_items",
				Help:      "Items per queue and state",
			},
			[]string{"queue", "state"},
		),
		queueBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_bytes",
				Help:      "Total declared size of queued items",
			},
			[]string{"queue"},
		),
		previewSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drag_preview_items",
			Help:      "Files in the current drag preview",
		}),
		downloading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloading",
			Help:      "1 while a ticket download is in progress",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recordsApplied,
		m.recordsDropped,
		m.commands,
		m.noticesDropped,
		m.queueItems,
		m.queueBytes,
		m.previewSize,
		m.downloading,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordApplied(kind lifecycle.Kind, id queue.ID) {
	m.recordsApplied.WithLabelValues(string(kind), string(id)).Inc()
}

func (m *Metrics) RecordDropped(kind lifecycle.Kind, id queue.ID, reason string) {
	m.recordsDropped.WithLabelValues(string(kind), string(id), reason).Inc()
}

func (m *Metrics) RecordCommand(command string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commands.WithLabelValues(command, status).Inc()
}

func (m *Metrics) RecordNoticeDropped(kind reconcile.NoticeKind) {
	m.noticesDropped.WithLabelValues(string(kind)).Inc()
}

// Observe sets the queue gauges from state.
func (m *Metrics) Observe(state queue.State) {
	for _, snap := range []queue.Snapshot{state.Outbound, state.Inbound} {
		id := string(snap.Queue)
		var bytes uint64
		for _, item := range snap.Items {
			bytes += item.Size
		}
		active := snap.Active()
		m.queueItems.WithLabelValues(id, "active").Set(float64(active))
		m.queueItems.WithLabelValues(id, "done").Set(float64(snap.Len() - active))
		m.queueBytes.WithLabelValues(id).Set(float64(bytes))
	}
	m.previewSize.Set(float64(len(state.Preview)))
	if state.Downloading {
		m.downloading.Set(1)
	} else {
		m.downloading.Set(0)
	}
}

// Watch keeps the gauges current until ctx ends.
func (m *Metrics) Watch(ctx context.Context, store *queue.Store) {
	m.Observe(store.State())
	for state := range store.Watch(ctx) {
		m.Observe(state)
	}
}
