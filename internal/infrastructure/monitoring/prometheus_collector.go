package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// PrometheusCollector exposes presence and signaling counters on the
// /metrics endpoint. It implements ports.MetricsRecorder.
type PrometheusCollector struct {
	eventsTotal     *prometheus.CounterVec
	broadcastsTotal prometheus.Counter
	fanoutReceivers prometheus.Histogram

	signalsTotal  *prometheus.CounterVec
	fetchesTotal  prometheus.Counter
	fetchBatch    prometheus.Histogram

	linkFractionLost prometheus.Histogram
	linkRTT          prometheus.Histogram

	roomParticipants *prometheus.GaugeVec
	sessionViewers   *prometheus.GaugeVec
	liveSessions     prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orbnet_presence_events_total",
			Help: "Presence events received from clients, by type",
		}, []string{"type"}),

		broadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orbnet_presence_broadcasts_total",
			Help: "Events fanned out to room members",
		}),

		fanoutReceivers: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orbnet_presence_fanout_receivers",
			Help:    "Receivers per broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		signalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orbnet_signals_appended_total",
			Help: "Signals appended to session streams, by kind",
		}, []string{"kind"}),

		fetchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orbnet_signal_fetches_total",
			Help: "Signal stream fetch requests served",
		}),

		fetchBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orbnet_signal_fetch_batch_size",
			Help:    "Signals returned per fetch",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		linkFractionLost: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orbnet_link_fraction_lost",
			Help:    "Fraction of packets lost reported by receiver reports",
			Buckets: []float64{0, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
		}),

		linkRTT: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orbnet_link_rtt_seconds",
			Help:    "Round-trip time of negotiated media paths",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		roomParticipants: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orbnet_room_participants",
			Help: "Participants currently present in each room",
		}, []string{"room"}),

		sessionViewers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orbnet_session_viewers",
			Help: "Viewers joined to each livestream session",
		}, []string{"session"}),

		liveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orbnet_sessions_live",
			Help: "Livestream sessions currently live",
		}),
	}
}

func (p *PrometheusCollector) RecordEvent(room domain.RoomID, typ domain.EventType) {
	p.eventsTotal.WithLabelValues(string(typ)).Inc()
}

func (p *PrometheusCollector) RecordBroadcast(room domain.RoomID, receivers int) {
	p.broadcastsTotal.Inc()
	p.fanoutReceivers.Observe(float64(receivers))
}

func (p *PrometheusCollector) RecordSignal(session domain.SessionID, kind domain.SignalKind) {
	p.signalsTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordFetch(session domain.SessionID, count int) {
	p.fetchesTotal.Inc()
	p.fetchBatch.Observe(float64(count))
}

func (p *PrometheusCollector) RecordLinkQuality(q domain.LinkQuality) {
	p.linkFractionLost.Observe(q.FractionLost)
	p.linkRTT.Observe(q.RTT.Seconds())
}

func (p *PrometheusCollector) SetRoomParticipants(room domain.RoomID, count int) {
	if count <= 0 {
		p.roomParticipants.DeleteLabelValues(string(room))
		return
	}
	p.roomParticipants.WithLabelValues(string(room)).Set(float64(count))
}

func (p *PrometheusCollector) SetSessionViewers(session domain.SessionID, count int) {
	if count <= 0 {
		p.sessionViewers.DeleteLabelValues(string(session))
		return
	}
	p.sessionViewers.WithLabelValues(string(session)).Set(float64(count))
}

func (p *PrometheusCollector) SetLiveSessions(count int) {
	p.liveSessions.Set(float64(count))
}

// Tee duplicates every record to multiple recorders, so the Prometheus
// surface and the in-memory aggregates see the same traffic.
type Tee struct {
	recorders []ports.MetricsRecorder
}

func NewTee(recorders ...ports.MetricsRecorder) *Tee {
	return &Tee{recorders: recorders}
}

func (t *Tee) RecordEvent(room domain.RoomID, typ domain.EventType) {
	for _, r := range t.recorders {
		r.RecordEvent(room, typ)
	}
}

func (t *Tee) RecordBroadcast(room domain.RoomID, receivers int) {
	for _, r := range t.recorders {
		r.RecordBroadcast(room, receivers)
	}
}

func (t *Tee) RecordSignal(session domain.SessionID, kind domain.SignalKind) {
	for _, r := range t.recorders {
		r.RecordSignal(session, kind)
	}
}

func (t *Tee) RecordFetch(session domain.SessionID, count int) {
	for _, r := range t.recorders {
		r.RecordFetch(session, count)
	}
}

func (t *Tee) RecordLinkQuality(q domain.LinkQuality) {
	for _, r := range t.recorders {
		r.RecordLinkQuality(q)
	}
}

func (t *Tee) SetRoomParticipants(room domain.RoomID, count int) {
	for _, r := range t.recorders {
		r.SetRoomParticipants(room, count)
	}
}

func (t *Tee) SetSessionViewers(session domain.SessionID, count int) {
	for _, r := range t.recorders {
		r.SetSessionViewers(session, count)
	}
}

func (t *Tee) SetLiveSessions(count int) {
	for _, r := range t.recorders {
		r.SetLiveSessions(count)
	}
}
