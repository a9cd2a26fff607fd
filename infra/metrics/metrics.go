package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lobsim"

// Metrics holds the simulator's collectors. A nil *Metrics is a no-op so
// components can run without a registry.
type Metrics struct {
	Steps        prometheus.Counter
	Skipped      prometheus.Counter
	Fills        *prometheus.CounterVec
	FilledVolume *prometheus.CounterVec
	StepSeconds  prometheus.Histogram

	Position   prometheus.Gauge
	Cash       prometheus.Gauge
	Midprice   prometheus.Gauge
	OpenOrders *prometheus.GaugeVec

	Published     prometheus.Counter
	PublishErrors prometheus.Counter
	Outbox        *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Steps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "steps_total",
			Help: "Session steps completed.",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "skipped_snapshots_total",
			Help: "Depth snapshots skipped because the book pair was inconsistent.",
		}),
		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fills_total",
			Help: "Agent executions by direction (buy, sell) and kind (limit, adverse, market).",
		}, []string{"direction", "kind"}),
		FilledVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filled_volume_total",
			Help: "Absolute agent volume executed by direction and kind.",
		}, []string{"direction", "kind"}),
		StepSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "step_seconds",
			Help:    "Wall time of one session step.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		Position: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "position",
			Help: "Agent inventory.",
		}),
		Cash: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cash",
			Help: "Agent cash balance for the episode.",
		}),
		Midprice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "midprice",
			Help: "Current midprice.",
		}),
		OpenOrders: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_orders",
			Help: "Agent orders resting per side.",
		}, []string{"side"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Outbox events acknowledged by the broker.",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "Failed outbox publish attempts.",
		}),
		Outbox: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_records",
			Help: "Outbox records by delivery state.",
		}, []string{"state"}),
	}
}

func (m *Metrics) ObserveFill(direction, kind string, volume int64) {
	if m == nil || volume == 0 {
		return
	}
	if volume < 0 {
		volume = -volume
	}
	m.Fills.WithLabelValues(direction, kind).Inc()
	m.FilledVolume.WithLabelValues(direction, kind).Add(float64(volume))
}

func (m *Metrics) ObserveStep(seconds float64, skipped int) {
	if m == nil {
		return
	}
	m.Steps.Inc()
	m.Skipped.Add(float64(skipped))
	m.StepSeconds.Observe(seconds)
}

func (m *Metrics) SetBook(position int64, cash, mid float64, asks, bids int) {
	if m == nil {
		return
	}
	m.Position.Set(float64(position))
	m.Cash.Set(cash)
	m.Midprice.Set(mid)
	m.OpenOrders.WithLabelValues("ask").Set(float64(asks))
	m.OpenOrders.WithLabelValues("bid").Set(float64(bids))
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishErrors.Inc()
		return
	}
	m.Published.Inc()
}

func (m *Metrics) SetOutbox(state string, n int) {
	if m == nil {
		return
	}
	m.Outbox.WithLabelValues(state).Set(float64(n))
}
