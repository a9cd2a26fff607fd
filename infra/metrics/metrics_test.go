package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFill("sell", "limit", -10)
	m.ObserveFill("sell", "limit", -5)
	m.ObserveFill("buy", "market", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fills.WithLabelValues("sell", "limit")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.FilledVolume.WithLabelValues("sell", "limit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Fills.WithLabelValues("buy", "market")))

	m.ObserveStep(0.001, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Steps))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skipped))

	m.SetBook(-3, 12.5, 100.25, 1, 2)
	assert.Equal(t, -3.0, testutil.ToFloat64(m.Position))
	assert.Equal(t, 100.25, testutil.ToFloat64(m.Midprice))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenOrders.WithLabelValues("bid")))

	m.ObservePublish(nil)
	m.ObservePublish(errors.New("broker down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishErrors))

	m.SetOutbox("NEW", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Outbox.WithLabelValues("NEW")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFill("buy", "limit", 1)
	m.ObserveStep(1, 1)
	m.SetBook(1, 1, 1, 1, 1)
	m.ObservePublish(nil)
	m.SetOutbox("NEW", 1)
}
