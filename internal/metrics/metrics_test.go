package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ListFetch("success")
			m.ContentFetch("email", "cache")
			m.Mutation("archive", "reverted")
			m.Realtime("merged")
			m.SessionOpened()
			m.SessionClosed()
		})
	})

	t.Run("counts by label", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)

		m.ListFetch("success")
		m.ListFetch("success")
		m.ListFetch("dropped")
		m.Mutation("star", "reverted")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.listFetches.WithLabelValues("success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.listFetches.WithLabelValues("dropped")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("star", "reverted")))
	})

	t.Run("tracks active sessions", func(t *testing.T) {
		m := New(prometheus.NewRegistry())
		m.SessionOpened()
		m.SessionOpened()
		m.SessionClosed()
		assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	})
}
