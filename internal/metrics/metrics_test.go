package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/companion/internal/catalog"
)

var (
	_ Recorder         = (*Collector)(nil)
	_ Recorder         = Nop{}
	_ catalog.Observer = (*Collector)(nil)
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessage("desktop", "add")
	c.RecordMessage("desktop", "add")
	c.RecordMessage("", "none")
	c.RecordOutcome("add", "succeeded")
	c.ObserveCatalogCall("search", "ok", 20*time.Millisecond)
	c.ObserveCatalogCall("search", "unauthorized", 5*time.Millisecond)
	c.RecordRoute("action", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messages.WithLabelValues("desktop", "add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("unknown", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("add", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.catalogCalls.WithLabelValues("search", "unauthorized")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.catalogLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(c.routeLatency))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOutcome("rate", "not_found")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `companion_action_outcomes_total{action="rate",outcome="not_found"} 1`)
}
