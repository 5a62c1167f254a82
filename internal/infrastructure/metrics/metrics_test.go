package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := New()

	c.DocumentIngested(true, 4)
	c.DocumentIngested(true, 2)
	c.DocumentIngested(false, 9)
	c.Retry("embedding")
	c.Answer(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.documentsIngested.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.documentsIngested.WithLabelValues("error")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.chunksIndexed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("embedding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.answers.WithLabelValues("error")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.DocumentIngested(true, 1)
		c.Retry("generation")
		c.ObserveQuery(time.Second)
		c.Answer(true)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveQuery(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "kv_query_duration_seconds_count 1")
}
