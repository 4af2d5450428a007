package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritePrometheus(t *testing.T) {
	ObserveLoad(10, 2)
	ObserveLoadFailure(true)
	ObserveSnapshot(10)
	ObserveCache(true)
	ObserveCache(false)
	ObserveQuery("summary", nil)
	ObserveQuery("search", errors.New("bad term"))

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "healthreport_snapshot_records 10\n")
	assert.Contains(t, body, `healthreport_dashboard_queries_total{op="search"}`)
	assert.Contains(t, body, `healthreport_dashboard_queries_total{op="summary"}`)
	assert.Less(t, strings.Index(body, `op="search"`), strings.Index(body, `op="summary"`))
	assert.Contains(t, body, "# TYPE healthreport_summary_cache_hits_total counter")
}
