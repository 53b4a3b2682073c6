package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUsageOpsEndpoints(t *testing.T) {
	f := newReporterFixture(t)
	f.provisionOrder(t, "consumer-9")
	f.meter.Add("order-1", MetricRequests, 1, windowStart.Add(time.Minute))
	f.billing.reportFails = 1
	f.reporter.ReportUsage(context.Background(), "order-1", windowStart, windowEnd)

	r := chi.NewRouter()
	NewHandler(zap.NewNop().Sugar(), f.reporter).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/usage/failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 1, count["failed_reports"])

	// Manual retry delivers the queued report and empties the queue.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/usage/retry", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out["attempted"])
	assert.Equal(t, 0, out["failed_reports"])
	require.Len(t, f.billing.reportCalls, 1)
}
