package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_KnownModelUsesTablePricing(t *testing.T) {
	cost := estimateCost("claude-haiku-3-5-20241022", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.8+4.0, cost, 1e-9)
}

func TestEstimateCost_UnknownModelFallsBackToDefaultPricing(t *testing.T) {
	cost := estimateCost("some-unlisted-model", 1_000_000, 0)
	assert.InDelta(t, defaultPricing.inputPerM, cost, 1e-9)
}

func TestRecordTokens_IncrementsCountersByModel(t *testing.T) {
	before := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model-a", "prompt"))
	RecordTokens("test-model-a", 100, 50)
	after := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model-a", "prompt"))
	assert.Equal(t, before+100, after)

	completionAfter := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model-a", "completion"))
	assert.GreaterOrEqual(t, completionAfter, float64(50))
}

func TestHandler_ServesPrometheusExposition(t *testing.T) {
	RecordTokens("test-model-b", 10, 10)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentcore_tokens_total")
}
