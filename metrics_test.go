package pkjwt

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	metrics := NewPrometheusMetrics("pkjwt")

	t.Run("IncCounter", func(t *testing.T) {
		tags := map[string]string{"result": "ok"}
		metrics.IncCounter("token_validations_total", tags)
		metrics.IncCounter("token_validations_total", tags)
		metrics.IncCounter("token_validations_total", map[string]string{"result": "token_expired"})

		vec := metrics.counters["token_validations_total"]
		require.NotNil(t, vec)
		assert.Equal(t, float64(2), testutil.ToFloat64(vec.With(tags)))
		assert.Equal(t, float64(1), testutil.ToFloat64(vec.WithLabelValues("token_expired")))
	})

	t.Run("ObserveHistogram", func(t *testing.T) {
		metrics.ObserveHistogram("token_validation_seconds", 0.25, nil)
		metrics.ObserveHistogram("token_validation_seconds", 0.5, nil)

		assert.Equal(t, 1, testutil.CollectAndCount(metrics.histograms["token_validation_seconds"]))
	})

	t.Run("registries are independent", func(t *testing.T) {
		other := NewPrometheusMetrics("pkjwt")
		assert.NotPanics(t, func() {
			other.IncCounter("token_validations_total", map[string]string{"result": "ok"})
		})
	})

	t.Run("Handler exposes the registry", func(t *testing.T) {
		server := httptest.NewServer(metrics.Handler())
		defer server.Close()

		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `pkjwt_token_validations_total{result="ok"} 2`)
		assert.Contains(t, string(body), `pkjwt_token_validation_seconds_count 2`)
	})
}

func TestLabelNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, labelNames(map[string]string{"c": "", "a": "", "b": ""}))
	assert.Empty(t, labelNames(nil))
}
