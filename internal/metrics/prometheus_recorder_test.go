package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncQueueOutcome(OutcomeSucceeded)
	pr.IncQueueOutcome(OutcomeFailed)
	pr.IncQueueOutcome(OutcomeFailed)
	pr.ObserveBuildDuration("succeeded", 3*time.Second)
	pr.AddEnqueued(4)
	pr.SetQueueEligible(7)

	require.Equal(t, 2.0, testutil.ToFloat64(pr.queueOutcomes.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.queueOutcomes.WithLabelValues("succeeded")))
	require.Equal(t, 4.0, testutil.ToFloat64(pr.enqueued))
	require.Equal(t, 7.0, testutil.ToFloat64(pr.queueEligible))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.AddEnqueued(1)

	rec := httptest.NewRecorder()
	pr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "docbuilder_enqueued_total")
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncQueueOutcome(OutcomeSkipped)
	pr.ObserveBuildDuration("failed", time.Second)
	pr.AddEnqueued(1)
	pr.SetQueueEligible(1)
}
