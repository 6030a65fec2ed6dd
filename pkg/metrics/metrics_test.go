package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsSplitsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "outbox-retention"
	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("db down"))
	m.IncLockContended()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "retailops_cron_job_runs_total", "result", "success")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
	got, err = fetchCounterValue(mfs, "retailops_cron_job_runs_total", "result", "failure")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "retailops_cron_job_duration_seconds", "job", job)
	require.NoError(t, err)
	require.InDelta(t, 1.25, sum, 0.001)

	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun(job, time.Second, nil)
	nilMetrics.IncLockContended()
	require.Nil(t, NewCronJobMetrics(nil))
}

func TestLedgerMetricsCountsByMovementType(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)
	metrics.IncApplied("sale")
	metrics.IncApplied("sale")
	metrics.IncApplied("return")
	metrics.IncInsufficientStock("sale")
	metrics.IncDuplicate("")
	metrics.IncRetry()
	metrics.IncDrift()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "retailops_inventory_movements_applied_total", "type", "sale")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "retailops_inventory_insufficient_stock_total", "type", "sale")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "retailops_inventory_duplicate_movements_total", "type", "unknown")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	mf := findMetricFamily(mfs, "retailops_inventory_reconciliation_drift_total")
	require.NotNil(t, mf)
	require.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
}

func TestOutboxMetricsDeadLetterLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.IncDelivered("order_item_created")
	metrics.IncFailed("order_item_created")
	metrics.IncDeadLettered("order_item_created", "max_attempts")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "retailops_outbox_dead_lettered_total", "reason", "max_attempts")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestHTTPMetricsLabelsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("GET", "/api/v1/orders/{orderId}", 200, 20*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "retailops_http_request_duration_seconds")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 2)
	var routes []string
	for _, metric := range mf.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "route" {
				routes = append(routes, label.GetValue())
			}
		}
	}
	require.ElementsMatch(t, []string{"/api/v1/orders/{orderId}", "unmatched"}, routes)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var ledger *LedgerMetrics
	var outbox *OutboxMetrics
	var cron *CronJobMetrics
	require.NotPanics(t, func() {
		ledger.IncApplied("sale")
		ledger.IncDrift()
		outbox.IncDelivered("x")
		cron.ObserveRun("job", time.Second, nil)
		cron.IncLockContended()
		NewLedgerMetrics(nil).IncRetry()
		NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Second)
	})
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
