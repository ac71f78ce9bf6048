package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は名前が一致するメトリクスファミリーを返す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestCollector_ImplementsInterface はCollectorとNopがMetricsCollectorを満たすことを検証する。
func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ MetricsCollector = Nop{}
}

// TestRecordApplicationCreated_IncrementsCounter は応募作成カウンタが増加することを検証する。
func TestRecordApplicationCreated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordApplicationCreated()
	c.RecordApplicationCreated()

	mf := findMetricFamily(t, reg, "donormatch_applications_created_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("applications_created_total = %v, want 2", val)
	}
}

// TestRecordApplyRejected_LabelsByReason は拒否理由ごとにラベルが分かれることを検証する。
func TestRecordApplyRejected_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordApplyRejected("NOT_ELIGIBLE")
	c.RecordApplyRejected("NOT_ELIGIBLE")
	c.RecordApplyRejected("ALREADY_APPLIED")

	mf := findMetricFamily(t, reg, "donormatch_apply_rejected_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if got["NOT_ELIGIBLE"] != 2 {
		t.Errorf("NOT_ELIGIBLE = %v, want 2", got["NOT_ELIGIBLE"])
	}
	if got["ALREADY_APPLIED"] != 1 {
		t.Errorf("ALREADY_APPLIED = %v, want 1", got["ALREADY_APPLIED"])
	}
}

// TestRecordRequestTransition_LabelsFromTo は遷移元と遷移先のラベルを検証する。
func TestRecordRequestTransition_LabelsFromTo(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestTransition("Open", "Resolved")

	mf := findMetricFamily(t, reg, "donormatch_request_transitions_total")
	labels := map[string]string{}
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["from"] != "Open" || labels["to"] != "Resolved" {
		t.Errorf("labels = %v, want from=Open to=Resolved", labels)
	}
}

// TestRecordHTTPStatus_RecordsByCode はステータスコード別に記録されることを検証する。
func TestRecordHTTPStatus_RecordsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(400)

	mf := findMetricFamily(t, reg, "donormatch_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Errorf("expected 2 status code labels, got %d", len(mf.GetMetric()))
	}
}

// TestRecordHTTPLatency_ObservesHistogram はヒストグラムに観測値が記録されることを検証する。
func TestRecordHTTPLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPLatency("/requests/{id}/apply", 150*time.Millisecond)

	mf := findMetricFamily(t, reg, "donormatch_http_request_duration_seconds")
	if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
		t.Errorf("sample count = %d, want 1", count)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
