package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを探す。
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

// counterWithLabel はラベル値が一致するカウンタの値を返す。
func counterWithLabel(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordPostCreated_LabelsByKind は投稿作成がroot/replyで区別されることを検証する。
func TestRecordPostCreated_LabelsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPostCreated(false)
	c.RecordPostCreated(true)
	c.RecordPostCreated(true)

	mf := findMetricFamily(t, reg, "bbs_posts_created_total")
	if got := counterWithLabel(mf, "kind", "root"); got != 1 {
		t.Errorf("root = %v, want 1", got)
	}
	if got := counterWithLabel(mf, "kind", "reply"); got != 2 {
		t.Errorf("reply = %v, want 2", got)
	}
}

// TestRecordPostUpdatedAndDeleted は更新・削除カウンタが増加することを検証する。
func TestRecordPostUpdatedAndDeleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPostUpdated()
	c.RecordPostDeleted()
	c.RecordPostDeleted()

	if v := findMetricFamily(t, reg, "bbs_posts_updated_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("posts_updated_total = %v, want 1", v)
	}
	if v := findMetricFamily(t, reg, "bbs_posts_deleted_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("posts_deleted_total = %v, want 2", v)
	}
}

// TestRecordLike_LabelsByDirection はいいね操作が方向別に記録されることを検証する。
func TestRecordLike_LabelsByDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLike(false)
	c.RecordLike(false)
	c.RecordLike(true)

	mf := findMetricFamily(t, reg, "bbs_likes_total")
	if got := counterWithLabel(mf, "direction", "like"); got != 2 {
		t.Errorf("like = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "direction", "unlike"); got != 1 {
		t.Errorf("unlike = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterVec はステータスコード別カウンタが増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterVec(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	mf := findMetricFamily(t, reg, "bbs_http_status_total")
	if got := counterWithLabel(mf, "status_code", "200"); got != 2 {
		t.Errorf("status 200 = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "status_code", "404"); got != 1 {
		t.Errorf("status 404 = %v, want 1", got)
	}
}

// TestRecordRequestLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(500 * time.Millisecond)
	c.RecordRequestLatency(1500 * time.Millisecond)

	h := findMetricFamily(t, reg, "bbs_request_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() != 2.0 {
		t.Errorf("sample sum = %v, want 2.0", h.GetSampleSum())
	}
}

// TestRecordRejections はCSRF拒否とレート制限拒否が記録されることを検証する。
func TestRecordRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCSRFRejected()
	c.RecordRateLimited("posting")
	c.RecordRateLimited("posting")
	c.RecordRateLimited("general")

	if v := findMetricFamily(t, reg, "bbs_csrf_rejected_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("csrf_rejected_total = %v, want 1", v)
	}
	mf := findMetricFamily(t, reg, "bbs_rate_limited_total")
	if got := counterWithLabel(mf, "tier", "posting"); got != 2 {
		t.Errorf("posting = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "tier", "general"); got != 1 {
		t.Errorf("general = %v, want 1", got)
	}
}

// TestRecordSessionsCleaned_AddsCount は削除件数が加算されることを検証する。
func TestRecordSessionsCleaned_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsCleaned(3)
	c.RecordSessionsCleaned(0)
	c.RecordSessionsCleaned(4)

	if v := findMetricFamily(t, reg, "bbs_sessions_cleaned_total").GetMetric()[0].GetCounter().GetValue(); v != 7 {
		t.Errorf("sessions_cleaned_total = %v, want 7", v)
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
