package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && lp.GetValue() != want {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

// TestRecordClassified_IncrementsCounter は分類カウンタがクラス別に増加することを検証する。
func TestRecordClassified_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClassified("new", 3)
	c.RecordClassified("new", 1)
	c.RecordClassified("duplicate", 5)

	if got := counterValue(t, reg, "feedscan_entries_classified_total", map[string]string{"class": "new"}); got != 4 {
		t.Errorf("classified{class=new} = %v, want 4", got)
	}
	if got := counterValue(t, reg, "feedscan_entries_classified_total", map[string]string{"class": "duplicate"}); got != 5 {
		t.Errorf("classified{class=duplicate} = %v, want 5", got)
	}
}

// TestRecordClassified_ZeroCountIsSkipped は件数0の分類がラベルを生成しないことを検証する。
func TestRecordClassified_ZeroCountIsSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClassified("too_old", 0)

	if got := counterValue(t, reg, "feedscan_entries_classified_total", map[string]string{"class": "too_old"}); got != -1 {
		t.Errorf("0件の分類はラベルを生成しないべき: got %v", got)
	}
}

// TestRecordScanFailure_IncrementsCounter は失敗カウンタが理由タグ別に増加することを検証する。
func TestRecordScanFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordScanFailure("fetch_transient")
	c.RecordScanFailure("fetch_transient")
	c.RecordScanFailure("parse_error")

	if got := counterValue(t, reg, "feedscan_scan_failures_total", map[string]string{"reason": "fetch_transient"}); got != 2 {
		t.Errorf("scan_failures{reason=fetch_transient} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "feedscan_scan_failures_total", map[string]string{"reason": "parse_error"}); got != 1 {
		t.Errorf("scan_failures{reason=parse_error} = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_LabelsByCode はHTTPステータスがコード別に記録されることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(304)
	c.RecordHTTPStatus(304)

	if got := counterValue(t, reg, "feedscan_http_status_total", map[string]string{"status_code": "304"}); got != 2 {
		t.Errorf("http_status{status_code=304} = %v, want 2", got)
	}
}

// TestRecordETagHit_IncrementsCounter はETagヒットカウンタが増加することを検証する。
func TestRecordETagHit_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordETagHit()
	c.RecordETagHit()

	if got := counterValue(t, reg, "feedscan_etag_hits_total", nil); got != 2 {
		t.Errorf("etag_hits_total = %v, want 2", got)
	}
}

// TestRecordCandidates_AddsCount は候補アイテム数が加算されることを検証する。
func TestRecordCandidates_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCandidates(3)
	c.RecordCandidates(2)

	if got := counterValue(t, reg, "feedscan_candidates_total", nil); got != 5 {
		t.Errorf("candidates_total = %v, want 5", got)
	}
}

// TestHandler_ServesMetrics は/metricsハンドラーが登録済みメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(120 * time.Millisecond)
	c.RecordScanDuration(300 * time.Millisecond)
	c.RecordClassified("new", 1)

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	text := string(body)
	for _, name := range []string{
		"feedscan_entries_classified_total",
		"feedscan_fetch_latency_seconds",
		"feedscan_scan_duration_seconds",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("metrics output should contain %q", name)
		}
	}
}
