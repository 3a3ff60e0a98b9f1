package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncDownload("ok")
	m.IncDownload("ok")
	m.IncDownload("error")
	m.IncMilestone("50%")
	m.IncNotification("EMAIL", "SENT")
	m.IncEstimate("not_found")

	if got := testutil.ToFloat64(m.downloads.WithLabelValues("ok")); got != 2 {
		t.Fatalf("downloads ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.downloads.WithLabelValues("error")); got != 1 {
		t.Fatalf("downloads error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.milestones.WithLabelValues("50%")); got != 1 {
		t.Fatalf("milestones = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.estimates.WithLabelValues("not_found")); got != 1 {
		t.Fatalf("estimates not_found = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/courses/:id/size", "200", 20*time.Millisecond)
	m.ObserveEstimate(52_582_400)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"coursesync_api_requests_total",
		"coursesync_course_estimated_bytes_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncSync("ok")
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveLockWait(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
