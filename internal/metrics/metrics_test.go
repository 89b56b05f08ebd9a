package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordImageUpload(t *testing.T) {
	stored := testutil.ToFloat64(ImageUploadsTotal.WithLabelValues("stored"))
	fallback := testutil.ToFloat64(ImageUploadsTotal.WithLabelValues("fallback"))

	RecordImageUpload(true)
	RecordImageUpload(false)
	RecordImageUpload(false)

	if got := testutil.ToFloat64(ImageUploadsTotal.WithLabelValues("stored")) - stored; got != 1 {
		t.Errorf("expected 1 stored upload, got %v", got)
	}
	if got := testutil.ToFloat64(ImageUploadsTotal.WithLabelValues("fallback")) - fallback; got != 2 {
		t.Errorf("expected 2 fallback uploads, got %v", got)
	}
}

func TestRecordURLMigration(t *testing.T) {
	before := testutil.ToFloat64(URLMigrationsTotal.WithLabelValues("updated"))

	RecordURLMigration(3, 2, 0)

	if got := testutil.ToFloat64(URLMigrationsTotal.WithLabelValues("updated")) - before; got != 3 {
		t.Errorf("expected 3 updated, got %v", got)
	}
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/articles", "200"))

	RecordRequest("GET", "/api/articles", "200", 0.01)

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/articles", "200")) - before; got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}
