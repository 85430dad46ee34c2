package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushMetrics(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer http.DefaultClient.CloseIdleConnections()

	RowsRead.WithLabelValues("STUDY", "VS").Add(3)
	if err := PushMetrics(context.Background(), srv.URL, "sdtmflow", "run-1"); err != nil {
		t.Fatal(err)
	}
	if method != http.MethodPut || path != "/metrics/job/sdtmflow/run_id/run-1" {
		t.Errorf("unexpected push %s %s", method, path)
	}
}

func TestPushMetricsDisabled(t *testing.T) {
	if err := PushMetrics(context.Background(), "", "sdtmflow", "run-1"); err != nil {
		t.Errorf("empty url should be a no-op, got %v", err)
	}
}
