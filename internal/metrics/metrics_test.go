package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOp_CountsByResult(t *testing.T) {
	okBefore := testutil.ToFloat64(IndexOps.WithLabelValues("upsert", "ok"))
	errBefore := testutil.ToFloat64(IndexOps.WithLabelValues("upsert", "error"))

	ObserveOp("upsert", time.Now(), nil)
	ObserveOp("upsert", time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(IndexOps.WithLabelValues("upsert", "ok")) - okBefore; got != 1 {
		t.Fatalf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(IndexOps.WithLabelValues("upsert", "error")) - errBefore; got != 1 {
		t.Fatalf("error delta = %v, want 1", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ImportRuns.WithLabelValues("committed").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "coach_import_runs_total") {
		t.Fatalf("metrics output missing import runs counter:\n%s", rec.Body.String())
	}
}
