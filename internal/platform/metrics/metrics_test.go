package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSync(t *testing.T) {
	r := NewRecorder()
	r.ObserveSync("sync", nil)
	r.ObserveSync("sync", nil)
	r.ObserveSync("sync", errors.New("boom"))

	if got := testutil.ToFloat64(r.syncs.WithLabelValues("sync", OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.syncs.WithLabelValues("sync", OutcomeFailure)); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestObserveWrites(t *testing.T) {
	r := NewRecorder()
	r.ObserveMetafieldWrite("create", nil)
	r.ObserveMetafieldWrite("update", errors.New("boom"))
	r.ObserveTagWrite(nil)

	if got := testutil.ToFloat64(r.metafieldWrites.WithLabelValues("create", OutcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 create, got %v", got)
	}
	if got := testutil.ToFloat64(r.metafieldWrites.WithLabelValues("update", OutcomeFailure)); got != 1 {
		t.Fatalf("expected 1 failed update, got %v", got)
	}
	if got := testutil.ToFloat64(r.tagWrites.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 tag write, got %v", got)
	}
}

func TestObserveUpstream(t *testing.T) {
	r := NewRecorder()
	r.ObserveUpstream("get_customer", 200, 15*time.Millisecond)
	r.ObserveUpstream("get_customer", 0, time.Second)

	if got := testutil.CollectAndCount(r.upstreamDuration); got != 2 {
		t.Fatalf("expected 2 series, got %d", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveSync("sync", nil)
	r.ObserveMetafieldWrite("create", nil)
	r.ObserveTagWrite(nil)
	r.ObserveUpstream("get_customer", 200, time.Millisecond)
}

func TestCustomRegistryAndNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(WithRegistry(reg), WithNamespace("test"), WithHistogramBuckets([]float64{0.1, 1}))
	r.ObserveSync("mzdao", nil)

	if r.Registry() != reg {
		t.Fatal("expected recorder to use the given registry")
	}
	expected := `
# HELP test_customer_sync_requests_total Sync operations by operation and outcome
# TYPE test_customer_sync_requests_total counter
test_customer_sync_requests_total{operation="mzdao",outcome="success"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_customer_sync_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveTagWrite(nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "limerime_customer_sync_tag_writes_total") {
		t.Fatalf("expected tag write metric in output, got %s", body)
	}
}
