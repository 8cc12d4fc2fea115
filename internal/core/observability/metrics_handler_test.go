package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("GET", "/api/v1/facilities", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestCustomRegistry_NearestAndCacheSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true)

	ObserveNearest("found", 0.002, 5167, 3)
	ObserveNearest("none", 0.001, 5167, 0)
	ObserveStoreLookup("memory", nil, 0.0001)
	ObserveStoreLookup("postgres", errors.New("boom"), 0.01)
	ObserveFacilityEvent("in", "update", nil)
	IncFacilityEventDropped("insert")
	SetHotCells("origin", 7)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	out := string(b)

	for _, want := range []string{
		`nearest_search_total{outcome="found"}`,
		`nearest_search_total{outcome="none"}`,
		`nearest_ring_cells_bucket`,
		`store_lookup_duration_seconds_count{result="error",store="postgres"} 1`,
		`facility_events_total{direction="in",op="update",result="ok"}`,
		`facility_events_total{direction="out",op="insert",result="dropped"}`,
		`hot_cells{tier="origin"} 7`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics; got:\n%s", want, out)
		}
	}
}
