package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Enabled: true, Build: BuildInfo{Version: "test"}})

	observability.ObserveNearest("found", 0.004, 5167, 3)
	observability.ObserveNearest("none", 0.002, 7, 0)
	observability.AddCacheHits(3)
	observability.AddCacheMisses(1)
	observability.ObserveCacheOp("mget", nil, 0.002)
	observability.ObserveStoreLookup("postgres", errors.New("timeout"), 0.2)
	observability.SetHotCells("origin", 42)
	observability.ObserveFacilityEvent("in", "update", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`nearest_search_duration_seconds_bucket`,
		`nearest_ring_cells_bucket`,
		`redis_operation_duration_seconds_count`,
		`hot_cells{tier="origin"} 42`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "nearest_search_total", `outcome="found"`)
	assertHasMetricLine(t, body, "nearest_search_total", `outcome="none"`)
	assertHasMetricLine(t, body, "cache_results_total", `outcome="hit"`)
	assertHasMetricLine(t, body, "store_lookup_duration_seconds_count", `store="postgres"`, `result="error"`)
	assertHasMetricLine(t, body, "facility_events_total", `direction="in"`, `op="update"`, `result="ok"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`, `service="h3-facility-locator"`)
}
