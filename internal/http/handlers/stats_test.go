package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/history"
)

func TestStatsSummary(t *testing.T) {
	hist := &stubHistory{
		summary: &history.Summary{
			Total:              10,
			Succeeded:          7,
			Failed:             1,
			TimedOut:           1,
			TransportExhausted: 0,
			Running:            1,
			AvgSuccessSeconds:  84.5,
			ArtifactBytesTotal: 1 << 20,
		},
		countries: []history.CountryCount{{Country: "ID", Total: 6}, {Country: "US", Total: 4}},
	}
	app := &App{Logger: zerolog.Nop(), Config: testConfig(), History: hist}

	req := httptest.NewRequest("GET", "/v1/stats/summary?hours=48&top=2", nil)
	rr := httptest.NewRecorder()
	app.StatsSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}
	if hist.gotHours != 48 || hist.gotTop != 2 {
		t.Fatalf("hours = %d top = %d", hist.gotHours, hist.gotTop)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["window_hours"].(float64) != 48 {
		t.Fatalf("window_hours = %v", resp["window_hours"])
	}
	if resp["succeeded"].(float64) != 7 {
		t.Fatalf("succeeded = %v", resp["succeeded"])
	}
	top := resp["top_countries"].([]any)
	if len(top) != 2 {
		t.Fatalf("top_countries len = %d, want 2", len(top))
	}
	first := top[0].(map[string]any)
	if first["country"] != "ID" || first["total"].(float64) != 6 {
		t.Fatalf("unexpected first country: %v", first)
	}
}

func TestStatsSummaryDefaults(t *testing.T) {
	hist := &stubHistory{summary: &history.Summary{}}
	app := &App{Logger: zerolog.Nop(), Config: testConfig(), History: hist}

	req := httptest.NewRequest("GET", "/v1/stats/summary", nil)
	rr := httptest.NewRecorder()
	app.StatsSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if hist.gotHours != 24 || hist.gotTop != 10 {
		t.Fatalf("hours = %d top = %d, want defaults 24/10", hist.gotHours, hist.gotTop)
	}
}

func TestStatsSummaryWithoutDatabase(t *testing.T) {
	app := &App{Logger: zerolog.Nop(), Config: testConfig()}

	req := httptest.NewRequest("GET", "/v1/stats/summary", nil)
	rr := httptest.NewRecorder()
	app.StatsSummary(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
