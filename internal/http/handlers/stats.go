package handlers

import (
	"net/http"
)

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, r, http.StatusServiceUnavailable, codeHistoryUnavailable)
		return
	}
	hours := intQuery(r, "hours", 24)
	if hours <= 0 {
		hours = 24
	}
	top := intQuery(r, "top", 10)
	summary, err := a.History.Summary(r.Context(), hours)
	if err != nil {
		a.Logger.Error().Err(err).Msg("stats summary failed")
		a.fail(w, r, http.StatusInternalServerError, codeInternal)
		return
	}
	countries, err := a.History.TopCountries(r.Context(), hours, top)
	if err != nil {
		a.Logger.Error().Err(err).Msg("stats countries failed")
		a.fail(w, r, http.StatusInternalServerError, codeInternal)
		return
	}
	byCountry := make([]map[string]any, 0, len(countries))
	for _, c := range countries {
		byCountry = append(byCountry, map[string]any{"country": c.Country, "total": c.Total})
	}
	a.json(w, http.StatusOK, map[string]any{
		"window_hours":         hours,
		"total":                summary.Total,
		"succeeded":            summary.Succeeded,
		"failed":               summary.Failed,
		"timed_out":            summary.TimedOut,
		"transport_exhausted":  summary.TransportExhausted,
		"running":              summary.Running,
		"avg_success_seconds":  summary.AvgSuccessSeconds,
		"artifact_bytes_total": summary.ArtifactBytesTotal,
		"top_countries":        byCountry,
	})
}
