package handler

import (
	"net/http"

	"ewintr.nl/vidqa/cache"
)

type StatsReporter interface {
	Stats() cache.Stats
}

type HealthAPI struct {
	stats StatsReporter
}

func NewHealthAPI(stats StatsReporter) *HealthAPI {
	return &HealthAPI{stats: stats}
}

func (h *HealthAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status string       `json:"status"`
		Cache  *cache.Stats `json:"cache,omitempty"`
	}{
		Status: "ok",
	}
	if h.stats != nil {
		stats := h.stats.Stats()
		resp.Cache = &stats
	}
	JSON(w, http.StatusOK, resp)
}
