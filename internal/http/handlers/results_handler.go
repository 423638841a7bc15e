package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/service"
)

// ResultsHandler lists recent measurements.
type ResultsHandler struct {
	service *service.BenchService
	logger  *zap.Logger
}

// NewResultsHandler returns handler.
func NewResultsHandler(benchService *service.BenchService, logger *zap.Logger) *ResultsHandler {
	return &ResultsHandler{
		service: benchService,
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/results/recent?days=&limit=.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 100)

	results, err := h.service.RecentResults(r.Context(), days, limit)
	if err != nil {
		h.logger.Error("failed to fetch recent results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// ExportHandler streams all measurements as a CSV backup.
type ExportHandler struct {
	service *service.BenchService
	logger  *zap.Logger
}

// NewExportHandler returns handler.
func NewExportHandler(benchService *service.BenchService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		service: benchService,
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/results/export.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("lcr_measurements_backup_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.service.ExportCSV(r.Context(), w); err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
