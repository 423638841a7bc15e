package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"lcrbench/internal/service"
)

// SamplesHandler lists known sample names.
type SamplesHandler struct {
	service *service.BenchService
	logger  *zap.Logger
}

// NewSamplesHandler returns handler.
func NewSamplesHandler(benchService *service.BenchService, logger *zap.Logger) *SamplesHandler {
	return &SamplesHandler{
		service: benchService,
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/samples.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.SampleNames(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch sample names", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": names})
}
