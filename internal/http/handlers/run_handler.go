package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lcrbench/internal/service"
)

// RunHandler starts a measurement run.
type RunHandler struct {
	service *service.BenchService
	logger  *zap.Logger
}

// NewRunHandler returns handler.
func NewRunHandler(benchService *service.BenchService, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		service: benchService,
		logger:  logger,
	}
}

// ServeHTTP handles POST /api/runs. The request blocks for the duration
// of the run (a few seconds of instrument settle and retry time).
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var input service.RunInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(input.SampleName) == "" {
		writeError(w, http.StatusBadRequest, "sample_name is required")
		return
	}
	if strings.TrimSpace(input.TesterName) == "" {
		writeError(w, http.StatusBadRequest, "tester_name is required")
		return
	}

	result, err := h.service.RunMeasurement(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			writeError(w, http.StatusConflict, "a measurement run is already in progress")
		case errors.Is(err, service.ErrInstrumentUnavailable):
			h.logger.Error("instrument unavailable",
				zap.String("resource", input.Resource), zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Error("measurement run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "measurement run failed")
		}
		return
	}

	if !result.Report.Valid {
		// Records come back alongside the issues so the operator can see
		// exactly which values were blocked.
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
