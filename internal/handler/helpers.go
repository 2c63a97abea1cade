package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps typed domain errors to HTTP status codes.
// ErrCircuitOpen and ErrTimeout arrive wrapped in ErrExternalService and are matched first.
// A validation error inside ErrExternalService describes stored data and maps to 502.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream service unavailable")
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &forbidden):
		logger.Warn("forbidden", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Debug("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
