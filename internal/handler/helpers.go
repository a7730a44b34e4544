package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeKindError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: domain.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes a JSON request body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// boolQuery reads a boolean query parameter; anything unparsable is false.
func boolQuery(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var rateLimited *domain.ErrRateLimited

	switch domain.Kind(err) {
	case domain.KindValidation:
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeKindError(w, http.StatusBadRequest, err)
	case domain.KindNotFound:
		logger.Debug("not found", zap.String("error", err.Error()))
		writeKindError(w, http.StatusNotFound, err)
	case domain.KindInvalidState:
		logger.Debug("invalid state", zap.String("error", err.Error()))
		writeKindError(w, http.StatusConflict, err)
	case domain.KindRateLimited:
		if errors.As(err, &rateLimited) {
			seconds := int(math.Ceil(rateLimited.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
		logger.Info("price fetch rate limited", zap.String("error", err.Error()))
		writeKindError(w, http.StatusTooManyRequests, err)
	case domain.KindInvalidPrice, domain.KindExternal:
		logger.Warn("upstream failure", zap.Error(err))
		writeKindError(w, http.StatusBadGateway, err)
	case domain.KindUnavailable:
		logger.Error("circuit breaker open", zap.Error(err))
		writeKindError(w, http.StatusServiceUnavailable, err)
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
