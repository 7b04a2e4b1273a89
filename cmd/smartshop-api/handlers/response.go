// Package handlers provides HTTP handlers for the SmartShop API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps typed engine errors to status codes. Anything else
// is logged and reported as an internal error.
func writeDomainError(w http.ResponseWriter, logger *observability.Logger, err error, op string) {
	kind := domain.KindOf(err)
	var status int
	switch kind {
	case domain.KindInvalidOffer:
		status = http.StatusBadRequest
	case domain.KindInvalidState:
		status = http.StatusConflict
	case domain.KindSessionNotFound, domain.KindProductNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidProduct:
		status = http.StatusUnprocessableEntity
	default:
		logger.Error().Err(err).Str("operation", op).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, op+" failed", "")
		return
	}

	var de *domain.Error
	message := err.Error()
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSON(w, status, map[string]string{
		"error":   string(kind),
		"message": message,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// parseK reads the result count from a query parameter, applying the
// default and the upper bound.
func parseK(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return 0, errors.New("k must be a positive integer")
	}
	if max > 0 && k > max {
		k = max
	}
	return k, nil
}
