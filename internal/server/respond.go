package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/domain"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// errorKind maps a domain error to its wire name and HTTP status. Every
// kind is locally recoverable by the caller; 503 is reserved for internal
// faults.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "RoomNotFound", http.StatusNotFound
	case errors.Is(err, domain.ErrPlayerNotFound):
		return "PlayerNotFound", http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return "NotAuthorized", http.StatusForbidden
	case errors.Is(err, domain.ErrRoomFinished):
		return "RoomFinished", http.StatusConflict
	case errors.Is(err, domain.ErrRoomInProgress):
		return "RoomInProgress", http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return "InvalidTransition", http.StatusConflict
	case errors.Is(err, domain.ErrMarketsClosed):
		return "MarketsClosed", http.StatusConflict
	case errors.Is(err, domain.ErrRecommendationBlocked):
		return "RecommendationBlocked", http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientCash):
		return "InsufficientCash", http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientShares):
		return "InsufficientShares", http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientData):
		return "InsufficientData", http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRequest):
		return "InvalidRequest", http.StatusBadRequest
	default:
		return "Unavailable", http.StatusServiceUnavailable
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps a domain error to the wire envelope. Internal faults
// are logged server-side and surfaced as a generic Unavailable.
func respondError(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind, status := errorKind(err)
	if status == http.StatusServiceUnavailable {
		log.Error().Err(err).Msg("Internal fault")
		respondJSON(w, status, errorBody{Error: "service unavailable", Kind: kind})
		return
	}
	respondJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// decodeJSON decodes a request body, mapping malformed payloads to
// InvalidRequest.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}
