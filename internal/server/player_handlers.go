package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/modules/rooms"
)

// PlayerHandlers serves the player sync and trading routes.
type PlayerHandlers struct {
	rooms *rooms.Service
	log   zerolog.Logger
}

// NewPlayerHandlers creates the player handlers.
func NewPlayerHandlers(roomService *rooms.Service, log zerolog.Logger) *PlayerHandlers {
	return &PlayerHandlers{
		rooms: roomService,
		log:   log.With().Str("handlers", "players").Logger(),
	}
}

// Get handles GET /players/{id}.
func (h *PlayerHandlers) Get(w http.ResponseWriter, r *http.Request) {
	player, err := h.rooms.GetPlayer(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, player)
}

// UpdateState handles PUT /players/{id}, the async-mode sync write.
func (h *PlayerHandlers) UpdateState(w http.ResponseWriter, r *http.Request) {
	var req rooms.UpdatePlayerStateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	player, err := h.rooms.UpdatePlayerState(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, player)
}

// MarkReady handles POST /players/{id}/ready.
func (h *PlayerHandlers) MarkReady(w http.ResponseWriter, r *http.Request) {
	player, err := h.rooms.MarkReady(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, player)
}

// tradeResponse pairs the executed trade with the post-trade player state.
type tradeResponse struct {
	Trade  *domain.Trade  `json:"trade"`
	Player *domain.Player `json:"player"`
}

// Trade handles POST /players/{id}/trade.
func (h *PlayerHandlers) Trade(w http.ResponseWriter, r *http.Request) {
	var req rooms.TradeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	trade, player, err := h.rooms.Trade(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, tradeResponse{Trade: trade, Player: player})
}
