package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/modules/rooms"
)

// RoomHandlers serves the room registry and teacher command routes.
type RoomHandlers struct {
	rooms *rooms.Service
	log   zerolog.Logger
}

// NewRoomHandlers creates the room handlers.
func NewRoomHandlers(roomService *rooms.Service, log zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms: roomService,
		log:   log.With().Str("handlers", "rooms").Logger(),
	}
}

// Create handles POST /rooms.
func (h *RoomHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req rooms.CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	room, err := h.rooms.Create(r.Context(), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, room)
}

// Join handles POST /rooms/join.
func (h *RoomHandlers) Join(w http.ResponseWriter, r *http.Request) {
	var req rooms.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	player, err := h.rooms.Join(r.Context(), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, player)
}

// Get handles GET /rooms/{code}.
func (h *RoomHandlers) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Get(chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

// List handles GET /rooms.
func (h *RoomHandlers) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.rooms.List(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

// State handles GET /rooms/{code}/state, the high-frequency poll route.
func (h *RoomHandlers) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.rooms.State(chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// Leaderboard handles GET /rooms/{code}/leaderboard.
func (h *RoomHandlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.rooms.Leaderboard(chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// MarketDays handles GET /rooms/{code}/market-days: the session window the
// room plays over, used by clients for their local replay.
func (h *RoomHandlers) MarketDays(w http.ResponseWriter, r *http.Request) {
	window, err := h.rooms.Window(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, window)
}

// Export handles GET /rooms/{code}/export.
func (h *RoomHandlers) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.rooms.Export(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, export)
}

// Start handles POST /rooms/{code}/start.
func (h *RoomHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartedBy string `json:"started_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	room, err := h.rooms.Start(r.Context(), chi.URLParam(r, "code"), req.StartedBy)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

// AdvanceDay handles POST /rooms/{code}/advance-day.
func (h *RoomHandlers) AdvanceDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitiatedBy  string `json:"initiated_by"`
		DayTimeLimit *int   `json:"day_time_limit,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	room, err := h.rooms.AdvanceDay(r.Context(), chi.URLParam(r, "code"), req.InitiatedBy, req.DayTimeLimit)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

// EndGame handles POST /rooms/{code}/end-game.
func (h *RoomHandlers) EndGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndedBy string `json:"ended_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	room, err := h.rooms.EndGame(r.Context(), chi.URLParam(r, "code"), req.EndedBy)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

// SetTimer handles POST /rooms/{code}/set-timer.
func (h *RoomHandlers) SetTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SetBy           string `json:"set_by"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	room, err := h.rooms.SetTimer(r.Context(), chi.URLParam(r, "code"), req.SetBy, req.DurationSeconds)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}
