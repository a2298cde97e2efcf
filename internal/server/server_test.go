package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/config"
	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/marketdata"
	"github.com/aristath/marketclass/internal/modules/players"
	"github.com/aristath/marketclass/internal/modules/rooms"
	"github.com/aristath/marketclass/internal/server"
	mtesting "github.com/aristath/marketclass/internal/testing"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	gameDB, cleanupGame := mtesting.NewTestDB(t, "game")
	t.Cleanup(cleanupGame)
	marketDB, cleanupMarket := mtesting.NewTestDB(t, "market")
	t.Cleanup(cleanupMarket)

	// Mon..Wed with a BUY on day 0.
	mtesting.SeedPrice(t, marketDB.Conn(), "AAPL", "2024-01-01", mtesting.OpenClose(95, 100))
	mtesting.SeedPrice(t, marketDB.Conn(), "AAPL", "2024-01-02", mtesting.OpenClose(100, 110))
	mtesting.SeedPrice(t, marketDB.Conn(), "AAPL", "2024-01-03", mtesting.OpenClose(110, 120))
	mtesting.SeedRecommendation(t, marketDB.Conn(), "AAPL", "2024-01-01", domain.Buy)
	mtesting.SeedRecommendation(t, marketDB.Conn(), "AAPL", "2024-01-02", domain.Hold)
	mtesting.SeedRecommendation(t, marketDB.Conn(), "AAPL", "2024-01-03", domain.Hold)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	marketService := marketdata.NewService(marketdata.NewRepository(marketDB.Conn(), log), log)
	roomService := rooms.NewService(
		rooms.NewRepository(gameDB.Conn(), log),
		players.NewRepository(gameDB.Conn(), log),
		marketService, bus, log)

	srv := server.New(server.Config{
		Log:      log,
		Config:   &config.Config{DataDir: t.TempDir(), Port: 8002},
		GameDB:   gameDB,
		MarketDB: marketDB,
		Rooms:    roomService,
		Bus:      bus,
	})
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func createTestRoom(t *testing.T, h http.Handler, mode domain.GameMode) *domain.Room {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/rooms", map[string]interface{}{
		"created_by": "teacher",
		"game_mode":  mode,
		"start_date": "2024-01-01",
		"end_date":   "2024-01-03",
		"config": map[string]interface{}{
			"initial_cash": 100000,
			"num_days":     2,
			"tickers":      []string{"AAPL"},
			"difficulty":   "medium",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var room domain.Room
	decode(t, rec, &room)
	return &room
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t)
	room := createTestRoom(t, h, domain.ModeSync)
	assert.Len(t, room.Code, 6)
	assert.Equal(t, domain.RoomWaiting, room.Status)

	// Join.
	rec := do(t, h, http.MethodPost, "/rooms/join", map[string]string{
		"room_code":   strings.ToLower(room.Code),
		"player_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var player domain.Player
	decode(t, rec, &player)
	assert.Equal(t, 100000.0, player.Cash)

	// Start by the wrong caller, then the creator.
	rec = do(t, h, http.MethodPost, "/rooms/"+room.Code+"/start", map[string]string{"started_by": "intruder"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/rooms/"+room.Code+"/start", map[string]string{"started_by": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Trade through the server-side engine.
	rec = do(t, h, http.MethodPost, "/players/"+player.ID+"/trade", map[string]interface{}{
		"ticker": "AAPL", "type": "BUY", "shares": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var traded struct {
		Trade  domain.Trade  `json:"trade"`
		Player domain.Player `json:"player"`
	}
	decode(t, rec, &traded)
	assert.Equal(t, 100.0, traded.Trade.Price)
	assert.Equal(t, 90000.0, traded.Player.Cash)

	// Poll state, advance, poll again.
	rec = do(t, h, http.MethodGet, "/rooms/"+room.Code+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state domain.RoomState
	decode(t, rec, &state)
	assert.Equal(t, 0, state.CurrentDay)
	assert.Equal(t, 1, state.TotalPlayers)

	rec = do(t, h, http.MethodPost, "/rooms/"+room.Code+"/advance-day", map[string]string{"initiated_by": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/rooms/"+room.Code+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.Equal(t, 1, state.CurrentDay)

	// Leaderboard and market days round out the read surface.
	rec = do(t, h, http.MethodGet, "/rooms/"+room.Code+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []domain.LeaderboardEntry
	decode(t, rec, &board)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Rank)

	rec = do(t, h, http.MethodGet, "/rooms/"+room.Code+"/market-days", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var window []domain.MarketDay
	decode(t, rec, &window)
	assert.Len(t, window, 3)

	rec = do(t, h, http.MethodGet, "/rooms/"+room.Code+"/export", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t)

	cases := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantKind   string
	}{
		{"unknown room", http.MethodGet, "/rooms/ZZZZZ9", nil, http.StatusNotFound, "RoomNotFound"},
		{"malformed code", http.MethodGet, "/rooms/nope!", nil, http.StatusBadRequest, "InvalidRequest"},
		{"unknown player", http.MethodGet, "/players/ghost", nil, http.StatusNotFound, "PlayerNotFound"},
		{"bad status filter", http.MethodGet, "/rooms?status=bogus", nil, http.StatusBadRequest, "InvalidRequest"},
		{"join unknown room", http.MethodPost, "/rooms/join",
			map[string]string{"room_code": "ZZZZZ9", "player_name": "Alice"},
			http.StatusNotFound, "RoomNotFound"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)

			var body struct {
				Kind string `json:"kind"`
			}
			decode(t, rec, &body)
			assert.Equal(t, tc.wantKind, body.Kind)
		})
	}
}

func TestMalformedJSONBody(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidRequest")
}

func TestTradeConflictsOverHTTP(t *testing.T) {
	h := newTestServer(t)
	room := createTestRoom(t, h, domain.ModeAsync)

	rec := do(t, h, http.MethodPost, "/rooms/join", map[string]string{
		"room_code": room.Code, "player_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var player domain.Player
	decode(t, rec, &player)

	rec = do(t, h, http.MethodPost, "/rooms/"+room.Code+"/start", map[string]string{"started_by": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Selling shares that are not held.
	rec = do(t, h, http.MethodPost, "/players/"+player.ID+"/trade", map[string]interface{}{
		"ticker": "AAPL", "type": "SELL", "shares": 10,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "InsufficientShares")

	// Spending more cash than the portfolio holds.
	rec = do(t, h, http.MethodPost, "/players/"+player.ID+"/trade", map[string]interface{}{
		"ticker": "AAPL", "type": "BUY", "shares": 2000,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "InsufficientCash")
}

func TestSystemSurfaces(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/system/databases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "game")
	assert.Contains(t, rec.Body.String(), "market")

	rec = do(t, h, http.MethodGet, "/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines")
}

func TestEndGameOverHTTP(t *testing.T) {
	h := newTestServer(t)
	room := createTestRoom(t, h, domain.ModeSync)

	rec := do(t, h, http.MethodPost, "/rooms/"+room.Code+"/start", map[string]string{"started_by": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/rooms/"+room.Code+"/end-game", map[string]string{"ended_by": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code)
	var ended domain.Room
	decode(t, rec, &ended)
	assert.Equal(t, domain.RoomFinished, ended.Status)

	// Game actions on the finished room report the terminal state.
	rec = do(t, h, http.MethodPost, fmt.Sprintf("/rooms/%s/set-timer", room.Code),
		map[string]interface{}{"set_by": "teacher", "duration_seconds": 60})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "RoomFinished")
}
