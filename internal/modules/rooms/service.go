package rooms

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/marketdata"
	"github.com/aristath/marketclass/internal/modules/players"
)

// createCodeAttempts bounds the rejection-sampling loop on code collisions.
const createCodeAttempts = 10

// Service is the room registry and the entry point for every room and
// player mutation. All writes to a room (and to players within it) are
// serialized through a per-room lock; the SQLite transaction underneath
// makes each transition atomic on disk as well.
type Service struct {
	repo    *Repository
	players *players.Repository
	market  *marketdata.Service
	bus     *events.Bus
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	windowMu sync.Mutex
	windows  map[string][]domain.MarketDay
}

// NewService creates the room service.
func NewService(repo *Repository, playerRepo *players.Repository, market *marketdata.Service, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		players: playerRepo,
		market:  market,
		bus:     bus,
		log:     log.With().Str("service", "rooms").Logger(),
		locks:   map[string]*sync.Mutex{},
		windows: map[string][]domain.MarketDay{},
	}
}

// roomLock returns the mutex serializing mutations for one room id.
func (s *Service) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[roomID] = lock
	}
	return lock
}

// CreateRoomRequest is the validated create-room payload. Unknown config
// keys are dropped during JSON decoding; only the recognized envelope
// reaches this struct.
type CreateRoomRequest struct {
	CreatedBy string            `json:"created_by"`
	RoomName  string            `json:"room_name,omitempty"`
	Config    domain.GameConfig `json:"config"`
	StartDate string            `json:"start_date,omitempty"`
	EndDate   string            `json:"end_date,omitempty"`
	GameMode  domain.GameMode   `json:"game_mode"`
}

// Create validates the config envelope, resolves the session window, and
// persists a new room in waiting.
func (s *Service) Create(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	if strings.TrimSpace(req.CreatedBy) == "" {
		return nil, fmt.Errorf("%w: created_by is required", domain.ErrInvalidRequest)
	}
	if !req.GameMode.Valid() {
		return nil, fmt.Errorf("%w: unknown game mode %q", domain.ErrInvalidRequest, req.GameMode)
	}

	config, err := normalizeConfig(req.Config, req.GameMode)
	if err != nil {
		return nil, err
	}

	startDate, endDate, err := s.resolveWindow(req.StartDate, req.EndDate, config.NumDays)
	if err != nil {
		return nil, err
	}

	// Validate the window up front: every weekday in it must carry full
	// data, otherwise the room would fail at start time instead.
	wantDays, err := marketdata.WeekdayCount(startDate, endDate)
	if err != nil {
		return nil, err
	}
	window, err := s.market.GetSessionWindow(ctx, config.Tickers, startDate, endDate, wantDays)
	if err != nil {
		return nil, err
	}

	room := &domain.Room{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.RoomName),
		CreatedBy: strings.TrimSpace(req.CreatedBy),
		Config:    config,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    domain.RoomWaiting,
		GameMode:  req.GameMode,
		CreatedAt: time.Now(),
	}
	if config.DayDurationSeconds > 0 {
		limit := config.DayDurationSeconds
		room.DayTimeLimit = &limit
	}

	// Rejection-sample codes until the partial unique index accepts one.
	for attempt := 0; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		room.Code = code
		if err := s.repo.Create(room); err == nil {
			break
		} else if attempt+1 >= createCodeAttempts {
			return nil, fmt.Errorf("%w: could not allocate a room code", domain.ErrUnavailable)
		}
	}

	s.cacheWindow(room.ID, window)

	s.log.Info().
		Str("room", room.Code).
		Str("mode", string(room.GameMode)).
		Str("window", startDate+".."+endDate).
		Int("num_days", config.NumDays).
		Msg("Room created")

	s.bus.Publish(events.RoomCreated, room.Code, nil)
	return room, nil
}

// normalizeConfig applies envelope defaults and validates ranges.
func normalizeConfig(c domain.GameConfig, mode domain.GameMode) (domain.GameConfig, error) {
	if c.InitialCash == 0 {
		c.InitialCash = 100000
	}
	if c.InitialCash <= 0 {
		return c, fmt.Errorf("%w: initial_cash must be positive", domain.ErrInvalidRequest)
	}
	if c.NumDays <= 0 {
		return c, fmt.Errorf("%w: num_days must be a positive integer", domain.ErrInvalidRequest)
	}
	if len(c.Tickers) == 0 {
		return c, fmt.Errorf("%w: tickers must be non-empty", domain.ErrInvalidRequest)
	}
	seen := map[string]bool{}
	for i, t := range c.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return c, fmt.Errorf("%w: tickers must be unique non-empty symbols", domain.ErrInvalidRequest)
		}
		seen[t] = true
		c.Tickers[i] = t
	}
	if c.Difficulty == "" {
		c.Difficulty = domain.DifficultyMedium
	}
	if !c.Difficulty.Valid() {
		return c, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidRequest, c.Difficulty)
	}
	if mode == domain.ModeSyncAuto && c.DayDurationSeconds <= 0 {
		return c, fmt.Errorf("%w: day_duration_seconds is required for sync_auto", domain.ErrInvalidRequest)
	}
	if c.DayDurationSeconds < 0 {
		return c, fmt.Errorf("%w: day_duration_seconds must be positive", domain.ErrInvalidRequest)
	}
	return c, nil
}

// resolveWindow fills in missing session dates. With no dates given, the
// window is anchored to the newest price data: the last num_days calendar
// days ending at the latest stored date, plus one extra day so trades
// recorded on the final session day still have an execution open.
func (s *Service) resolveWindow(startDate, endDate string, numDays int) (string, string, error) {
	if startDate != "" && endDate != "" {
		return startDate, endDate, nil
	}
	if (startDate == "") != (endDate == "") {
		return "", "", fmt.Errorf("%w: start_date and end_date must be given together", domain.ErrInvalidRequest)
	}

	latest, err := s.market.LatestDate()
	if err != nil {
		return "", "", err
	}
	if latest == "" {
		return "", "", fmt.Errorf("%w: no market data available", domain.ErrInsufficientData)
	}

	end, _ := time.Parse("2006-01-02", latest)
	start := end.AddDate(0, 0, -numDays)
	return start.Format("2006-01-02"), end.Format("2006-01-02"), nil
}

// JoinRequest is the join-room payload.
type JoinRequest struct {
	RoomCode    string `json:"room_code"`
	PlayerName  string `json:"player_name"`
	PlayerEmail string `json:"player_email,omitempty"`
}

// Join adds a player to a room. Sync modes only accept joiners while the
// room is waiting; async accepts them until the room finishes.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Player, error) {
	if strings.TrimSpace(req.PlayerName) == "" {
		return nil, fmt.Errorf("%w: player_name is required", domain.ErrInvalidRequest)
	}

	room, err := s.Get(req.RoomCode)
	if err != nil {
		return nil, err
	}

	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	room, err = s.repo.Get(room.ID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomFinished {
		return nil, domain.ErrRoomFinished
	}
	if room.GameMode.Synchronized() && room.Status != domain.RoomWaiting {
		return nil, domain.ErrRoomInProgress
	}

	engine := players.NewEngine(nil, room.Config)
	player := engine.NewPlayer(uuid.New().String(), room.ID, strings.TrimSpace(req.PlayerName), strings.TrimSpace(req.PlayerEmail))

	// Late async joiners still start on their own day 0; only sync modes
	// tie player days to the room.
	player.LastSyncDay = room.CurrentDay

	if err := s.players.Create(player, room.Config.InitialCash); err != nil {
		return nil, err
	}

	s.log.Info().Str("room", room.Code).Str("player", player.Name).Msg("Player joined")
	s.bus.Publish(events.PlayerJoined, room.Code, events.PlayerJoinedData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
	})
	return player, nil
}

// Get returns a room by code (case-insensitive).
func (s *Service) Get(code string) (*domain.Room, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, fmt.Errorf("%w: malformed room code %q", domain.ErrInvalidRequest, code)
	}
	return s.repo.GetByCode(code)
}

// List returns room summaries, optionally filtered by status.
func (s *Service) List(status string) ([]domain.RoomSummary, error) {
	if status != "" && status != string(domain.RoomWaiting) &&
		status != string(domain.RoomInProgress) && status != string(domain.RoomFinished) {
		return nil, fmt.Errorf("%w: unknown status filter %q", domain.ErrInvalidRequest, status)
	}
	return s.repo.List(status)
}

// State builds the polled room-state snapshot.
func (s *Service) State(code string) (*domain.RoomState, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}

	total, ready, err := s.players.CountByRoom(room.ID)
	if err != nil {
		return nil, err
	}

	state := &domain.RoomState{
		RoomCode:          room.Code,
		Status:            room.Status,
		GameMode:          room.GameMode,
		CurrentDay:        room.CurrentDay,
		DayStartedAt:      room.DayStartedAt,
		DayTimeLimit:      room.DayTimeLimit,
		WaitingForTeacher: room.GameMode.Synchronized() && room.Status == domain.RoomInProgress,
		ReadyCount:        ready,
		TotalPlayers:      total,
	}

	if deadline, ok := room.DayDeadline(); ok && room.Status == domain.RoomInProgress {
		remaining := int(time.Until(deadline).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		state.TimeRemaining = &remaining
	}

	return state, nil
}

// Leaderboard returns the ranked player list for a room.
func (s *Service) Leaderboard(code string) ([]domain.LeaderboardEntry, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	return s.players.Leaderboard(room.ID)
}

// RoomExport is the post-game export document: the room, every player's
// full state, and the market window the session ran over.
type RoomExport struct {
	Room        *domain.Room             `json:"room"`
	Players     []*domain.Player         `json:"players"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	MarketDays  []domain.MarketDay       `json:"market_days"`
	ExportedAt  time.Time                `json:"exported_at"`
}

// Export assembles the full session record for post-hoc inspection.
func (s *Service) Export(ctx context.Context, code string) (*RoomExport, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}

	roster, err := s.players.ListByRoom(room.ID)
	if err != nil {
		return nil, err
	}
	leaderboard, err := s.players.Leaderboard(room.ID)
	if err != nil {
		return nil, err
	}
	window, err := s.getWindow(ctx, room)
	if err != nil {
		return nil, err
	}

	return &RoomExport{
		Room:        room,
		Players:     roster,
		Leaderboard: leaderboard,
		MarketDays:  window,
		ExportedAt:  time.Now().UTC(),
	}, nil
}

// Window returns the session window for a room, loading and caching it on
// first use.
func (s *Service) Window(ctx context.Context, code string) ([]domain.MarketDay, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	return s.getWindow(ctx, room)
}

func (s *Service) cacheWindow(roomID string, window []domain.MarketDay) {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	s.windows[roomID] = window
}

// getWindow returns the cached session window for a room, rebuilding it
// from the market store after a restart. The market tables are append-only,
// so a cached window never goes stale within a session.
func (s *Service) getWindow(ctx context.Context, room *domain.Room) ([]domain.MarketDay, error) {
	s.windowMu.Lock()
	window, ok := s.windows[room.ID]
	s.windowMu.Unlock()
	if ok {
		return window, nil
	}

	wantDays, err := marketdata.WeekdayCount(room.StartDate, room.EndDate)
	if err != nil {
		return nil, err
	}
	window, err = s.market.GetSessionWindow(ctx, room.Config.Tickers, room.StartDate, room.EndDate, wantDays)
	if err != nil {
		return nil, err
	}

	s.cacheWindow(room.ID, window)
	return window, nil
}

// authorize checks a teacher command against the room creator.
func authorize(room *domain.Room, caller string) error {
	if strings.TrimSpace(caller) != room.CreatedBy {
		return fmt.Errorf("%w: %q is not the room creator", domain.ErrNotAuthorized, caller)
	}
	return nil
}
