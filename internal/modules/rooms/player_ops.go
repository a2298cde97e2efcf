package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/players"
)

// UpdatePlayerStateRequest is the async-mode sync payload: the full
// post-day state of one player as computed client-side.
type UpdatePlayerStateRequest struct {
	CurrentDay int                        `json:"current_day"`
	Cash       float64                    `json:"cash"`
	Holdings   map[string]domain.Holding  `json:"holdings"`
	Trades     []domain.Trade             `json:"trades"`
	History    []domain.PortfolioSnapshot `json:"portfolio_history"`
	IsFinished bool                       `json:"is_finished"`
}

// UpdatePlayerState applies a client-computed player state. Last-writer-wins
// on the player record, with two server-side corrections: in sync modes the
// player's day is forced back to the room's day (the room is authoritative),
// and the AI shadow plus score are always recomputed server-side so the
// benchmark cannot be forged. The room's current_day never regresses.
func (s *Service) UpdatePlayerState(ctx context.Context, playerID string, req UpdatePlayerStateRequest) (*domain.Player, error) {
	player, err := s.players.Get(playerID)
	if err != nil {
		return nil, err
	}

	lock := s.roomLock(player.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.repo.Get(player.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomFinished {
		return nil, domain.ErrRoomFinished
	}
	player, err = s.players.Get(playerID)
	if err != nil {
		return nil, err
	}

	if req.CurrentDay < 0 || req.CurrentDay > room.Config.NumDays {
		return nil, fmt.Errorf("%w: current_day %d out of range", domain.ErrInvalidRequest, req.CurrentDay)
	}
	if req.Cash < 0 {
		return nil, fmt.Errorf("%w: cash must be >= 0, got %.2f", domain.ErrInvalidRequest, req.Cash)
	}
	// A stored holding always carries at least one share; positions sold to
	// zero are removed from the map, never kept at zero.
	for ticker, h := range req.Holdings {
		if h.Shares <= 0 {
			return nil, fmt.Errorf("%w: holding %s has %d shares", domain.ErrInvalidRequest, ticker, h.Shares)
		}
	}

	window, err := s.getWindow(ctx, room)
	if err != nil {
		return nil, err
	}
	engine := players.NewEngine(window, room.Config)

	newDay := req.CurrentDay
	if room.GameMode.Synchronized() {
		// The room owns the day in sync modes; the write is accepted but the
		// day field is overwritten.
		newDay = room.CurrentDay
	}

	// Step the shadow server-side across any days the client advanced. Days
	// the player already passed are never re-stepped, so stale writes cannot
	// rewind the benchmark.
	for d := player.CurrentDay; d < newDay; d++ {
		day, ok := engine.Day(d)
		if !ok {
			break
		}
		if next, ok := engine.Day(d + 1); ok {
			players.StepShadow(&player.Shadow, room.Config.InitialCash, day.Recommendations, next, engine.LastCloses(d+1))
		}
	}

	player.CurrentDay = newDay
	player.Cash = req.Cash
	if req.Holdings != nil {
		player.Holdings = req.Holdings
	}
	if req.Trades != nil {
		player.Trades = req.Trades
	}
	if req.History != nil {
		player.History = req.History
	}
	player.IsFinished = req.IsFinished || newDay >= room.Config.NumDays
	if player.IsFinished && player.GameEndedAt == nil {
		now := time.Now()
		player.GameEndedAt = &now
	}
	player.DayStart = domain.DayCheckpoint{Cash: player.Cash, Holdings: copyHoldings(player.Holdings)}
	player.UpdatedAt = time.Now()

	engine.Rescore(player)

	if err := s.players.Save(player, engine.LiveValue(player)); err != nil {
		return nil, err
	}
	return player, nil
}

func copyHoldings(h map[string]domain.Holding) map[string]domain.Holding {
	out := make(map[string]domain.Holding, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// MarkReady sets the player's readiness flag for the current day. Idempotent
// within a day; advance-day clears it.
func (s *Service) MarkReady(ctx context.Context, playerID string) (*domain.Player, error) {
	player, err := s.players.Get(playerID)
	if err != nil {
		return nil, err
	}

	lock := s.roomLock(player.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.repo.Get(player.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomFinished {
		return nil, domain.ErrRoomFinished
	}

	if err := s.players.SetReady(playerID, true); err != nil {
		return nil, err
	}
	player.IsReady = true

	_, ready, err := s.players.CountByRoom(room.ID)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.PlayerReady, room.Code, events.PlayerReadyData{
		PlayerID:   player.ID,
		ReadyCount: ready,
	})
	return player, nil
}

// TradeRequest is the server-side trade payload.
type TradeRequest struct {
	Ticker string           `json:"ticker"`
	Type   domain.TradeType `json:"type"`
	Shares int              `json:"shares"`
}

// Trade validates and executes one order through the simulation engine on
// the player's current day.
func (s *Service) Trade(ctx context.Context, playerID string, req TradeRequest) (*domain.Trade, *domain.Player, error) {
	player, err := s.players.Get(playerID)
	if err != nil {
		return nil, nil, err
	}

	lock := s.roomLock(player.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.repo.Get(player.RoomID)
	if err != nil {
		return nil, nil, err
	}
	if room.Status != domain.RoomInProgress {
		if room.Status == domain.RoomFinished {
			return nil, nil, domain.ErrRoomFinished
		}
		return nil, nil, fmt.Errorf("%w: room %s has not started", domain.ErrInvalidTransition, room.Code)
	}

	player, err = s.players.Get(playerID)
	if err != nil {
		return nil, nil, err
	}
	if player.IsFinished {
		return nil, nil, domain.ErrRoomFinished
	}

	window, err := s.getWindow(ctx, room)
	if err != nil {
		return nil, nil, err
	}
	engine := players.NewEngine(window, room.Config)

	var trade *domain.Trade
	switch req.Type {
	case domain.TradeBuy:
		trade, err = engine.ExecuteBuy(player, req.Ticker, req.Shares)
	case domain.TradeSell:
		trade, err = engine.ExecuteSell(player, req.Ticker, req.Shares)
	default:
		return nil, nil, fmt.Errorf("%w: unknown trade type %q", domain.ErrInvalidRequest, req.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.players.Save(player, engine.LiveValue(player)); err != nil {
		return nil, nil, err
	}

	s.bus.Publish(events.TradeExecuted, room.Code, events.TradeExecutedData{
		PlayerID: player.ID,
		Ticker:   trade.Ticker,
		Type:     string(trade.Type),
		Shares:   trade.Shares,
		Price:    trade.Price,
	})
	return trade, player, nil
}

// GetPlayer returns one player record.
func (s *Service) GetPlayer(playerID string) (*domain.Player, error) {
	return s.players.Get(playerID)
}
