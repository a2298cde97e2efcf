// Package players implements the per-player deterministic trading
// simulation: order validation and execution, end-of-day snapshots, the
// composite score, and the AI shadow benchmark. The engine is a pure
// function of (player state, market day sequence, action) so the exact same
// rules run server-side and in client-side replays.
package players

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/marketclass/internal/domain"
)

// priceEpsilon absorbs float accumulation when comparing order totals
// against available cash.
const priceEpsilon = 1e-6

// Engine evaluates orders and day advances for one session window. It holds
// no mutable state of its own and is safe for concurrent use.
type Engine struct {
	window []domain.MarketDay
	config domain.GameConfig
}

// NewEngine creates an engine over a session window.
func NewEngine(window []domain.MarketDay, config domain.GameConfig) *Engine {
	return &Engine{window: window, config: config}
}

// NewPlayer initializes a fresh player for the engine's config.
func (e *Engine) NewPlayer(id, roomID, name, email string) *domain.Player {
	now := time.Now()
	return &domain.Player{
		ID:         id,
		RoomID:     roomID,
		Name:       name,
		Email:      email,
		Cash:       e.config.InitialCash,
		Holdings:   map[string]domain.Holding{},
		Trades:     []domain.Trade{},
		History:    []domain.PortfolioSnapshot{},
		Grade:      "C",
		Shadow:     NewShadow(e.config.InitialCash),
		DayStart:   domain.DayCheckpoint{Cash: e.config.InitialCash, Holdings: map[string]domain.Holding{}},
		JoinedAt:   now,
		UpdatedAt:  now,
	}
}

// Day returns the market day at index i, or false past either end.
func (e *Engine) Day(i int) (*domain.MarketDay, bool) {
	if i < 0 || i >= len(e.window) {
		return nil, false
	}
	return &e.window[i], true
}

// ValidateBuy checks a buy order on the player's current day and returns
// the execution price (the next day's open). A buy is admissible only when
// the current day is a trading day, the ticker carries a BUY or STRONG_BUY
// recommendation, the next day has an open price, and the order total fits
// in cash.
func (e *Engine) ValidateBuy(p *domain.Player, ticker string, shares int) (float64, error) {
	day, ok := e.Day(p.CurrentDay)
	if !ok {
		return 0, fmt.Errorf("%w: day %d outside session", domain.ErrInvalidRequest, p.CurrentDay)
	}
	if !day.IsTradingDay {
		return 0, domain.ErrMarketsClosed
	}

	rec, ok := day.RecommendationFor(ticker)
	if !ok {
		return 0, fmt.Errorf("%w: no recommendation for %s on %s", domain.ErrRecommendationBlocked, ticker, day.Date)
	}
	if !rec.Recommendation.AllowsBuy() {
		return 0, fmt.Errorf("%w: %s is %s on %s", domain.ErrRecommendationBlocked, ticker, rec.Recommendation, day.Date)
	}

	next, ok := e.Day(p.CurrentDay + 1)
	if !ok {
		return 0, fmt.Errorf("%w: no next session day to execute on", domain.ErrMarketsClosed)
	}
	price, ok := next.OpenPrice(ticker)
	if !ok {
		return 0, fmt.Errorf("%w: no open price for %s on %s", domain.ErrMarketsClosed, ticker, next.Date)
	}

	if shares < 1 {
		return 0, fmt.Errorf("%w: shares must be >= 1", domain.ErrInvalidRequest)
	}
	if total := float64(shares) * price; total > p.Cash+priceEpsilon {
		return 0, fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientCash, total, p.Cash)
	}

	return price, nil
}

// ValidateSell checks a sell order on the player's current day and returns
// the execution price (the next day's open). Sells carry no recommendation
// restriction.
func (e *Engine) ValidateSell(p *domain.Player, ticker string, shares int) (float64, error) {
	day, ok := e.Day(p.CurrentDay)
	if !ok {
		return 0, fmt.Errorf("%w: day %d outside session", domain.ErrInvalidRequest, p.CurrentDay)
	}
	if !day.IsTradingDay {
		return 0, domain.ErrMarketsClosed
	}

	if shares < 1 {
		return 0, fmt.Errorf("%w: shares must be >= 1", domain.ErrInvalidRequest)
	}
	holding, ok := p.Holdings[ticker]
	if !ok || holding.Shares < shares {
		return 0, fmt.Errorf("%w: hold %d, want to sell %d", domain.ErrInsufficientShares, holding.Shares, shares)
	}

	next, ok := e.Day(p.CurrentDay + 1)
	if !ok {
		return 0, fmt.Errorf("%w: no next session day to execute on", domain.ErrMarketsClosed)
	}
	price, ok := next.OpenPrice(ticker)
	if !ok {
		return 0, fmt.Errorf("%w: no open price for %s on %s", domain.ErrMarketsClosed, ticker, next.Date)
	}

	return price, nil
}

// ExecuteBuy validates and applies a buy. Cash and holdings update
// immediately at the execution price; the closing snapshot of the current
// day still reflects the pre-trade checkpoint, so the position only shows
// up in valuations from the next day on.
func (e *Engine) ExecuteBuy(p *domain.Player, ticker string, shares int) (*domain.Trade, error) {
	price, err := e.ValidateBuy(p, ticker, shares)
	if err != nil {
		return nil, err
	}

	day, _ := e.Day(p.CurrentDay)
	total := float64(shares) * price

	p.Cash -= total
	holding := p.Holdings[ticker]
	holding.Shares += shares
	holding.TotalCost += total
	holding.AvgCost = holding.TotalCost / float64(holding.Shares)
	p.Holdings[ticker] = holding

	trade := domain.Trade{
		ID:             uuid.New().String(),
		DayIndex:       p.CurrentDay,
		Date:           day.Date,
		Ticker:         ticker,
		Type:           domain.TradeBuy,
		Shares:         shares,
		Price:          price,
		Total:          total,
		PortfolioValue: p.PortfolioValue(e.lastCloses(p.CurrentDay)),
	}
	p.Trades = append(p.Trades, trade)
	p.UpdatedAt = time.Now()

	return &trade, nil
}

// ExecuteSell validates and applies a sell. Average cost is unchanged; the
// remaining cost basis is avg_cost x remaining shares, and a position sold
// to zero is removed from the holdings map entirely.
func (e *Engine) ExecuteSell(p *domain.Player, ticker string, shares int) (*domain.Trade, error) {
	price, err := e.ValidateSell(p, ticker, shares)
	if err != nil {
		return nil, err
	}

	day, _ := e.Day(p.CurrentDay)
	total := float64(shares) * price

	p.Cash += total
	holding := p.Holdings[ticker]
	holding.Shares -= shares
	if holding.Shares == 0 {
		delete(p.Holdings, ticker)
	} else {
		holding.TotalCost = holding.AvgCost * float64(holding.Shares)
		p.Holdings[ticker] = holding
	}

	trade := domain.Trade{
		ID:             uuid.New().String(),
		DayIndex:       p.CurrentDay,
		Date:           day.Date,
		Ticker:         ticker,
		Type:           domain.TradeSell,
		Shares:         shares,
		Price:          price,
		Total:          total,
		PortfolioValue: p.PortfolioValue(e.lastCloses(p.CurrentDay)),
	}
	p.Trades = append(p.Trades, trade)
	p.UpdatedAt = time.Now()

	return &trade, nil
}

// AdvanceDay moves the player from day D to D+1:
//
//  1. Append the day-D snapshot valued at close(D) from the day-start
//     checkpoint (pre-trade holdings).
//  2. Step the AI shadow: day-D recommendations execute at open(D+1).
//  3. Increment current_day and roll the checkpoint forward.
//  4. Recompute the score.
//
// Advancing past the final day marks the player finished. Advancing a
// finished player is a no-op.
func (e *Engine) AdvanceDay(p *domain.Player) (*domain.PortfolioSnapshot, error) {
	if p.IsFinished || p.CurrentDay >= e.config.NumDays {
		return nil, nil
	}

	day, ok := e.Day(p.CurrentDay)
	if !ok {
		return nil, fmt.Errorf("%w: day %d outside session", domain.ErrInvalidRequest, p.CurrentDay)
	}

	closes := e.lastCloses(p.CurrentDay)
	snapshot := e.snapshotAt(p, day, closes)
	p.History = append(p.History, snapshot)

	// Shadow trades decided on day D execute at open(D+1), same as players.
	if next, ok := e.Day(p.CurrentDay + 1); ok {
		StepShadow(&p.Shadow, e.config.InitialCash, day.Recommendations, next, e.lastCloses(p.CurrentDay+1))
	}

	p.CurrentDay++
	p.DayStart = checkpoint(p)

	if p.CurrentDay >= e.config.NumDays {
		p.IsFinished = true
		now := time.Now()
		p.GameEndedAt = &now
	}

	e.Rescore(p)
	p.UpdatedAt = time.Now()

	return &snapshot, nil
}

// snapshotAt builds the day-D closing snapshot from the day-start
// checkpoint.
func (e *Engine) snapshotAt(p *domain.Player, day *domain.MarketDay, closes map[string]float64) domain.PortfolioSnapshot {
	holdingsValue := 0.0
	for ticker, h := range p.DayStart.Holdings {
		if close, ok := closes[ticker]; ok {
			holdingsValue += float64(h.Shares) * close
		}
	}

	total := p.DayStart.Cash + holdingsValue
	initial := e.config.InitialCash

	return domain.PortfolioSnapshot{
		DayIndex:      day.Index,
		Date:          day.Date,
		Cash:          p.DayStart.Cash,
		HoldingsValue: holdingsValue,
		TotalValue:    total,
		ReturnPct:     100 * (total - initial) / initial,
		ReturnUSD:     total - initial,
	}
}

// checkpoint deep-copies the player's live cash and holdings.
func checkpoint(p *domain.Player) domain.DayCheckpoint {
	holdings := make(map[string]domain.Holding, len(p.Holdings))
	for ticker, h := range p.Holdings {
		holdings[ticker] = h
	}
	return domain.DayCheckpoint{Cash: p.Cash, Holdings: holdings}
}

// lastCloses returns ticker -> most recent close on or before day index d.
// On weekends and data gaps this falls back to the last trading day, which
// is what "last known close" means everywhere in the scoring rules.
func (e *Engine) lastCloses(d int) map[string]float64 {
	closes := make(map[string]float64)
	if d >= len(e.window) {
		d = len(e.window) - 1
	}
	for i := 0; i <= d && i < len(e.window); i++ {
		if !e.window[i].IsTradingDay {
			continue
		}
		for ticker, p := range e.window[i].Prices {
			closes[ticker] = p.Close
		}
	}
	return closes
}

// LiveValue returns the player's current portfolio value at the last known
// closes for their current day.
func (e *Engine) LiveValue(p *domain.Player) float64 {
	return p.PortfolioValue(e.lastCloses(p.CurrentDay))
}

// LastCloses exposes the last-known-close map as of day index d.
func (e *Engine) LastCloses(d int) map[string]float64 {
	return e.lastCloses(d)
}

// ceilHalf returns ceil(n/2), used by the shadow's SELL rule.
func ceilHalf(n int) int {
	return int(math.Ceil(float64(n) / 2))
}
