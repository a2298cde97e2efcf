package players_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/modules/players"
	mtesting "github.com/aristath/marketclass/internal/testing"
)

func mediumConfig() domain.GameConfig {
	return domain.GameConfig{
		InitialCash: 100000,
		NumDays:     3,
		Tickers:     []string{"AAPL"},
		Difficulty:  domain.DifficultyMedium,
	}
}

// Three trading days: buy recommended on day 0, price runs 100 -> 110 -> 120.
func risingWindow() []domain.MarketDay {
	return mtesting.NewWindow().
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(95, 100)},
			mtesting.Rec("AAPL", domain.Buy)).
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(100, 110)},
			mtesting.Rec("AAPL", domain.Hold)).
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(110, 120)},
			mtesting.Rec("AAPL", domain.Hold)).
		Build()
}

func newTestPlayer(e *players.Engine) *domain.Player {
	return e.NewPlayer("p1", "r1", "Alice", "")
}

func TestSoloSessionBuyAndHold(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	// Buy 500 shares on day 0; executes at open(D1) = 100.
	trade, err := engine.ExecuteBuy(p, "AAPL", 500)
	require.NoError(t, err)
	assert.Equal(t, 100.0, trade.Price)
	assert.Equal(t, 50000.0, trade.Total)
	assert.Equal(t, 50000.0, p.Cash)
	assert.Equal(t, 500, p.Holdings["AAPL"].Shares)
	assert.Equal(t, 100.0, p.Holdings["AAPL"].AvgCost)

	for i := 0; i < 3; i++ {
		_, err := engine.AdvanceDay(p)
		require.NoError(t, err)
	}

	require.Len(t, p.History, 3)
	// Day 0 snapshot is pre-trade: all cash.
	assert.Equal(t, 100000.0, p.History[0].TotalValue)
	// Day 1: 50000 cash + 500 x 110.
	assert.Equal(t, 105000.0, p.History[1].TotalValue)
	// Day 2: 50000 cash + 500 x 120.
	assert.Equal(t, 110000.0, p.History[2].TotalValue)

	assert.True(t, p.IsFinished)
	assert.Equal(t, 3, p.CurrentDay)
	assert.InDelta(t, 10.0, p.History[2].ReturnPct, 1e-9)
	assert.Equal(t, "B", p.Grade)
	assert.Equal(t, 500.0, p.Breakdown.PortfolioReturnPoints)
	assert.Equal(t, 50.0, p.Breakdown.RiskDisciplinePoints)
	assert.GreaterOrEqual(t, p.Score, 550.0)
}

func TestBuyBlockedByRecommendation(t *testing.T) {
	window := mtesting.NewWindow().
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.Flat(100)},
			mtesting.Rec("AAPL", domain.Hold)).
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.Flat(100)}).
		Build()

	engine := players.NewEngine(window, mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteBuy(p, "AAPL", 10)
	assert.ErrorIs(t, err, domain.ErrRecommendationBlocked)

	// A ticker with no recommendation at all is blocked too.
	_, err = engine.ExecuteBuy(p, "MSFT", 10)
	assert.ErrorIs(t, err, domain.ErrRecommendationBlocked)
}

func TestBuyOnClosedDay(t *testing.T) {
	window := mtesting.NewWindow().
		ClosedDay().
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.Flat(100)},
			mtesting.Rec("AAPL", domain.Buy)).
		Build()

	engine := players.NewEngine(window, mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteBuy(p, "AAPL", 10)
	assert.ErrorIs(t, err, domain.ErrMarketsClosed)
	_, err = engine.ExecuteSell(p, "AAPL", 10)
	assert.ErrorIs(t, err, domain.ErrMarketsClosed)

	// Advancing past the closed day still works.
	snap, err := engine.AdvanceDay(p)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, snap.TotalValue)
	assert.Equal(t, 1, p.CurrentDay)
}

func TestBuyInsufficientCash(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	// 1001 shares at open(D1)=100 needs 100100.
	_, err := engine.ExecuteBuy(p, "AAPL", 1001)
	assert.ErrorIs(t, err, domain.ErrInsufficientCash)

	// Exactly all cash is fine.
	_, err = engine.ExecuteBuy(p, "AAPL", 1000)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, p.Cash, 1e-9)
}

func TestSellValidation(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteSell(p, "AAPL", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = engine.ExecuteBuy(p, "AAPL", 100)
	require.NoError(t, err)

	_, err = engine.ExecuteSell(p, "AAPL", 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteBuy(p, "AAPL", 100)
	require.NoError(t, err)
	_, err = engine.ExecuteSell(p, "AAPL", 100)
	require.NoError(t, err)

	// Same execution price both ways: cash restored, holding removed.
	assert.InDelta(t, 100000.0, p.Cash, 1e-9)
	assert.NotContains(t, p.Holdings, "AAPL")
	assert.Len(t, p.Trades, 2)
}

func TestPartialSellKeepsAvgCost(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteBuy(p, "AAPL", 100)
	require.NoError(t, err)
	_, err = engine.ExecuteSell(p, "AAPL", 40)
	require.NoError(t, err)

	h := p.Holdings["AAPL"]
	assert.Equal(t, 60, h.Shares)
	assert.Equal(t, 100.0, h.AvgCost)
	assert.InDelta(t, 6000.0, h.TotalCost, 1e-9)
}

func TestWeightedAverageCost(t *testing.T) {
	window := mtesting.NewWindow().
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(100, 100)},
			mtesting.Rec("AAPL", domain.Buy)).
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(100, 100)},
			mtesting.Rec("AAPL", domain.Buy)).
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.OpenClose(200, 200)}).
		Build()

	cfg := mediumConfig()
	engine := players.NewEngine(window, cfg)
	p := newTestPlayer(engine)

	// 100 shares at open(D1)=100, then after advancing, 100 at open(D2)=200.
	_, err := engine.ExecuteBuy(p, "AAPL", 100)
	require.NoError(t, err)
	_, err = engine.AdvanceDay(p)
	require.NoError(t, err)
	_, err = engine.ExecuteBuy(p, "AAPL", 100)
	require.NoError(t, err)

	h := p.Holdings["AAPL"]
	assert.Equal(t, 200, h.Shares)
	assert.Equal(t, 150.0, h.AvgCost)
	assert.Equal(t, 30000.0, h.TotalCost)
}

func TestHistoryLengthTracksCurrentDay(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	for i := 1; i <= 3; i++ {
		_, err := engine.AdvanceDay(p)
		require.NoError(t, err)
		assert.Equal(t, i, p.CurrentDay)
		assert.Len(t, p.History, i)
	}

	// Advancing a finished player is a no-op.
	snap, err := engine.AdvanceDay(p)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 3, p.CurrentDay)
	assert.Len(t, p.History, 3)
}

func TestSameDayBuySnapshotUsesPreTradeState(t *testing.T) {
	engine := players.NewEngine(risingWindow(), mediumConfig())
	p := newTestPlayer(engine)

	_, err := engine.ExecuteBuy(p, "AAPL", 500)
	require.NoError(t, err)

	snap, err := engine.AdvanceDay(p)
	require.NoError(t, err)

	// The day-0 snapshot ignores the same-day buy entirely.
	assert.Equal(t, 100000.0, snap.Cash)
	assert.Equal(t, 0.0, snap.HoldingsValue)
	assert.Equal(t, 100000.0, snap.TotalValue)

	// The live position exists from day 1 on.
	assert.Equal(t, 500, p.Holdings["AAPL"].Shares)
}

func TestSessionOfLengthOne(t *testing.T) {
	cfg := mediumConfig()
	cfg.NumDays = 1
	window := mtesting.NewWindow().
		TradingDay(map[string]domain.TickerPrices{"AAPL": mtesting.Flat(100)}).
		Build()

	engine := players.NewEngine(window, cfg)
	p := newTestPlayer(engine)

	_, err := engine.AdvanceDay(p)
	require.NoError(t, err)
	assert.True(t, p.IsFinished)
	assert.Equal(t, 1, p.CurrentDay)
	require.NotNil(t, p.GameEndedAt)
}
