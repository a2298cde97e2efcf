// Package domain contains the pure domain model for the classroom trading
// simulator: rooms, players, market days, trades, and scoring. It has no
// infrastructure dependencies so the simulation rules can be tested in
// isolation and reused by both the HTTP layer and the background drivers.
package domain

import "time"

// RoomStatus is the lifecycle state of a classroom session.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomFinished   RoomStatus = "finished"
)

// GameMode determines who advances the day.
type GameMode string

const (
	// ModeAsync lets every student advance their own day independently.
	ModeAsync GameMode = "async"
	// ModeSync advances only when the teacher issues advance-day.
	ModeSync GameMode = "sync"
	// ModeSyncAuto advances when the per-day timer expires (or the teacher
	// advances early).
	ModeSyncAuto GameMode = "sync_auto"
)

// Valid reports whether the mode is one of the three recognized game modes.
func (m GameMode) Valid() bool {
	return m == ModeAsync || m == ModeSync || m == ModeSyncAuto
}

// Synchronized reports whether the room day is authoritative for players.
func (m GameMode) Synchronized() bool {
	return m == ModeSync || m == ModeSyncAuto
}

// Difficulty selects the grade thresholds applied to a player's raw return.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether the difficulty is recognized.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Recommendation is the per-day AI label for a ticker. It is both the buy
// gate for players and the trading policy input for the AI shadow.
type Recommendation string

const (
	StrongBuy  Recommendation = "STRONG_BUY"
	Buy        Recommendation = "BUY"
	Hold       Recommendation = "HOLD"
	Sell       Recommendation = "SELL"
	StrongSell Recommendation = "STRONG_SELL"
)

// AllowsBuy reports whether a player may open or add to a position under
// this recommendation. This is the risk-discipline gate: a hard rule, not a
// warning.
func (r Recommendation) AllowsBuy() bool {
	return r == Buy || r == StrongBuy
}

// TradeType is the side of a player trade.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// GameConfig is the validated room configuration envelope.
type GameConfig struct {
	InitialCash        float64    `json:"initial_cash" msgpack:"initial_cash"`
	NumDays            int        `json:"num_days" msgpack:"num_days"`
	Tickers            []string   `json:"tickers" msgpack:"tickers"`
	Difficulty         Difficulty `json:"difficulty" msgpack:"difficulty"`
	DayDurationSeconds int        `json:"day_duration_seconds,omitempty" msgpack:"day_duration_seconds"`
}

// AIBenchmark is the room-level snapshot of the shadow portfolio shown to
// the class. In sync modes every player's shadow is identical (same start
// cash, same recommendation stream), so one snapshot represents all of them.
type AIBenchmark struct {
	PortfolioValue float64 `json:"portfolio_value"`
	ReturnPct      float64 `json:"return_pct"`
	Day            int     `json:"day"`
}

// Room is a single classroom session identified by a 6-character code.
type Room struct {
	ID            string      `json:"id"`
	Code          string      `json:"room_code"`
	Name          string      `json:"room_name,omitempty"`
	CreatedBy     string      `json:"created_by"`
	Config        GameConfig  `json:"config"`
	StartDate     string      `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate       string      `json:"end_date,omitempty"`   // YYYY-MM-DD
	Status        RoomStatus  `json:"status"`
	GameMode      GameMode    `json:"game_mode"`
	CurrentDay    int         `json:"current_day"`
	DayStartedAt  *time.Time  `json:"day_started_at,omitempty"`
	DayTimeLimit  *int        `json:"day_time_limit,omitempty"` // seconds
	AIBenchmark   AIBenchmark `json:"ai_benchmark"`
	CreatedAt     time.Time   `json:"created_at"`
	GameStartedAt *time.Time  `json:"game_started_at,omitempty"`
	GameEndedAt   *time.Time  `json:"game_ended_at,omitempty"`
}

// DayDeadline returns the instant the current day expires, or false when the
// room carries no timer or has not started a day. Deadlines are always
// recomputed from the persisted day_started_at so a process restart resumes
// correctly.
func (r *Room) DayDeadline() (time.Time, bool) {
	if r.DayStartedAt == nil || r.DayTimeLimit == nil || *r.DayTimeLimit <= 0 {
		return time.Time{}, false
	}
	return r.DayStartedAt.Add(time.Duration(*r.DayTimeLimit) * time.Second), true
}

// Holding is an open position within a player portfolio. Positions with zero
// shares are removed from the holdings map entirely.
type Holding struct {
	Shares    int     `json:"shares" msgpack:"shares"`
	AvgCost   float64 `json:"avg_cost" msgpack:"avg_cost"`
	TotalCost float64 `json:"total_cost" msgpack:"total_cost"`
}

// Trade is an append-only record of one executed order. A trade recorded on
// day D executes at the open price of day D+1.
type Trade struct {
	ID             string    `json:"id" msgpack:"id"`
	DayIndex       int       `json:"day_index" msgpack:"day_index"`
	Date           string    `json:"date" msgpack:"date"`
	Ticker         string    `json:"ticker" msgpack:"ticker"`
	Type           TradeType `json:"type" msgpack:"type"`
	Shares         int       `json:"shares" msgpack:"shares"`
	Price          float64   `json:"price" msgpack:"price"`
	Total          float64   `json:"total" msgpack:"total"`
	PortfolioValue float64   `json:"portfolio_value" msgpack:"portfolio_value"`
}

// PortfolioSnapshot is the end-of-day record appended exactly once per
// completed day.
type PortfolioSnapshot struct {
	DayIndex      int     `json:"day_index" msgpack:"day_index"`
	Date          string  `json:"date" msgpack:"date"`
	Cash          float64 `json:"cash" msgpack:"cash"`
	HoldingsValue float64 `json:"holdings_value" msgpack:"holdings_value"`
	TotalValue    float64 `json:"total_value" msgpack:"total_value"`
	ReturnPct     float64 `json:"return_pct" msgpack:"return_pct"`
	ReturnUSD     float64 `json:"return_usd" msgpack:"return_usd"`
}

// ScoreBreakdown is the four-component decomposition of a player's score,
// recomputed on every day advance.
type ScoreBreakdown struct {
	PortfolioReturnPoints float64 `json:"portfolio_return_points" msgpack:"portfolio_return_points"`
	RiskDisciplinePoints  float64 `json:"risk_discipline_points" msgpack:"risk_discipline_points"`
	BeatAIPoints          float64 `json:"beat_ai_points" msgpack:"beat_ai_points"`
	DrawdownPenaltyPoints float64 `json:"drawdown_penalty_points" msgpack:"drawdown_penalty_points"`
	Total                 float64 `json:"total" msgpack:"total"`
	Grade                 string  `json:"grade" msgpack:"grade"`

	// Diagnostics surfaced alongside the breakdown (not part of the sum).
	MaxDrawdownPct float64 `json:"max_drawdown_pct" msgpack:"max_drawdown_pct"`
	VolatilityPct  float64 `json:"volatility_pct" msgpack:"volatility_pct"`
}

// ShadowState is the per-player AI benchmark portfolio. It advances over the
// same recommendation stream and price series as the player; divergence is
// purely a function of trading policy.
type ShadowState struct {
	Cash           float64        `json:"cash" msgpack:"cash"`
	Holdings       map[string]int `json:"holdings" msgpack:"holdings"` // ticker -> shares
	Day            int            `json:"day" msgpack:"day"`
	PortfolioValue float64        `json:"portfolio_value" msgpack:"portfolio_value"`
	ReturnPct      float64        `json:"return_pct" msgpack:"return_pct"`
}

// DayCheckpoint captures cash and holdings as they stood when the player
// entered the current day. The end-of-day snapshot is taken from this
// checkpoint, so trades recorded during the day (which execute at the next
// day's open) never leak into the closing snapshot of the day they were
// placed on.
type DayCheckpoint struct {
	Cash     float64            `json:"-" msgpack:"cash"`
	Holdings map[string]Holding `json:"-" msgpack:"holdings"`
}

// Player is a participant in exactly one room.
type Player struct {
	ID          string              `json:"id"`
	RoomID      string              `json:"room_id"`
	Name        string              `json:"player_name"`
	Email       string              `json:"player_email,omitempty"`
	CurrentDay  int                 `json:"current_day"`
	Cash        float64             `json:"cash"`
	Holdings    map[string]Holding  `json:"holdings"`
	Trades      []Trade             `json:"trades"`
	History     []PortfolioSnapshot `json:"portfolio_history"`
	Score       float64             `json:"score"`
	Grade       string              `json:"grade"`
	Breakdown   ScoreBreakdown      `json:"score_breakdown"`
	IsReady     bool                `json:"is_ready"`
	LastSyncDay int                 `json:"last_sync_day"`
	IsFinished  bool                `json:"is_finished"`
	Shadow      ShadowState         `json:"ai_shadow"`
	DayStart    DayCheckpoint       `json:"-"`
	JoinedAt    time.Time           `json:"joined_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	GameEndedAt *time.Time          `json:"game_ended_at,omitempty"`
}

// PortfolioValue returns cash plus holdings valued at the given per-ticker
// prices. Tickers missing from the price map contribute nothing.
func (p *Player) PortfolioValue(closes map[string]float64) float64 {
	value := p.Cash
	for ticker, h := range p.Holdings {
		if close, ok := closes[ticker]; ok {
			value += float64(h.Shares) * close
		}
	}
	return value
}

// TickerPrices is one ticker's OHLCV row for a trading day.
type TickerPrices struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// IndicatorSet is the subset of technical indicators attached to a ticker on
// a trading day, computed from the close history available as of that date.
type IndicatorSet struct {
	RSI14      *float64 `json:"rsi_14,omitempty"`
	SMA20      *float64 `json:"sma_20,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
}

// RecommendationRow is one AI recommendation for a (ticker, date) pair.
type RecommendationRow struct {
	Ticker          string         `json:"ticker"`
	Recommendation  Recommendation `json:"recommendation"`
	Confidence      float64        `json:"confidence"`
	TechnicalSignal string         `json:"technical_signal"`
	SentimentSignal string         `json:"sentiment_signal"`
	RiskLevel       string         `json:"risk_level"`
	Rationale       string         `json:"rationale"`
}

// NewsArticle is one news item attached to a ticker on or before a date.
type NewsArticle struct {
	Ticker      string    `json:"ticker"`
	Headline    string    `json:"headline"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// MarketDay is one calendar date within a session window. Non-trading days
// (weekends, missing data) are included as placeholders so day indices map
// 1:1 to calendar dates.
type MarketDay struct {
	Index           int                     `json:"day_index"`
	Date            string                  `json:"date"` // YYYY-MM-DD
	IsTradingDay    bool                    `json:"is_trading_day"`
	Prices          map[string]TickerPrices `json:"prices"`
	Indicators      map[string]IndicatorSet `json:"indicators,omitempty"`
	Recommendations []RecommendationRow     `json:"recommendations"`
	News            []NewsArticle           `json:"news,omitempty"`
}

// OpenPrice returns the open price for a ticker, and whether one exists.
func (d *MarketDay) OpenPrice(ticker string) (float64, bool) {
	if !d.IsTradingDay {
		return 0, false
	}
	p, ok := d.Prices[ticker]
	return p.Open, ok
}

// ClosePrice returns the close price for a ticker, and whether one exists.
func (d *MarketDay) ClosePrice(ticker string) (float64, bool) {
	if !d.IsTradingDay {
		return 0, false
	}
	p, ok := d.Prices[ticker]
	return p.Close, ok
}

// Closes returns the full ticker -> close map for the day.
func (d *MarketDay) Closes() map[string]float64 {
	closes := make(map[string]float64, len(d.Prices))
	if !d.IsTradingDay {
		return closes
	}
	for ticker, p := range d.Prices {
		closes[ticker] = p.Close
	}
	return closes
}

// RecommendationFor returns the recommendation row for a ticker on this day.
func (d *MarketDay) RecommendationFor(ticker string) (RecommendationRow, bool) {
	for _, rec := range d.Recommendations {
		if rec.Ticker == ticker {
			return rec, true
		}
	}
	return RecommendationRow{}, false
}

// LeaderboardEntry is one ranked row on the room leaderboard.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"player_id"`
	PlayerName     string  `json:"player_name"`
	Score          float64 `json:"score"`
	Grade          string  `json:"grade"`
	PortfolioValue float64 `json:"portfolio_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CurrentDay     int     `json:"current_day"`
	IsFinished     bool    `json:"is_finished"`
	VolatilityPct  float64 `json:"volatility_pct"`
}

// RoomState is the high-frequency poll snapshot students read to detect day
// advances.
type RoomState struct {
	RoomCode          string     `json:"room_code"`
	Status            RoomStatus `json:"status"`
	GameMode          GameMode   `json:"game_mode"`
	CurrentDay        int        `json:"current_day"`
	DayStartedAt      *time.Time `json:"day_started_at,omitempty"`
	DayTimeLimit      *int       `json:"day_time_limit,omitempty"`
	TimeRemaining     *int       `json:"time_remaining,omitempty"`
	WaitingForTeacher bool       `json:"waiting_for_teacher"`
	ReadyCount        int        `json:"ready_count"`
	TotalPlayers      int        `json:"total_players"`
}

// RoomSummary is the list-view projection of a room.
type RoomSummary struct {
	ID          string     `json:"id"`
	Code        string     `json:"room_code"`
	Name        string     `json:"room_name,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Status      RoomStatus `json:"status"`
	GameMode    GameMode   `json:"game_mode"`
	CurrentDay  int        `json:"current_day"`
	NumDays     int        `json:"num_days"`
	PlayerCount int        `json:"player_count"`
	CreatedAt   time.Time  `json:"created_at"`
}
