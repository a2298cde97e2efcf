package testing

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/aristath/marketclass/internal/domain"
)

// WindowBuilder assembles an in-memory session window day by day. Tests use
// it to express price and recommendation scenarios without a database.
type WindowBuilder struct {
	days []domain.MarketDay
}

// NewWindow starts an empty window.
func NewWindow() *WindowBuilder {
	return &WindowBuilder{}
}

// TradingDay appends a trading day with the given per-ticker prices and
// recommendations. Dates are synthetic but unique.
func (b *WindowBuilder) TradingDay(prices map[string]domain.TickerPrices, recs ...domain.RecommendationRow) *WindowBuilder {
	b.days = append(b.days, domain.MarketDay{
		Index:           len(b.days),
		Date:            syntheticDate(len(b.days)),
		IsTradingDay:    true,
		Prices:          prices,
		Recommendations: recs,
	})
	return b
}

// ClosedDay appends a non-trading placeholder (weekend or data gap).
func (b *WindowBuilder) ClosedDay() *WindowBuilder {
	b.days = append(b.days, domain.MarketDay{
		Index:  len(b.days),
		Date:   syntheticDate(len(b.days)),
		Prices: map[string]domain.TickerPrices{},
	})
	return b
}

// Build returns the assembled window.
func (b *WindowBuilder) Build() []domain.MarketDay {
	return b.days
}

// syntheticDate maps a day index onto a fixed January so windows sort and
// compare predictably.
func syntheticDate(index int) string {
	return fmt.Sprintf("2024-01-%02d", index+1)
}

// Flat returns OHLCV with every field at the same price, volume 1000.
func Flat(price float64) domain.TickerPrices {
	return domain.TickerPrices{Open: price, High: price, Low: price, Close: price, Volume: 1000}
}

// OpenClose returns OHLCV with distinct open and close prices.
func OpenClose(open, close float64) domain.TickerPrices {
	high, low := open, close
	if close > open {
		high = close
		low = open
	}
	return domain.TickerPrices{Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

// Rec returns a recommendation row with full confidence.
func Rec(ticker string, rec domain.Recommendation) domain.RecommendationRow {
	return domain.RecommendationRow{Ticker: ticker, Recommendation: rec, Confidence: 1.0}
}

// SeedPrice inserts one OHLCV row into a market database.
func SeedPrice(t *testing.T, db *sql.DB, symbol, date string, p domain.TickerPrices) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, symbol, date, p.Open, p.High, p.Low, p.Close, p.Volume)
	if err != nil {
		t.Fatalf("Failed to seed price %s/%s: %v", symbol, date, err)
	}
}

// SeedNews inserts one news article into a market database.
func SeedNews(t *testing.T, db *sql.DB, symbol, headline string, publishedAt int64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO news (symbol, headline, source, url, published_at)
		VALUES (?, ?, 'fixture', '', ?)
	`, symbol, headline, publishedAt)
	if err != nil {
		t.Fatalf("Failed to seed news for %s: %v", symbol, err)
	}
}

// SeedRecommendation inserts one recommendation row into a market database.
func SeedRecommendation(t *testing.T, db *sql.DB, symbol, date string, rec domain.Recommendation) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO recommendations (symbol, date, recommendation, confidence, technical_signal, sentiment_signal, risk_level, rationale)
		VALUES (?, ?, ?, 1.0, 'NEUTRAL', 'NEUTRAL', 'LOW', 'fixture')
	`, symbol, date, string(rec))
	if err != nil {
		t.Fatalf("Failed to seed recommendation %s/%s: %v", symbol, date, err)
	}
}
