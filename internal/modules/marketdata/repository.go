// Package marketdata is the read-through layer over the append-only market
// store populated by the offline ingestion and agent pipelines. It joins
// prices, recommendations, indicators, and news into per-day records the
// session coordinator consumes.
package marketdata

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/domain"
)

// Repository reads the market.db tables. The coordinator never writes here.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a market data repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

// placeholders returns a "?, ?, ..." fragment for n bind parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// PricesInRange returns date -> ticker -> OHLCV for the inclusive window.
func (r *Repository) PricesInRange(tickers []string, startDate, endDate string) (map[string]map[string]domain.TickerPrices, error) {
	if len(tickers) == 0 {
		return map[string]map[string]domain.TickerPrices{}, nil
	}

	query := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, volume
		FROM prices
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY date, symbol
	`, placeholders(len(tickers)))

	args := make([]interface{}, 0, len(tickers)+2)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, startDate, endDate)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[string]domain.TickerPrices)
	for rows.Next() {
		var symbol, date string
		var p domain.TickerPrices
		if err := rows.Scan(&symbol, &date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if result[date] == nil {
			result[date] = make(map[string]domain.TickerPrices)
		}
		result[date][symbol] = p
	}
	return result, rows.Err()
}

// CloseSeries returns the dated close history for one ticker up to and
// including endDate, ascending, capped at limit rows. The indicator
// computation slices this as-of each session day.
func (r *Repository) CloseSeries(ticker, endDate string, limit int) ([]DatedClose, error) {
	rows, err := r.db.Query(`
		SELECT date, close FROM prices
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC
		LIMIT ?
	`, ticker, endDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query close series for %s: %w", ticker, err)
	}
	defer rows.Close()

	var series []DatedClose
	for rows.Next() {
		var dc DatedClose
		if err := rows.Scan(&dc.Date, &dc.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close row: %w", err)
		}
		series = append(series, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}
	return series, nil
}

// DatedClose is one (date, close) observation.
type DatedClose struct {
	Date  string
	Close float64
}

// RecommendationsInRange returns date -> recommendation rows, ordered
// lexicographically by ticker within each date. The ordering is part of the
// contract: the AI shadow consumes recommendations left-to-right and must be
// deterministic across server and client replays.
func (r *Repository) RecommendationsInRange(tickers []string, startDate, endDate string) (map[string][]domain.RecommendationRow, error) {
	if len(tickers) == 0 {
		return map[string][]domain.RecommendationRow{}, nil
	}

	query := fmt.Sprintf(`
		SELECT symbol, date, recommendation, confidence,
		       COALESCE(technical_signal, ''), COALESCE(sentiment_signal, ''),
		       COALESCE(risk_level, ''), COALESCE(rationale, '')
		FROM recommendations
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY date, symbol
	`, placeholders(len(tickers)))

	args := make([]interface{}, 0, len(tickers)+2)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, startDate, endDate)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.RecommendationRow)
	for rows.Next() {
		var date string
		var rec domain.RecommendationRow
		var recStr string
		if err := rows.Scan(&rec.Ticker, &date, &recStr, &rec.Confidence,
			&rec.TechnicalSignal, &rec.SentimentSignal, &rec.RiskLevel, &rec.Rationale); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		rec.Recommendation = domain.Recommendation(recStr)
		result[date] = append(result[date], rec)
	}
	return result, rows.Err()
}

// NewsInRange returns date -> articles published on that calendar date for
// the configured tickers.
func (r *Repository) NewsInRange(tickers []string, startDate, endDate string) (map[string][]domain.NewsArticle, error) {
	if len(tickers) == 0 {
		return map[string][]domain.NewsArticle{}, nil
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	endOfWindow := end.AddDate(0, 0, 1)

	query := fmt.Sprintf(`
		SELECT symbol, headline, COALESCE(source, ''), COALESCE(url, ''), published_at
		FROM news
		WHERE symbol IN (%s) AND published_at >= ? AND published_at < ?
		ORDER BY published_at, symbol
	`, placeholders(len(tickers)))

	args := make([]interface{}, 0, len(tickers)+2)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, start.Unix(), endOfWindow.Unix())

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.NewsArticle)
	for rows.Next() {
		var article domain.NewsArticle
		var publishedAt int64
		if err := rows.Scan(&article.Ticker, &article.Headline, &article.Source, &article.URL, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan news row: %w", err)
		}
		article.PublishedAt = time.Unix(publishedAt, 0).UTC()
		date := article.PublishedAt.Format("2006-01-02")
		result[date] = append(result[date], article)
	}
	return result, rows.Err()
}

// LatestPriceDate returns the most recent date with any price row, or empty
// when the store holds no data. The registry uses it to anchor sessions that
// do not specify an explicit window.
func (r *Repository) LatestPriceDate() (string, error) {
	var date sql.NullString
	err := r.db.QueryRow("SELECT MAX(date) FROM prices").Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest price date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}
