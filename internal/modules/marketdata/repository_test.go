package marketdata_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/modules/marketdata"
)

// The repository speaks plain database/sql, so it runs unchanged against the
// cgo sqlite driver the offline pipelines use to produce market.db.
func newMattnRepo(t *testing.T) (*marketdata.Repository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE prices (
			symbol  TEXT NOT NULL,
			date    TEXT NOT NULL,
			open    REAL NOT NULL,
			high    REAL NOT NULL,
			low     REAL NOT NULL,
			close   REAL NOT NULL,
			volume  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		);
		CREATE TABLE recommendations (
			symbol           TEXT NOT NULL,
			date             TEXT NOT NULL,
			recommendation   TEXT NOT NULL,
			confidence       REAL NOT NULL DEFAULT 0,
			technical_signal TEXT,
			sentiment_signal TEXT,
			risk_level       TEXT,
			rationale        TEXT,
			PRIMARY KEY (symbol, date)
		);
		CREATE TABLE news (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT NOT NULL,
			headline     TEXT NOT NULL,
			source       TEXT,
			url          TEXT,
			published_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	return marketdata.NewRepository(db, zerolog.Nop()), db
}

func TestPricesInRangeGroupsByDate(t *testing.T) {
	repo, db := newMattnRepo(t)

	for _, row := range []struct {
		symbol, date string
		close        float64
	}{
		{"AAPL", "2024-01-01", 100},
		{"AAPL", "2024-01-02", 101},
		{"MSFT", "2024-01-01", 300},
		{"MSFT", "2024-01-05", 310},
		{"IGNORED", "2024-01-01", 1},
	} {
		_, err := db.Exec(`INSERT INTO prices (symbol, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, 1000)`,
			row.symbol, row.date, row.close, row.close, row.close, row.close)
		require.NoError(t, err)
	}

	prices, err := repo.PricesInRange([]string{"AAPL", "MSFT"}, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Len(t, prices["2024-01-01"], 2)
	assert.Len(t, prices["2024-01-02"], 1)
	assert.Equal(t, 300.0, prices["2024-01-01"]["MSFT"].Close)
	assert.NotContains(t, prices["2024-01-01"], "IGNORED")

	empty, err := repo.PricesInRange(nil, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCloseSeriesAscendingWithLimit(t *testing.T) {
	repo, db := newMattnRepo(t)

	for i, close := range []float64{100, 101, 102, 103, 104} {
		date := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		_, err := db.Exec(`INSERT INTO prices (symbol, date, open, high, low, close, volume) VALUES ('AAPL', ?, ?, ?, ?, ?, 1000)`,
			date, close, close, close, close)
		require.NoError(t, err)
	}

	// Limit keeps the newest rows; output is oldest-first.
	series, err := repo.CloseSeries("AAPL", "2024-01-05", 3)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "2024-01-03", series[0].Date)
	assert.Equal(t, 102.0, series[0].Close)
	assert.Equal(t, "2024-01-05", series[2].Date)

	// The as-of date caps the tail.
	series, err = repo.CloseSeries("AAPL", "2024-01-02", 10)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 101.0, series[1].Close)
}

func TestRecommendationsInRangeCoalescesNulls(t *testing.T) {
	repo, db := newMattnRepo(t)

	_, err := db.Exec(`
		INSERT INTO recommendations (symbol, date, recommendation, confidence)
		VALUES ('AAPL', '2024-01-01', 'STRONG_BUY', 0.9)
	`)
	require.NoError(t, err)

	recs, err := repo.RecommendationsInRange([]string{"AAPL"}, "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, recs["2024-01-01"], 1)

	rec := recs["2024-01-01"][0]
	assert.Equal(t, "AAPL", rec.Ticker)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Equal(t, "", rec.Rationale)
	assert.Equal(t, "", rec.RiskLevel)
}

func TestNewsInRangeBucketsByDate(t *testing.T) {
	repo, db := newMattnRepo(t)

	day1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC).Unix()
	after := time.Date(2024, 1, 3, 0, 1, 0, 0, time.UTC).Unix()
	for _, n := range []struct {
		headline    string
		publishedAt int64
	}{
		{"first", day1},
		{"second", day2},
		{"too late", after},
	} {
		_, err := db.Exec(`INSERT INTO news (symbol, headline, published_at) VALUES ('AAPL', ?, ?)`, n.headline, n.publishedAt)
		require.NoError(t, err)
	}

	news, err := repo.NewsInRange([]string{"AAPL"}, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "first", news["2024-01-01"][0].Headline)
	assert.Equal(t, "second", news["2024-01-02"][0].Headline)
}

func TestLatestPriceDate(t *testing.T) {
	repo, db := newMattnRepo(t)

	latest, err := repo.LatestPriceDate()
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	_, err = db.Exec(`INSERT INTO prices (symbol, date, open, high, low, close, volume) VALUES ('AAPL', '2024-02-09', 1, 1, 1, 1, 0)`)
	require.NoError(t, err)

	latest, err = repo.LatestPriceDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-02-09", latest)
}
