package marketdata_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/modules/marketdata"
	mtesting "github.com/aristath/marketclass/internal/testing"
)

func newTestMarket(t *testing.T) (*marketdata.Service, *sql.DB) {
	t.Helper()
	db, cleanup := mtesting.NewTestDB(t, "market")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	return marketdata.NewService(marketdata.NewRepository(db.Conn(), log), log), db.Conn()
}

func TestSessionWindowIncludesWeekendPlaceholders(t *testing.T) {
	svc, db := newTestMarket(t)

	// Friday and Monday trade; Saturday and Sunday do not.
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-05", mtesting.Flat(100))
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-08", mtesting.Flat(105))

	window, err := svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "2024-01-05", "2024-01-08", 2)
	require.NoError(t, err)
	require.Len(t, window, 4)

	for i, day := range window {
		assert.Equal(t, i, day.Index)
		require.NotNil(t, day.Prices)
	}

	assert.True(t, window[0].IsTradingDay)
	assert.Equal(t, "2024-01-06", window[1].Date)
	assert.False(t, window[1].IsTradingDay)
	assert.Empty(t, window[1].Prices)
	assert.False(t, window[2].IsTradingDay)
	assert.True(t, window[3].IsTradingDay)

	open, ok := window[3].OpenPrice("AAPL")
	require.True(t, ok)
	assert.Equal(t, 105.0, open)
	_, ok = window[1].OpenPrice("AAPL")
	assert.False(t, ok)
}

func TestSessionWindowRequiresAllTickers(t *testing.T) {
	svc, db := newTestMarket(t)

	// MSFT is missing on the second day, so that weekday is not tradable.
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-01", mtesting.Flat(100))
	mtesting.SeedPrice(t, db, "MSFT", "2024-01-01", mtesting.Flat(300))
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-02", mtesting.Flat(101))

	window, err := svc.GetSessionWindow(context.Background(), []string{"AAPL", "MSFT"}, "2024-01-01", "2024-01-02", 1)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.True(t, window[0].IsTradingDay)
	assert.False(t, window[1].IsTradingDay)
}

func TestSessionWindowInsufficientData(t *testing.T) {
	svc, db := newTestMarket(t)
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-01", mtesting.Flat(100))

	_, err := svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "2024-01-01", "2024-01-03", 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "2024-01-03", "2024-01-01", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "bogus", "2024-01-03", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRecommendationsOrderedByTicker(t *testing.T) {
	svc, db := newTestMarket(t)

	mtesting.SeedPrice(t, db, "AAA", "2024-01-01", mtesting.Flat(10))
	mtesting.SeedPrice(t, db, "BBB", "2024-01-01", mtesting.Flat(20))
	// Insert in reverse order; the read side must sort lexicographically.
	mtesting.SeedRecommendation(t, db, "BBB", "2024-01-01", domain.Sell)
	mtesting.SeedRecommendation(t, db, "AAA", "2024-01-01", domain.Buy)

	window, err := svc.GetSessionWindow(context.Background(), []string{"AAA", "BBB"}, "2024-01-01", "2024-01-01", 1)
	require.NoError(t, err)
	require.Len(t, window, 1)

	recs := window[0].Recommendations
	require.Len(t, recs, 2)
	assert.Equal(t, "AAA", recs[0].Ticker)
	assert.Equal(t, domain.Buy, recs[0].Recommendation)
	assert.Equal(t, "BBB", recs[1].Ticker)
}

func TestNewsAttachedToCalendarDate(t *testing.T) {
	svc, db := newTestMarket(t)
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-01", mtesting.Flat(100))

	published := time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC).Unix()
	mtesting.SeedNews(t, db, "AAPL", "Earnings beat expectations", published)
	// Outside the window: next calendar day.
	mtesting.SeedNews(t, db, "AAPL", "Follow-up analysis", published+86400)

	window, err := svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "2024-01-01", "2024-01-01", 1)
	require.NoError(t, err)
	require.Len(t, window[0].News, 1)
	assert.Equal(t, "Earnings beat expectations", window[0].News[0].Headline)
	assert.Equal(t, "AAPL", window[0].News[0].Ticker)
}

func TestIndicatorsNilWithShortHistory(t *testing.T) {
	svc, db := newTestMarket(t)
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-01", mtesting.Flat(100))

	window, err := svc.GetSessionWindow(context.Background(), []string{"AAPL"}, "2024-01-01", "2024-01-01", 1)
	require.NoError(t, err)

	set, ok := window[0].Indicators["AAPL"]
	require.True(t, ok)
	assert.Nil(t, set.RSI14)
	assert.Nil(t, set.SMA20)
	assert.Nil(t, set.MACD)
}

func TestWeekdayCount(t *testing.T) {
	// Mon 2024-01-01 through Sun 2024-01-07.
	n, err := marketdata.WeekdayCount("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = marketdata.WeekdayCount("2024-01-06", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = marketdata.WeekdayCount("bogus", "2024-01-07")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestLatestDate(t *testing.T) {
	svc, db := newTestMarket(t)

	latest, err := svc.LatestDate()
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	mtesting.SeedPrice(t, db, "AAPL", "2024-01-01", mtesting.Flat(100))
	mtesting.SeedPrice(t, db, "AAPL", "2024-01-03", mtesting.Flat(102))

	latest, err = svc.LatestDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", latest)
}
