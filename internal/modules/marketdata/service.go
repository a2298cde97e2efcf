package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/pkg/formulas"
)

// indicatorHistory is how many extra close observations are pulled before
// the window start so RSI(14), SMA(20), and MACD(12,26,9) have warm-up data
// on the first session day.
const indicatorHistory = 60

// Service assembles per-day MarketDay records for a session window.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a market data service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "marketdata").Logger(),
	}
}

// GetSessionWindow returns one MarketDay per calendar date in the inclusive
// [startDate, endDate] window. A date is a trading day iff it is a weekday
// and every configured ticker has an OHLC row; weekends and missing-data
// days are included as non-trading placeholders so day indices map 1:1 to
// calendar dates.
//
// When the window contains fewer than wantTradingDays trading days, the call
// fails with domain.ErrInsufficientData carrying the found count.
func (s *Service) GetSessionWindow(ctx context.Context, tickers []string, startDate, endDate string, wantTradingDays int) ([]domain.MarketDay, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date %q", domain.ErrInvalidRequest, startDate)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end date %q", domain.ErrInvalidRequest, endDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", domain.ErrInvalidRequest)
	}

	// The three market tables are independent; read them concurrently.
	var (
		prices map[string]map[string]domain.TickerPrices
		recs   map[string][]domain.RecommendationRow
		news   map[string][]domain.NewsArticle
		series = make(map[string][]DatedClose, len(tickers))
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prices, err = s.repo.PricesInRange(tickers, startDate, endDate)
		return err
	})
	g.Go(func() error {
		var err error
		recs, err = s.repo.RecommendationsInRange(tickers, startDate, endDate)
		return err
	})
	g.Go(func() error {
		var err error
		news, err = s.repo.NewsInRange(tickers, startDate, endDate)
		return err
	})
	g.Go(func() error {
		windowDays := int(end.Sub(start).Hours()/24) + 1
		for _, ticker := range tickers {
			closeSeries, err := s.repo.CloseSeries(ticker, endDate, windowDays+indicatorHistory)
			if err != nil {
				return err
			}
			series[ticker] = closeSeries
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read market window: %w", err)
	}

	days := make([]domain.MarketDay, 0, int(end.Sub(start).Hours()/24)+1)
	tradingDays := 0

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		dateStr := date.Format("2006-01-02")
		day := domain.MarketDay{
			Index:           len(days),
			Date:            dateStr,
			Prices:          map[string]domain.TickerPrices{},
			Recommendations: recs[dateStr],
			News:            news[dateStr],
		}

		if dayPrices, ok := prices[dateStr]; ok {
			day.Prices = dayPrices
		}
		day.IsTradingDay = isWeekday(date) && hasAllTickers(day.Prices, tickers)

		if day.IsTradingDay {
			tradingDays++
			day.Indicators = s.indicatorsAsOf(tickers, series, dateStr)
		}

		days = append(days, day)
	}

	if tradingDays < wantTradingDays {
		return nil, fmt.Errorf("%w: found %d trading days in %s..%s, need %d",
			domain.ErrInsufficientData, tradingDays, startDate, endDate, wantTradingDays)
	}

	s.log.Debug().
		Str("start", startDate).
		Str("end", endDate).
		Int("days", len(days)).
		Int("trading_days", tradingDays).
		Msg("Session window assembled")

	return days, nil
}

// LatestDate returns the most recent date with price data, or empty when
// the market store is unpopulated.
func (s *Service) LatestDate() (string, error) {
	return s.repo.LatestPriceDate()
}

// indicatorsAsOf computes the indicator subset for each ticker using only
// closes dated on or before asOfDate.
func (s *Service) indicatorsAsOf(tickers []string, series map[string][]DatedClose, asOfDate string) map[string]domain.IndicatorSet {
	result := make(map[string]domain.IndicatorSet, len(tickers))
	for _, ticker := range tickers {
		closes := closesUpTo(series[ticker], asOfDate)
		if len(closes) == 0 {
			continue
		}
		set := domain.IndicatorSet{
			RSI14: formulas.CalculateRSI(closes, 14),
			SMA20: formulas.CalculateSMA(closes, 20),
		}
		set.MACD, set.MACDSignal = formulas.CalculateMACD(closes)
		result[ticker] = set
	}
	return result
}

// closesUpTo returns the close values dated on or before asOfDate. The
// series is ascending, so scan from the tail.
func closesUpTo(series []DatedClose, asOfDate string) []float64 {
	cut := len(series)
	for cut > 0 && series[cut-1].Date > asOfDate {
		cut--
	}
	closes := make([]float64, cut)
	for i := 0; i < cut; i++ {
		closes[i] = series[i].Close
	}
	return closes
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func hasAllTickers(prices map[string]domain.TickerPrices, tickers []string) bool {
	if len(tickers) == 0 {
		return false
	}
	for _, ticker := range tickers {
		if _, ok := prices[ticker]; !ok {
			return false
		}
	}
	return true
}

// WeekdayCount returns the number of weekdays in the inclusive window. The
// room registry uses it as the required trading-day count when validating a
// session window: the offline pipelines deliver complete weekday data, so a
// weekday without full coverage means the window is not servable.
func WeekdayCount(startDate, endDate string) (int, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid start date %q", domain.ErrInvalidRequest, startDate)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid end date %q", domain.ErrInvalidRequest, endDate)
	}

	count := 0
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if isWeekday(date) {
			count++
		}
	}
	return count, nil
}
