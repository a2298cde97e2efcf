package players

import (
	"math"

	"github.com/aristath/marketclass/internal/domain"
)

// Shadow cash fractions. STRONG_BUY commits a larger slice of remaining
// cash than BUY; both floor to whole shares.
const (
	shadowStrongBuyFraction = 0.40
	shadowBuyFraction       = 0.25
)

// NewShadow returns a fresh shadow portfolio at the starting cash.
func NewShadow(initialCash float64) domain.ShadowState {
	return domain.ShadowState{
		Cash:           initialCash,
		Holdings:       map[string]int{},
		PortfolioValue: initialCash,
	}
}

// StepShadow advances the AI benchmark one day. The recommendations are the
// ones published on the day being closed out; like player trades, the
// resulting orders execute at the next day's open. Recommendations are
// consumed in the stored order (lexicographic by ticker), so earlier tickers
// get first claim on cash and the walk is deterministic across replays.
//
// Tickers with no open price on the execution day are skipped. After the
// trades, the shadow is revalued at the last known closes.
func StepShadow(s *domain.ShadowState, initialCash float64, recs []domain.RecommendationRow, execDay *domain.MarketDay, closes map[string]float64) {
	for _, rec := range recs {
		price, ok := execDay.OpenPrice(rec.Ticker)
		if !ok || price <= 0 {
			continue
		}

		switch rec.Recommendation {
		case domain.StrongBuy:
			shadowBuy(s, rec.Ticker, price, shadowStrongBuyFraction)
		case domain.Buy:
			shadowBuy(s, rec.Ticker, price, shadowBuyFraction)
		case domain.StrongSell:
			shadowSell(s, rec.Ticker, price, s.Holdings[rec.Ticker])
		case domain.Sell:
			shadowSell(s, rec.Ticker, price, ceilHalf(s.Holdings[rec.Ticker]))
		}
	}

	s.Day++
	s.PortfolioValue = shadowValue(s, closes)
	s.ReturnPct = 100 * (s.PortfolioValue - initialCash) / initialCash
}

// shadowBuy spends the given fraction of remaining cash, floored to whole
// shares. A budget below one share is a no-op.
func shadowBuy(s *domain.ShadowState, ticker string, price, fraction float64) {
	shares := int(math.Floor(s.Cash * fraction / price))
	if shares < 1 {
		return
	}
	cost := float64(shares) * price
	if cost > s.Cash {
		return
	}
	s.Cash -= cost
	s.Holdings[ticker] += shares
}

func shadowSell(s *domain.ShadowState, ticker string, price float64, shares int) {
	held := s.Holdings[ticker]
	if held == 0 || shares < 1 {
		return
	}
	if shares > held {
		shares = held
	}
	s.Cash += float64(shares) * price
	if shares == held {
		delete(s.Holdings, ticker)
	} else {
		s.Holdings[ticker] = held - shares
	}
}

func shadowValue(s *domain.ShadowState, closes map[string]float64) float64 {
	value := s.Cash
	for ticker, shares := range s.Holdings {
		if close, ok := closes[ticker]; ok {
			value += float64(shares) * close
		}
	}
	return value
}
