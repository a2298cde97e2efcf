package players

import (
	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/pkg/formulas"
)

const (
	returnPointsPerPct   = 50.0
	returnPointsCap      = 500.0
	pointsPerBuy         = 50.0
	beatAIBonus          = 200.0
	drawdownThresholdPct = -10.0
	drawdownMultiplier   = 20.0
)

// Rescore recomputes the player's score breakdown and grade from the
// portfolio history and trade log. Called after every day advance; the
// breakdown is derived state and never edited directly.
func (e *Engine) Rescore(p *domain.Player) {
	returnPct := 0.0
	if n := len(p.History); n > 0 {
		returnPct = p.History[n-1].ReturnPct
	}

	values := make([]float64, 0, len(p.History)+1)
	values = append(values, e.config.InitialCash)
	for _, snap := range p.History {
		values = append(values, snap.TotalValue)
	}

	b := domain.ScoreBreakdown{
		MaxDrawdownPct: formulas.MaxDrawdownPct(values),
		VolatilityPct:  formulas.ReturnVolatilityPct(values),
	}

	b.PortfolioReturnPoints = clamp(returnPct*returnPointsPerPct, 0, returnPointsCap)

	// Buys are gated to BUY/STRONG_BUY recommendations, so every recorded
	// buy is compliant by construction.
	for _, t := range p.Trades {
		if t.Type == domain.TradeBuy {
			b.RiskDisciplinePoints += pointsPerBuy
		}
	}

	if returnPct > p.Shadow.ReturnPct {
		b.BeatAIPoints = beatAIBonus
	}

	if b.MaxDrawdownPct < drawdownThresholdPct {
		b.DrawdownPenaltyPoints = drawdownMultiplier * b.MaxDrawdownPct
	}

	b.Total = b.PortfolioReturnPoints + b.RiskDisciplinePoints + b.BeatAIPoints + b.DrawdownPenaltyPoints
	b.Grade = GradeFor(returnPct, e.config.Difficulty)

	p.Breakdown = b
	p.Score = b.Total
	p.Grade = b.Grade
}

// GradeFor maps a raw return percentage to a letter grade using the
// difficulty-dependent thresholds. Grades come from the raw return, not the
// point total, so a cash-only player in an up market still reads as C.
func GradeFor(returnPct float64, difficulty domain.Difficulty) string {
	type cutoffs struct{ a, b, c, d float64 }
	var c cutoffs
	switch difficulty {
	case domain.DifficultyEasy:
		c = cutoffs{a: 5, b: 2, c: 0, d: -3}
	case domain.DifficultyHard:
		c = cutoffs{a: 15, b: 10, c: 5, d: 0}
	default:
		c = cutoffs{a: 10, b: 5, c: 0, d: -5}
	}

	// The top grade requires beating its cutoff outright; the rest are
	// inclusive, so a flat 0% return still reads as C.
	switch {
	case returnPct > c.a:
		return "A"
	case returnPct >= c.b:
		return "B"
	case returnPct >= c.c:
		return "C"
	case returnPct >= c.d:
		return "D"
	default:
		return "F"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
