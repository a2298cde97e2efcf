package players

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/marketclass/internal/domain"
)

// Leaderboard returns the ranked rows for a room. Ordering is score
// descending, then portfolio value descending, then join time ascending as
// the final tie-breaker; ranks are dense 1..n. The sort runs on the
// first-class columns, so only the breakdown blob is decoded per row (for
// the volatility diagnostic).
func (r *Repository) Leaderboard(roomID string) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, player_name, score, grade, portfolio_value, return_pct,
		       current_day, is_finished, breakdown
		FROM players
		WHERE room_id = ?
		ORDER BY score DESC, portfolio_value DESC, joined_at ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard for room %s: %w", roomID, err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var (
			e          domain.LeaderboardEntry
			isFinished int
			breakdown  []byte
		)
		if err := rows.Scan(&e.PlayerID, &e.PlayerName, &e.Score, &e.Grade,
			&e.PortfolioValue, &e.TotalReturnPct, &e.CurrentDay, &isFinished, &breakdown); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.IsFinished = isFinished != 0

		if len(breakdown) > 0 {
			var b domain.ScoreBreakdown
			if err := msgpack.Unmarshal(breakdown, &b); err != nil {
				return nil, fmt.Errorf("failed to decode breakdown for player %s: %w", e.PlayerID, err)
			}
			e.VolatilityPct = b.VolatilityPct
		}

		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
