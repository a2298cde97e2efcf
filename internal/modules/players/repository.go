package players

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/marketclass/internal/domain"
)

// Repository persists players in game.db. Structured sub-state (holdings,
// trades, history, shadow, day-start checkpoint, score breakdown) is stored
// as msgpack blobs; the columns the leaderboard sorts on are kept
// first-class so ranking never decodes a blob.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a player repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "players").Logger(),
	}
}

const playerColumns = `
	id, room_id, player_name, player_email, current_day, cash,
	holdings, trades, history, shadow, day_start, breakdown,
	score, grade, portfolio_value, return_pct,
	is_ready, last_sync_day, is_finished,
	joined_at, updated_at, game_ended_at`

// Create inserts a new player row.
func (r *Repository) Create(p *domain.Player, portfolioValue float64) error {
	return r.exec(p, portfolioValue, `
		INSERT INTO players (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insertOrder)
}

// Save overwrites the full player row (last-writer-wins).
func (r *Repository) Save(p *domain.Player, portfolioValue float64) error {
	return r.exec(p, portfolioValue, `
		UPDATE players SET
			room_id = ?, player_name = ?, player_email = ?, current_day = ?, cash = ?,
			holdings = ?, trades = ?, history = ?, shadow = ?, day_start = ?, breakdown = ?,
			score = ?, grade = ?, portfolio_value = ?, return_pct = ?,
			is_ready = ?, last_sync_day = ?, is_finished = ?,
			joined_at = ?, updated_at = ?, game_ended_at = ?
		WHERE id = ?
	`, updateOrder)
}

type argOrder int

const (
	insertOrder argOrder = iota
	updateOrder
)

func (r *Repository) exec(p *domain.Player, portfolioValue float64, query string, order argOrder) error {
	blobs, err := encodeBlobs(p)
	if err != nil {
		return err
	}

	returnPct := 0.0
	if n := len(p.History); n > 0 {
		returnPct = p.History[n-1].ReturnPct
	}

	args := []interface{}{
		p.RoomID, p.Name, p.Email, p.CurrentDay, p.Cash,
		blobs.holdings, blobs.trades, blobs.history, blobs.shadow, blobs.dayStart, blobs.breakdown,
		p.Score, p.Grade, portfolioValue, returnPct,
		boolToInt(p.IsReady), p.LastSyncDay, boolToInt(p.IsFinished),
		p.JoinedAt.Unix(), p.UpdatedAt.Unix(), nullTime(p.GameEndedAt),
	}
	if order == insertOrder {
		args = append([]interface{}{p.ID}, args...)
	} else {
		args = append(args, p.ID)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to persist player %s: %w", p.ID, err)
	}
	return nil
}

// Get returns one player by id.
func (r *Repository) Get(id string) (*domain.Player, error) {
	row := r.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	return p, err
}

// GetInRoom returns one player by id scoped to a room. Player state routes
// carry the room code, so a player id from another room is a not-found.
func (r *Repository) GetInRoom(id, roomID string) (*domain.Player, error) {
	row := r.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ? AND room_id = ?`, id, roomID)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	return p, err
}

// ListByRoom returns every player in a room ordered by join time.
func (r *Repository) ListByRoom(roomID string) ([]*domain.Player, error) {
	rows, err := r.db.Query(`SELECT `+playerColumns+` FROM players WHERE room_id = ? ORDER BY joined_at, id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var result []*domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CountByRoom returns (total, ready) player counts for a room.
func (r *Repository) CountByRoom(roomID string) (total, ready int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(is_ready), 0) FROM players WHERE room_id = ?
	`, roomID).Scan(&total, &ready)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count players for room %s: %w", roomID, err)
	}
	return total, ready, nil
}

// SetReady flips the readiness flag for one player.
func (r *Repository) SetReady(id string, ready bool) error {
	res, err := r.db.Exec(`UPDATE players SET is_ready = ?, updated_at = ? WHERE id = ?`,
		boolToInt(ready), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set readiness for player %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// ClearReadiness resets is_ready for every player in a room. Runs inside the
// advance-day transaction.
func (r *Repository) ClearReadiness(tx *sql.Tx, roomID string) error {
	if _, err := tx.Exec(`UPDATE players SET is_ready = 0 WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("failed to clear readiness for room %s: %w", roomID, err)
	}
	return nil
}

// SaveTx persists a player inside an existing transaction.
func (r *Repository) SaveTx(tx *sql.Tx, p *domain.Player, portfolioValue float64) error {
	blobs, err := encodeBlobs(p)
	if err != nil {
		return err
	}

	returnPct := 0.0
	if n := len(p.History); n > 0 {
		returnPct = p.History[n-1].ReturnPct
	}

	_, err = tx.Exec(`
		UPDATE players SET
			current_day = ?, cash = ?,
			holdings = ?, trades = ?, history = ?, shadow = ?, day_start = ?, breakdown = ?,
			score = ?, grade = ?, portfolio_value = ?, return_pct = ?,
			is_ready = ?, last_sync_day = ?, is_finished = ?,
			updated_at = ?, game_ended_at = ?
		WHERE id = ?
	`,
		p.CurrentDay, p.Cash,
		blobs.holdings, blobs.trades, blobs.history, blobs.shadow, blobs.dayStart, blobs.breakdown,
		p.Score, p.Grade, portfolioValue, returnPct,
		boolToInt(p.IsReady), p.LastSyncDay, boolToInt(p.IsFinished),
		p.UpdatedAt.Unix(), nullTime(p.GameEndedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to persist player %s: %w", p.ID, err)
	}
	return nil
}

type playerBlobs struct {
	holdings, trades, history, shadow, dayStart, breakdown []byte
}

func encodeBlobs(p *domain.Player) (*playerBlobs, error) {
	b := &playerBlobs{}
	for _, field := range []struct {
		name string
		dst  *[]byte
		src  interface{}
	}{
		{"holdings", &b.holdings, p.Holdings},
		{"trades", &b.trades, p.Trades},
		{"history", &b.history, p.History},
		{"shadow", &b.shadow, p.Shadow},
		{"day_start", &b.dayStart, p.DayStart},
		{"breakdown", &b.breakdown, p.Breakdown},
	} {
		data, err := msgpack.Marshal(field.src)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s for player %s: %w", field.name, p.ID, err)
		}
		*field.dst = data
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (*domain.Player, error) {
	var (
		p           domain.Player
		email       sql.NullString
		blobs       playerBlobs
		isReady     int
		isFinished  int
		joinedAt    int64
		updatedAt   int64
		gameEndedAt sql.NullInt64
		pv, rp      float64
	)

	err := row.Scan(
		&p.ID, &p.RoomID, &p.Name, &email, &p.CurrentDay, &p.Cash,
		&blobs.holdings, &blobs.trades, &blobs.history, &blobs.shadow, &blobs.dayStart, &blobs.breakdown,
		&p.Score, &p.Grade, &pv, &rp,
		&isReady, &p.LastSyncDay, &isFinished,
		&joinedAt, &updatedAt, &gameEndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan player row: %w", err)
	}

	p.Email = email.String
	p.IsReady = isReady != 0
	p.IsFinished = isFinished != 0
	p.JoinedAt = time.Unix(joinedAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if gameEndedAt.Valid {
		t := time.Unix(gameEndedAt.Int64, 0).UTC()
		p.GameEndedAt = &t
	}

	for _, field := range []struct {
		name string
		src  []byte
		dst  interface{}
	}{
		{"holdings", blobs.holdings, &p.Holdings},
		{"trades", blobs.trades, &p.Trades},
		{"history", blobs.history, &p.History},
		{"shadow", blobs.shadow, &p.Shadow},
		{"day_start", blobs.dayStart, &p.DayStart},
		{"breakdown", blobs.breakdown, &p.Breakdown},
	} {
		if len(field.src) == 0 {
			continue
		}
		if err := msgpack.Unmarshal(field.src, field.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s for player %s: %w", field.name, p.ID, err)
		}
	}
	if p.Holdings == nil {
		p.Holdings = map[string]domain.Holding{}
	}
	if p.DayStart.Holdings == nil {
		p.DayStart.Holdings = map[string]domain.Holding{}
	}

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
