// Package rooms implements the room registry and the session state machine:
// room creation and join, teacher commands (start, advance-day, end-game,
// set-timer), the polled state snapshot, and the room-scoped serialization
// that keeps concurrent mutations ordered.
package rooms

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/domain"
)

// Repository persists rooms in game.db. The config envelope is stored as a
// JSON blob; the fields queries filter or sort on are duplicated into
// first-class columns.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a room repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rooms").Logger(),
	}
}

// DB exposes the underlying handle for transactional multi-table updates.
func (r *Repository) DB() *sql.DB {
	return r.db
}

const roomColumns = `
	id, room_code, room_name, created_by, config,
	start_date, end_date, status, game_mode, current_day,
	day_started_at, day_time_limit, ai_value, ai_return_pct, ai_day,
	created_at, game_started_at, game_ended_at`

// Create inserts a room. The partial unique index on room_code (scoped to
// non-finished rows) is the collision check: a duplicate code surfaces as a
// constraint error and the caller redraws.
func (r *Repository) Create(room *domain.Room) error {
	config, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("failed to encode room config: %w", err)
	}
	tickers, err := json.Marshal(room.Config.Tickers)
	if err != nil {
		return fmt.Errorf("failed to encode room tickers: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO rooms (
			id, room_code, room_name, created_by, config,
			initial_cash, num_days, difficulty, tickers,
			start_date, end_date, status, game_mode, current_day,
			day_started_at, day_time_limit, ai_value, ai_return_pct, ai_day,
			created_at, game_started_at, game_ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		room.ID, room.Code, nullString(room.Name), room.CreatedBy, string(config),
		room.Config.InitialCash, room.Config.NumDays, string(room.Config.Difficulty), string(tickers),
		nullString(room.StartDate), nullString(room.EndDate), string(room.Status), string(room.GameMode), room.CurrentDay,
		nullTime(room.DayStartedAt), nullInt(room.DayTimeLimit),
		room.AIBenchmark.PortfolioValue, room.AIBenchmark.ReturnPct, room.AIBenchmark.Day,
		room.CreatedAt.Unix(), nullTime(room.GameStartedAt), nullTime(room.GameEndedAt))
	if err != nil {
		return fmt.Errorf("failed to insert room %s: %w", room.Code, err)
	}
	return nil
}

// Save overwrites the mutable fields of a room.
func (r *Repository) Save(room *domain.Room) error {
	return r.save(r.db, room)
}

// SaveTx persists a room inside an existing transaction.
func (r *Repository) SaveTx(tx *sql.Tx, room *domain.Room) error {
	return r.save(tx, room)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) save(e execer, room *domain.Room) error {
	_, err := e.Exec(`
		UPDATE rooms SET
			room_name = ?, status = ?, current_day = ?,
			day_started_at = ?, day_time_limit = ?,
			ai_value = ?, ai_return_pct = ?, ai_day = ?,
			game_started_at = ?, game_ended_at = ?
		WHERE id = ?
	`,
		nullString(room.Name), string(room.Status), room.CurrentDay,
		nullTime(room.DayStartedAt), nullInt(room.DayTimeLimit),
		room.AIBenchmark.PortfolioValue, room.AIBenchmark.ReturnPct, room.AIBenchmark.Day,
		nullTime(room.GameStartedAt), nullTime(room.GameEndedAt), room.ID)
	if err != nil {
		return fmt.Errorf("failed to update room %s: %w", room.Code, err)
	}
	return nil
}

// GetByCode returns the non-finished room with the given (normalized) code,
// falling back to the most recent finished one so post-game reads (export,
// leaderboard) keep working after the session ends.
func (r *Repository) GetByCode(code string) (*domain.Room, error) {
	row := r.db.QueryRow(`
		SELECT `+roomColumns+` FROM rooms
		WHERE room_code = ?
		ORDER BY CASE WHEN status != 'finished' THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1
	`, code)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	return room, err
}

// Get returns a room by id.
func (r *Repository) Get(id string) (*domain.Room, error) {
	row := r.db.QueryRow(`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	return room, err
}

// List returns room summaries, optionally filtered by status, newest first.
func (r *Repository) List(status string) ([]domain.RoomSummary, error) {
	query := `
		SELECT r.id, r.room_code, r.room_name, r.created_by, r.status, r.game_mode,
		       r.current_day, r.num_days, r.created_at,
		       (SELECT COUNT(*) FROM players p WHERE p.room_id = r.id)
		FROM rooms r`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE r.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	summaries := []domain.RoomSummary{}
	for rows.Next() {
		var (
			s         domain.RoomSummary
			name      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.Code, &name, &s.CreatedBy, &s.Status, &s.GameMode,
			&s.CurrentDay, &s.NumDays, &createdAt, &s.PlayerCount); err != nil {
			return nil, fmt.Errorf("failed to scan room summary: %w", err)
		}
		s.Name = name.String
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListInProgressAuto returns the rooms the auto-timer driver scans: mode
// sync_auto, status in_progress.
func (r *Repository) ListInProgressAuto() ([]*domain.Room, error) {
	rows, err := r.db.Query(`
		SELECT `+roomColumns+` FROM rooms
		WHERE game_mode = ? AND status = ?
	`, string(domain.ModeSyncAuto), string(domain.RoomInProgress))
	if err != nil {
		return nil, fmt.Errorf("failed to list auto rooms: %w", err)
	}
	defer rows.Close()

	var result []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, room)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	var (
		room          domain.Room
		name          sql.NullString
		config        string
		startDate     sql.NullString
		endDate       sql.NullString
		dayStartedAt  sql.NullInt64
		dayTimeLimit  sql.NullInt64
		createdAt     int64
		gameStartedAt sql.NullInt64
		gameEndedAt   sql.NullInt64
	)

	err := row.Scan(
		&room.ID, &room.Code, &name, &room.CreatedBy, &config,
		&startDate, &endDate, &room.Status, &room.GameMode, &room.CurrentDay,
		&dayStartedAt, &dayTimeLimit,
		&room.AIBenchmark.PortfolioValue, &room.AIBenchmark.ReturnPct, &room.AIBenchmark.Day,
		&createdAt, &gameStartedAt, &gameEndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan room row: %w", err)
	}

	if err := json.Unmarshal([]byte(config), &room.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for room %s: %w", room.Code, err)
	}

	room.Name = name.String
	room.StartDate = startDate.String
	room.EndDate = endDate.String
	room.CreatedAt = time.Unix(createdAt, 0).UTC()
	if dayStartedAt.Valid {
		t := time.Unix(dayStartedAt.Int64, 0).UTC()
		room.DayStartedAt = &t
	}
	if dayTimeLimit.Valid {
		v := int(dayTimeLimit.Int64)
		room.DayTimeLimit = &v
	}
	if gameStartedAt.Valid {
		t := time.Unix(gameStartedAt.Int64, 0).UTC()
		room.GameStartedAt = &t
	}
	if gameEndedAt.Valid {
		t := time.Unix(gameEndedAt.Int64, 0).UTC()
		room.GameEndedAt = &t
	}

	return &room, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
