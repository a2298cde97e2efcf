package rooms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/domain"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/players"
)

// Start transitions a room from waiting to in_progress. Replaying start on
// a room that already left waiting is an InvalidTransition; start on a
// finished room reports RoomFinished.
func (s *Service) Start(ctx context.Context, code, startedBy string) (*domain.Room, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if err := authorize(room, startedBy); err != nil {
		return nil, err
	}

	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	room, err = s.repo.Get(room.ID)
	if err != nil {
		return nil, err
	}
	switch room.Status {
	case domain.RoomFinished:
		return nil, domain.ErrRoomFinished
	case domain.RoomInProgress:
		return nil, fmt.Errorf("%w: room %s already started", domain.ErrInvalidTransition, room.Code)
	}

	// The window was validated at create time, but re-check here so a room
	// created before a data gap fails loudly instead of starting.
	if _, err := s.getWindow(ctx, room); err != nil {
		return nil, err
	}

	now := time.Now()
	room.Status = domain.RoomInProgress
	room.CurrentDay = 0
	room.GameStartedAt = &now
	if room.DayTimeLimit != nil && *room.DayTimeLimit > 0 {
		room.DayStartedAt = &now
	}

	if err := s.repo.Save(room); err != nil {
		return nil, err
	}

	s.log.Info().Str("room", room.Code).Str("mode", string(room.GameMode)).Msg("Room started")
	s.bus.Publish(events.RoomStarted, room.Code, nil)
	return room, nil
}

// AdvanceDay performs one teacher-initiated day advance on a sync-mode
// room. The optional dayTimeLimit overrides the per-day timer for the new
// day. Advancing a finished room is a no-op returning the terminal state.
//
// The advance is keyed to the day the caller observed: when two requests
// race, the loser re-reads a changed current_day under the lock, skips its
// own step, and returns the post-advance state. Exactly one increment.
func (s *Service) AdvanceDay(ctx context.Context, code, initiatedBy string, dayTimeLimit *int) (*domain.Room, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if err := authorize(room, initiatedBy); err != nil {
		return nil, err
	}

	observedDay := room.CurrentDay
	advanced, err := s.advance(ctx, room.ID, dayTimeLimit, func(r *domain.Room) bool {
		return r.CurrentDay == observedDay
	})
	if err != nil {
		return nil, err
	}
	if advanced == nil {
		// Another advance landed first; report its result.
		return s.repo.Get(room.ID)
	}
	return advanced, nil
}

// AdvanceIfExpired is the auto-timer entry point. observed is the room
// snapshot the driver's scan saw; the advance goes through only if, under
// the lock, the room still sits on that day with its deadline passed. A
// teacher advance or an earlier tick that races the driver changes the day
// or restamps day_started_at, and this becomes a no-op.
func (s *Service) AdvanceIfExpired(ctx context.Context, observed *domain.Room, now time.Time) (*domain.Room, bool, error) {
	precondition := func(room *domain.Room) bool {
		if room.CurrentDay != observed.CurrentDay {
			return false
		}
		deadline, ok := room.DayDeadline()
		return ok && !now.Before(deadline)
	}
	room, err := s.advance(ctx, observed.ID, nil, precondition)
	if err != nil {
		return nil, false, err
	}
	return room, room != nil, nil
}

// advance is the single advance-day implementation. Under the room lock
// and inside one transaction it increments current_day (or finishes the
// room), appends a snapshot and steps the shadow for every player on the
// room's day, clears readiness, and refreshes the room AI benchmark.
//
// precondition, when non-nil, is evaluated against the freshly-read room
// under the lock; returning false skips the advance and yields (nil, nil).
func (s *Service) advance(ctx context.Context, roomID string, dayTimeLimit *int, precondition func(*domain.Room) bool) (*domain.Room, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.repo.Get(roomID)
	if err != nil {
		return nil, err
	}
	if precondition != nil && !precondition(room) {
		return nil, nil
	}
	switch room.Status {
	case domain.RoomWaiting:
		return nil, fmt.Errorf("%w: room %s has not started", domain.ErrInvalidTransition, room.Code)
	case domain.RoomFinished:
		return room, nil
	}

	window, err := s.getWindow(ctx, room)
	if err != nil {
		return nil, err
	}
	engine := players.NewEngine(window, room.Config)

	roster, err := s.players.ListByRoom(room.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	finishing := room.CurrentDay+1 >= room.Config.NumDays

	err = database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		var shadow *domain.ShadowState
		for _, p := range roster {
			// Players who already left the room's day (stale async writes,
			// rejoin artifacts) are not double-stepped.
			if p.CurrentDay == room.CurrentDay && !p.IsFinished {
				if _, err := engine.AdvanceDay(p); err != nil {
					return err
				}
			}
			p.IsReady = false
			p.LastSyncDay = room.CurrentDay + 1
			if err := s.players.SaveTx(tx, p, engine.LiveValue(p)); err != nil {
				return err
			}
			if shadow == nil {
				shadow = &p.Shadow
			}
		}

		if err := s.players.ClearReadiness(tx, room.ID); err != nil {
			return err
		}

		if finishing {
			room.Status = domain.RoomFinished
			room.CurrentDay = room.Config.NumDays
			room.GameEndedAt = &now
			room.DayStartedAt = nil
		} else {
			room.CurrentDay++
			room.DayStartedAt = &now
			if dayTimeLimit != nil && *dayTimeLimit > 0 {
				room.DayTimeLimit = dayTimeLimit
			}
		}

		// All shadows in a sync room are identical; any player's snapshot
		// represents the class benchmark.
		if shadow != nil {
			room.AIBenchmark = domain.AIBenchmark{
				PortfolioValue: shadow.PortfolioValue,
				ReturnPct:      shadow.ReturnPct,
				Day:            shadow.Day,
			}
		}

		return s.repo.SaveTx(tx, room)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance room %s: %w", room.Code, err)
	}

	s.log.Info().
		Str("room", room.Code).
		Int("day", room.CurrentDay).
		Bool("finished", finishing).
		Msg("Day advanced")

	s.bus.Publish(events.DayAdvanced, room.Code, events.DayAdvancedData{
		CurrentDay: room.CurrentDay,
		Status:     string(room.Status),
		NumDays:    room.Config.NumDays,
	})
	if finishing {
		s.bus.Publish(events.GameEnded, room.Code, events.GameEndedData{FinalDay: room.CurrentDay})
	}

	return room, nil
}

// EndGame force-finishes a room. Idempotent on the terminal state:
// replaying end-game on a finished room succeeds without side effects.
func (s *Service) EndGame(ctx context.Context, code, endedBy string) (*domain.Room, error) {
	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if err := authorize(room, endedBy); err != nil {
		return nil, err
	}

	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	room, err = s.repo.Get(room.ID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomFinished {
		return room, nil
	}

	now := time.Now()
	room.Status = domain.RoomFinished
	room.GameEndedAt = &now
	room.DayStartedAt = nil

	err = database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE players SET is_finished = 1, game_ended_at = ?, updated_at = ? WHERE room_id = ?
		`, now.Unix(), now.Unix(), room.ID); err != nil {
			return fmt.Errorf("failed to finish players for room %s: %w", room.ID, err)
		}
		return s.repo.SaveTx(tx, room)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("room", room.Code).Int("day", room.CurrentDay).Msg("Game ended early")
	s.bus.Publish(events.GameEnded, room.Code, events.GameEndedData{FinalDay: room.CurrentDay})
	return room, nil
}

// SetTimer updates the per-day time limit and re-anchors day_started_at to
// now. The auto-timer driver picks the new deadline up on its next tick.
func (s *Service) SetTimer(ctx context.Context, code, caller string, durationSeconds int) (*domain.Room, error) {
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration_seconds must be positive", domain.ErrInvalidRequest)
	}

	room, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if err := authorize(room, caller); err != nil {
		return nil, err
	}

	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	room, err = s.repo.Get(room.ID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomFinished {
		return nil, domain.ErrRoomFinished
	}

	now := time.Now()
	room.DayTimeLimit = &durationSeconds
	if room.Status == domain.RoomInProgress {
		room.DayStartedAt = &now
	}

	if err := s.repo.Save(room); err != nil {
		return nil, err
	}

	s.log.Info().Str("room", room.Code).Int("seconds", durationSeconds).Msg("Day timer updated")
	s.bus.Publish(events.TimerUpdated, room.Code, events.TimerUpdatedData{DayTimeLimit: durationSeconds})
	return room, nil
}

// ExpiredAutoRooms returns the in-progress sync_auto rooms whose day
// deadline has passed as of now. The driver advances each through
// AdvanceIfExpired, which re-validates under the lock.
func (s *Service) ExpiredAutoRooms(now time.Time) ([]*domain.Room, error) {
	candidates, err := s.repo.ListInProgressAuto()
	if err != nil {
		return nil, err
	}
	var expired []*domain.Room
	for _, room := range candidates {
		if deadline, ok := room.DayDeadline(); ok && !now.Before(deadline) {
			expired = append(expired, room)
		}
	}
	return expired, nil
}
