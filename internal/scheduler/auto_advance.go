package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/modules/rooms"
)

// AutoAdvanceJob is the auto-timer driver: each tick it scans in_progress
// sync_auto rooms and advances every one whose day deadline has passed.
// Deadlines are recomputed from the persisted day_started_at, never from
// in-memory timers, so a process restart resumes correctly.
//
// One failing room does not stop the scan.
type AutoAdvanceJob struct {
	rooms *rooms.Service
	log   zerolog.Logger
}

// NewAutoAdvanceJob creates the auto-timer job.
func NewAutoAdvanceJob(roomService *rooms.Service, log zerolog.Logger) *AutoAdvanceJob {
	return &AutoAdvanceJob{
		rooms: roomService,
		log:   log.With().Str("job", "auto_advance").Logger(),
	}
}

// Name implements Job.
func (j *AutoAdvanceJob) Name() string { return "auto_advance" }

// Run implements Job.
func (j *AutoAdvanceJob) Run() error {
	now := time.Now()
	expired, err := j.rooms.ExpiredAutoRooms(now)
	if err != nil {
		return err
	}

	for _, room := range expired {
		// The day and deadline are re-checked under the room lock against
		// this scan's snapshot; a teacher advance that lands first changes
		// the day and this becomes a no-op.
		_, advanced, err := j.rooms.AdvanceIfExpired(context.Background(), room, now)
		if err != nil {
			j.log.Error().Err(err).Str("room", room.Code).Msg("Auto-advance failed")
			continue
		}
		if advanced {
			j.log.Info().Str("room", room.Code).Msg("Day auto-advanced")
		}
	}
	return nil
}
