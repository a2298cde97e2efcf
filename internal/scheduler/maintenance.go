package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/reliability"
)

// WALCheckpointJob periodically checkpoints the WAL of every open database
// so the log files stay bounded during long classroom sessions.
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates the WAL checkpoint job.
func NewWALCheckpointJob(databases []*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name implements Job.
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run implements Job.
func (j *WALCheckpointJob) Run() error {
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			continue
		}
	}
	return nil
}

// BackupJob creates the nightly archive and rotates old remote copies.
type BackupJob struct {
	backups       *reliability.BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(backups *reliability.BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name implements Job.
func (j *BackupJob) Name() string { return "backup" }

// Run implements Job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := j.backups.CreateBackup(ctx); err != nil {
		return err
	}
	return j.backups.RotateOldBackups(ctx, j.retentionDays)
}
