// Package main is the entry point for the marketclass classroom session
// coordinator: the server side of an educational stock-trading simulator.
// It serves room and player state over HTTP, drives sync_auto day timers in
// the background, and reads market data produced by the offline pipelines.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/marketclass/internal/config"
	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/marketdata"
	"github.com/aristath/marketclass/internal/modules/players"
	"github.com/aristath/marketclass/internal/modules/rooms"
	"github.com/aristath/marketclass/internal/reliability"
	"github.com/aristath/marketclass/internal/scheduler"
	"github.com/aristath/marketclass/internal/server"
	"github.com/aristath/marketclass/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; stderr is all we have.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting marketclass server")

	// game.db holds mutable session state; market.db is the append-only
	// store the offline pipelines write into.
	gameDB, err := database.New(database.Config{
		Path:    cfg.GameDBPath(),
		Name:    "game",
		Profile: database.ProfileGame,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open game database")
	}
	defer gameDB.Close()

	marketDB, err := database.New(database.Config{
		Path:    cfg.MarketDBPath(),
		Name:    "market",
		Profile: database.ProfileMarket,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	for _, db := range []*database.DB{gameDB, marketDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	bus := events.NewBus(log)

	marketRepo := marketdata.NewRepository(marketDB.Conn(), log)
	marketService := marketdata.NewService(marketRepo, log)
	playerRepo := players.NewRepository(gameDB.Conn(), log)
	roomRepo := rooms.NewRepository(gameDB.Conn(), log)
	roomService := rooms.NewService(roomRepo, playerRepo, marketService, bus, log)

	// Background jobs: the auto-timer tick, WAL hygiene, nightly backup.
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.TimerTickSchedule, scheduler.NewAutoAdvanceJob(roomService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register auto-advance job")
	}
	if err := sched.AddJob("0 */15 * * * *", scheduler.NewWALCheckpointJob([]*database.DB{gameDB, marketDB}, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}

	if cfg.Backup.Enabled {
		var r2 *reliability.R2Client
		r2cfg := reliability.R2Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}
		if r2cfg.Enabled() {
			r2, err = reliability.NewR2Client(context.Background(), r2cfg, log)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to build backup storage client")
			}
		} else {
			log.Warn().Msg("Backups enabled without remote storage config; archives stay local")
		}

		backups := reliability.NewBackupService([]*database.DB{gameDB, marketDB}, r2, cfg.DataDir, log)
		if err := sched.AddJob(cfg.Backup.Schedule, scheduler.NewBackupJob(backups, cfg.Backup.Retain, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:      log,
		Config:   cfg,
		GameDB:   gameDB,
		MarketDB: marketDB,
		Rooms:    roomService,
		Bus:      bus,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
