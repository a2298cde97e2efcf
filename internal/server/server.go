// Package server provides the HTTP server and routing for the classroom
// session coordinator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/marketclass/internal/config"
	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/rooms"
)

// Config holds server wiring.
type Config struct {
	Log      zerolog.Logger
	Config   *config.Config
	GameDB   *database.DB
	MarketDB *database.DB
	Rooms    *rooms.Service
	Bus      *events.Bus
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	gameDB   *database.DB
	marketDB *database.DB
	rooms    *rooms.Service
	bus      *events.Bus

	roomHandlers   *RoomHandlers
	playerHandlers *PlayerHandlers
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
	roomStream     *RoomStreamHandler
}

// New creates the HTTP server and wires all routes.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		cfg:      cfg.Config,
		gameDB:   cfg.GameDB,
		marketDB: cfg.MarketDB,
		rooms:    cfg.Rooms,
		bus:      cfg.Bus,
	}

	s.roomHandlers = NewRoomHandlers(cfg.Rooms, cfg.Log)
	s.playerHandlers = NewPlayerHandlers(cfg.Rooms, cfg.Log)
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.GameDB, cfg.MarketDB, cfg.Bus)
	s.eventsStream = NewEventsStreamHandler(cfg.Bus, cfg.Log)
	s.roomStream = NewRoomStreamHandler(cfg.Bus, cfg.Rooms, cfg.Log)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if devMode {
		s.log.Info().Msg("Development mode: verbose request logging enabled")
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.Health)

	s.router.Route("/rooms", func(r chi.Router) {
		r.Post("/", s.roomHandlers.Create)
		r.Get("/", s.roomHandlers.List)
		r.Post("/join", s.roomHandlers.Join)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.roomHandlers.Get)
			r.Get("/state", s.roomHandlers.State)
			r.Get("/leaderboard", s.roomHandlers.Leaderboard)
			r.Get("/market-days", s.roomHandlers.MarketDays)
			r.Get("/export", s.roomHandlers.Export)
			r.Get("/stream", s.roomStream.ServeHTTP)
			r.Post("/start", s.roomHandlers.Start)
			r.Post("/advance-day", s.roomHandlers.AdvanceDay)
			r.Post("/end-game", s.roomHandlers.EndGame)
			r.Post("/set-timer", s.roomHandlers.SetTimer)
		})
	})

	s.router.Route("/players/{id}", func(r chi.Router) {
		r.Get("/", s.playerHandlers.Get)
		r.Put("/", s.playerHandlers.UpdateState)
		r.Post("/ready", s.playerHandlers.MarkReady)
		r.Post("/trade", s.playerHandlers.Trade)
	})

	s.router.Route("/system", func(r chi.Router) {
		r.Get("/status", s.systemHandlers.Status)
		r.Get("/databases", s.systemHandlers.Databases)
	})

	s.router.Get("/events/stream", s.eventsStream.ServeHTTP)
}

// loggingMiddleware logs each request with latency and status.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// /state and /leaderboard are polled every second per client; keep
		// them out of info-level logs.
		logEvent := s.log.Info()
		if r.Method == http.MethodGet {
			logEvent = s.log.Debug()
		}
		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request")
	})
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
