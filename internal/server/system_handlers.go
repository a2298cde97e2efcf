package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/events"
)

// SystemHandlers serves health and operational status routes.
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	startedAt time.Time
	gameDB    *database.DB
	marketDB  *database.DB
	bus       *events.Bus
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, gameDB, marketDB *database.DB, bus *events.Bus) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handlers", "system").Logger(),
		dataDir:   dataDir,
		startedAt: time.Now(),
		gameDB:    gameDB,
		marketDB:  marketDB,
		bus:       bus,
	}
}

// Health handles GET /health. Reports unhealthy when either database fails
// its quick check.
func (h *SystemHandlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	for _, db := range []*database.DB{h.gameDB, h.marketDB} {
		if err := db.QuickCheck(r.Context()); err != nil {
			checks[db.Name()] = err.Error()
			healthy = false
		} else {
			checks[db.Name()] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":    state,
		"databases": checks,
		"uptime_s":  int(time.Since(h.startedAt).Seconds()),
	})
}

// Status handles GET /system/status: process and host resource usage.
func (h *SystemHandlers) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	payload := map[string]interface{}{
		"uptime_s":        int(time.Since(h.startedAt).Seconds()),
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc_mb":   memStats.HeapAlloc / 1024 / 1024,
		"sse_subscribers": h.bus.SubscriberCount(),
		"data_dir":        h.dataDir,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		payload["system_memory_used_pct"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		payload["system_cpu_pct"] = percents[0]
	}

	respondJSON(w, http.StatusOK, payload)
}

// Databases handles GET /system/databases: per-database size and connection
// pool stats.
func (h *SystemHandlers) Databases(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	for _, db := range []*database.DB{h.gameDB, h.marketDB} {
		dbStats, err := db.GetStats()
		if err != nil {
			stats[db.Name()] = map[string]string{"error": err.Error()}
			continue
		}
		stats[db.Name()] = dbStats
	}
	respondJSON(w, http.StatusOK, stats)
}
