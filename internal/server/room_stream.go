package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/marketclass/internal/events"
	"github.com/aristath/marketclass/internal/modules/rooms"
)

// RoomStreamHandler pushes a room's lifecycle events over a websocket. Like
// the SSE stream this is an optional supplement to polling: a dropped
// socket loses nothing the next /state poll would not recover.
type RoomStreamHandler struct {
	bus   *events.Bus
	rooms *rooms.Service
	log   zerolog.Logger

	mu    sync.Mutex
	conns map[string]map[*roomConn]bool
}

type roomConn struct {
	ch chan *events.Event
}

// NewRoomStreamHandler creates the websocket handler and subscribes it to
// the event bus.
func NewRoomStreamHandler(bus *events.Bus, roomService *rooms.Service, log zerolog.Logger) *RoomStreamHandler {
	h := &RoomStreamHandler{
		bus:   bus,
		rooms: roomService,
		log:   log.With().Str("component", "room_stream").Logger(),
		conns: map[string]map[*roomConn]bool{},
	}

	bus.Subscribe(func(e *events.Event) {
		if e.RoomCode == "" {
			return
		}
		h.mu.Lock()
		for conn := range h.conns[e.RoomCode] {
			select {
			case conn.ch <- e:
			default: // slow consumer, drop
			}
		}
		h.mu.Unlock()
	})

	return h
}

func (h *RoomStreamHandler) add(code string, conn *roomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[code] == nil {
		h.conns[code] = map[*roomConn]bool{}
	}
	h.conns[code][conn] = true
}

func (h *RoomStreamHandler) remove(code string, conn *roomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[code], conn)
	if len(h.conns[code]) == 0 {
		delete(h.conns, code)
	}
}

// ServeHTTP handles GET /rooms/{code}/stream.
func (h *RoomStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Get(chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("Websocket accept failed")
		return
	}
	defer socket.Close(websocket.StatusNormalClosure, "")

	conn := &roomConn{ch: make(chan *events.Event, 32)}
	h.add(room.Code, conn)
	defer h.remove(room.Code, conn)

	ctx := r.Context()

	// Reader goroutine: the client sends nothing meaningful, but reading is
	// required to notice a close.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := socket.Read(ctx); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readClosed:
			return
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := socket.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case event := <-conn.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, socket, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
