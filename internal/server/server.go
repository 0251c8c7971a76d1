package server

import (
	"log"
	"sync"
	"time"

	"movie-sketch/internal/config"
)

type Server struct {
	registry *Registry
	hub      *wsHub
	movies   *movieSource
	cfg      config.Config
	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func New(cfg config.Config) *Server {
	return &Server{
		registry: NewRegistry(),
		hub:      newWSHub(),
		movies:   newMovieSource(cfg.MovieAPIURL, time.Duration(cfg.MovieAPITimeoutSeconds)*time.Second),
		cfg:      cfg,
		timers:   make(map[string]*time.Timer),
	}
}

// broadcastRoom pushes a fresh per-viewer snapshot to every connected player.
// Snapshots are built under the registry lock; the sends happen after, so a
// slow socket never stalls room mutation.
func (s *Server) broadcastRoom(code string) {
	now := timeNowUTC()
	type outbound struct {
		playerID string
		payload  map[string]any
	}
	var sends []outbound
	ok := s.registry.View(code, func(r *Room) {
		for _, p := range r.Players {
			if !p.Connected {
				continue
			}
			sends = append(sends, outbound{
				playerID: p.ID,
				payload:  envelope("room:update", buildRoomSnapshot(r, p.ID, now)),
			})
		}
	})
	if !ok {
		return
	}
	for _, msg := range sends {
		s.hub.SendPlayer(code, msg.playerID, msg.payload)
	}
}

// closeRoom tears the room down: registry entry, timers, then the sockets. A
// non-empty reason is announced before the connections close.
func (s *Server) closeRoom(code, reason string) {
	room, ok := s.registry.Remove(code)
	if !ok {
		return
	}
	s.cancelRoomTimers(code)
	if reason != "" {
		s.hub.BroadcastRoom(code, envelope("room:closed", map[string]any{"reason": reason}))
	}
	s.hub.CloseRoom(code)
	log.Printf("room closed room=%s reason=%q players=%d", code, reason, len(room.Players))
}

func envelope(eventType string, data any) map[string]any {
	return map[string]any{"type": eventType, "data": data}
}
