package server

import (
	"context"
	"log"
	"time"
)

// resolveHost keeps the current host while they are connected; otherwise the
// host role moves to the first connected player in seating order, falling back
// to the first seat so an all-disconnected room still has a host on record.
func resolveHost(r *Room) {
	if host := r.findPlayer(r.HostID); host != nil && host.Connected {
		return
	}
	for _, p := range r.Players {
		if p.Connected {
			r.HostID = p.ID
			return
		}
	}
	if len(r.Players) > 0 {
		r.HostID = r.Players[0].ID
	}
}

// markDisconnected flags the seat without freeing it. The player keeps their
// score and turn slot through the grace window and can rejoin by token.
func markDisconnected(r *Room, playerID string) {
	p := r.findPlayer(playerID)
	if p == nil {
		return
	}
	p.Connected = false
	p.DisconnectedAt = timeNowUTC()
	resolveHost(r)
}

// removePlayer frees the seat entirely: out of the roster, the turn rotation,
// and the pending clue-giver set. Relative turn order of everyone else is
// preserved, and the cursor shifts so the rotation does not skip a player.
func removePlayer(r *Room, playerID string) {
	players := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ID != playerID {
			players = append(players, p)
		}
	}
	r.Players = players

	order := make([]string, 0, len(r.TurnOrder))
	for i, id := range r.TurnOrder {
		if id == playerID {
			if i <= r.TurnIndex && r.TurnIndex >= 0 {
				r.TurnIndex--
			}
			continue
		}
		order = append(order, id)
	}
	r.TurnOrder = order

	delete(r.PendingClueGivers, playerID)
	resolveHost(r)
}

// RunSweeper drives the per-second housekeeping pass until ctx is cancelled:
// reaping players whose disconnect grace expired, force-advancing rounds whose
// clue-giver is gone, and destroying rooms with no seats left.
func (s *Server) RunSweeper(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	grace := time.Duration(s.cfg.DisconnectGraceSeconds) * time.Second
	now := timeNowUTC()

	for _, code := range s.registry.Codes() {
		var (
			changed   bool
			empty     bool
			prevPhase string
			newPhase  string
		)
		_, err := s.registry.Update(code, func(r *Room) error {
			prevPhase = r.Phase
			newPhase = r.Phase

			var reaped []string
			for _, p := range r.Players {
				if !p.Connected && !p.DisconnectedAt.IsZero() && now.Sub(p.DisconnectedAt) >= grace {
					reaped = append(reaped, p.ID)
				}
			}
			for _, id := range reaped {
				removePlayer(r, id)
				changed = true
			}
			if len(reaped) > 0 {
				log.Printf("reaped players room=%s count=%d", code, len(reaped))
			}

			if len(r.Players) == 0 {
				empty = true
				return nil
			}

			if r.Phase == phasePlaying {
				clueGiver := r.findPlayer(r.CurrentClueGiverID)
				if clueGiver == nil || !clueGiver.Connected {
					s.forceAdvanceRound(r, "Clue giver disconnected")
					changed = true
					log.Printf("round force-advanced room=%s reason=%q", code, "clue giver disconnected")
				}
			}
			newPhase = r.Phase
			return nil
		})
		if err != nil {
			continue
		}
		if empty {
			s.closeRoom(code, "")
			continue
		}
		if changed {
			s.applyPhaseTransition(code, prevPhase, newPhase)
		}
		// Every room rebroadcasts each tick; clients derive their
		// countdowns from the deadlines in the snapshot.
		s.broadcastRoom(code)
	}
}
