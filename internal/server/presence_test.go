package server

import (
	"testing"
	"time"
)

func TestResolveHostKeepsConnectedHost(t *testing.T) {
	r := testRoomWithPlayers("Ava", "Bela")
	resolveHost(r)
	if r.HostID != r.Players[0].ID {
		t.Fatalf("expected host unchanged")
	}
}

func TestResolveHostFailsOverInSeatingOrder(t *testing.T) {
	r := testRoomWithPlayers("Ava", "Bela", "Cyrus")
	r.Players[0].Connected = false
	resolveHost(r)
	if r.HostID != r.Players[1].ID {
		t.Fatalf("expected first connected player as host, got %s", r.HostID)
	}
}

func TestResolveHostAllDisconnected(t *testing.T) {
	r := testRoomWithPlayers("Ava", "Bela")
	r.Players[0].Connected = false
	r.Players[1].Connected = false
	resolveHost(r)
	if r.HostID != r.Players[0].ID {
		t.Fatalf("expected first seat to hold host role, got %s", r.HostID)
	}
}

func TestMarkDisconnectedStampsAndFailsOver(t *testing.T) {
	r := testRoomWithPlayers("Ava", "Bela")
	markDisconnected(r, r.Players[0].ID)
	if r.Players[0].Connected {
		t.Fatalf("expected player disconnected")
	}
	if r.Players[0].DisconnectedAt.IsZero() {
		t.Fatalf("expected disconnect stamp")
	}
	if r.HostID != r.Players[1].ID {
		t.Fatalf("expected host failover, got %s", r.HostID)
	}
}

func TestRemovePlayerFreesSeatAndTurnSlot(t *testing.T) {
	r := testRoomWithPlayers("Ava", "Bela", "Cyrus")
	r.PendingClueGivers = idSet(r.TurnOrder)
	removed := r.Players[1].ID
	removePlayer(r, removed)
	if r.findPlayer(removed) != nil {
		t.Fatalf("expected player removed from roster")
	}
	for _, id := range r.TurnOrder {
		if id == removed {
			t.Fatalf("expected player removed from turn order")
		}
	}
	if _, ok := r.PendingClueGivers[removed]; ok {
		t.Fatalf("expected player removed from pending clue givers")
	}
}

func TestSweepReapsExpiredSeats(t *testing.T) {
	s := New(testConfig())
	room, _, err := s.registry.CreateRoom("Ava", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	t.Cleanup(func() { s.cancelRoomTimers(room.Code) })

	var gone string
	if _, err := s.registry.Update(room.Code, func(r *Room) error {
		p := newPlayer("Bela")
		p.Connected = false
		p.DisconnectedAt = timeNowUTC().Add(-2 * time.Hour)
		r.Players = append(r.Players, p)
		gone = p.ID
		return nil
	}); err != nil {
		t.Fatalf("seat player: %v", err)
	}

	s.sweepOnce()

	got, ok := s.registry.Get(room.Code)
	if !ok {
		t.Fatalf("expected room to survive")
	}
	if got.findPlayer(gone) != nil {
		t.Fatalf("expected expired seat reaped")
	}
}

func TestSweepDestroysEmptiedRoom(t *testing.T) {
	s := New(testConfig())
	room, host, err := s.registry.CreateRoom("Ava", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := s.registry.Update(room.Code, func(r *Room) error {
		markDisconnected(r, host.ID)
		r.Players[0].DisconnectedAt = timeNowUTC().Add(-2 * time.Hour)
		return nil
	}); err != nil {
		t.Fatalf("disconnect host: %v", err)
	}

	s.sweepOnce()

	if _, ok := s.registry.Get(room.Code); ok {
		t.Fatalf("expected empty room destroyed")
	}
}

func TestSweepForceAdvancesWhenClueGiverGone(t *testing.T) {
	s := New(testConfig())
	room, _, err := s.registry.CreateRoom("Ava", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	t.Cleanup(func() { s.cancelRoomTimers(room.Code) })

	if _, err := s.registry.Update(room.Code, func(r *Room) error {
		r.Players = append(r.Players, newPlayer("Bela"), newPlayer("Cyrus"))
		r.TurnOrder = []string{r.Players[0].ID, r.Players[1].ID, r.Players[2].ID}
		r.PendingClueGivers = idSet(r.TurnOrder)
		r.RoundNumber = 1
		r.Phase = phasePlaying
		r.CurrentClueGiverID = r.Players[0].ID
		r.CurrentMovie = "Pushpa"
		r.RoundEndsAt = timeNowUTC().Add(30 * time.Second)
		markDisconnected(r, r.Players[0].ID)
		return nil
	}); err != nil {
		t.Fatalf("stage room: %v", err)
	}

	s.sweepOnce()

	got, ok := s.registry.Get(room.Code)
	if !ok {
		t.Fatalf("expected room to survive")
	}
	if got.Phase != phaseBreak {
		t.Fatalf("expected break after forced advance, got %q", got.Phase)
	}
	if len(got.History) != 1 || got.History[0].Reason == "" {
		t.Fatalf("expected annotated history entry, got %+v", got.History)
	}
}
