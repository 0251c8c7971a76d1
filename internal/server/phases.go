package server

import (
	"context"
	"errors"
	"log"
	"time"
)

// Firing slack on the round timer: the deadline check tolerates a few
// milliseconds of scheduler skew so a timer that fires a hair early still
// counts as expired.
const (
	roundTimerSlack   = 50 * time.Millisecond
	deadlineTolerance = 5 * time.Millisecond
	maxHistoryEntries = 64
)

var errPhaseChanged = errors.New("phase changed")

// setupRound begins the next round: it resolves the secret title first, then
// stages the whole round in one registry step. A room that moved on (closed,
// ended, or re-entered a phase this setup was not scheduled from) makes the
// staging a no-op, so a slow title lookup can never publish a half-built
// round. Called from game start (Lobby) and from break expiry (Break).
func (s *Server) setupRound(code string) {
	var used map[string]struct{}
	if _, err := s.registry.Update(code, func(r *Room) error {
		if r.Phase != phaseLobby && r.Phase != phaseBreak {
			return errPhaseChanged
		}
		if r.RoundNumber < 1 {
			return errors.New("game not started")
		}
		used = make(map[string]struct{}, len(r.UsedMovies))
		for title := range r.UsedMovies {
			used[title] = struct{}{}
		}
		return nil
	}); err != nil {
		return
	}

	title, source := s.movies.Pick(context.Background(), code, used)

	var (
		ended       bool
		roundNumber int
		clueGiverID string
		limitSec    int
	)
	if _, err := s.registry.Update(code, func(r *Room) error {
		if r.Phase != phaseLobby && r.Phase != phaseBreak {
			return errPhaseChanged
		}
		if len(r.PendingClueGivers) == 0 {
			r.PendingClueGivers = idSet(connectedTurnOrderIDs(r))
		}
		id, ok := nextClueGiver(r, r.PendingClueGivers)
		if !ok {
			s.markEnded(r)
			ended = true
			return nil
		}
		r.CurrentClueGiverID = id
		r.resetRoundState()
		if source == movieSourceFallback {
			if len(r.UsedMovies) >= len(localMovieTitles) {
				r.UsedMovies = make(map[string]struct{})
			}
			r.UsedMovies[title] = struct{}{}
		}
		r.CurrentMovie = title
		r.MovieSource = source
		r.NextRoundStartsAt = time.Time{}
		r.RoundEndsAt = timeNowUTC().Add(time.Duration(r.Settings.TimeLimitSec) * time.Second)
		r.Phase = phasePlaying
		roundNumber = r.RoundNumber
		clueGiverID = id
		limitSec = r.Settings.TimeLimitSec
		return nil
	}); err != nil {
		return
	}

	s.cancelTimer(code, timerBreak)
	if ended {
		s.armClosure(code)
	} else {
		duration := time.Duration(limitSec)*time.Second + roundTimerSlack
		s.armTimer(code, timerRound, duration, func() {
			s.handleRoundTimeout(code)
		})
		log.Printf("round started room=%s round=%d clue_giver=%s", code, roundNumber, clueGiverID)
	}
	s.broadcastRoom(code)
}

// handleRoundTimeout fires when the round clock runs out: penalizes the
// clue-giver, records the round, and advances. A room that already moved past
// Playing (all-correct finish, closure) is left alone.
func (s *Server) handleRoundTimeout(code string) {
	var prevPhase, newPhase string
	_, err := s.registry.Update(code, func(r *Room) error {
		if r.Phase != phasePlaying {
			return errPhaseChanged
		}
		if !r.RoundEndsAt.IsZero() && timeNowUTC().Before(r.RoundEndsAt.Add(-deadlineTolerance)) {
			return errors.New("round deadline not reached")
		}
		prevPhase = r.Phase
		applyTimeoutPenalty(r.findPlayer(r.CurrentClueGiverID))
		s.appendHistory(r, HistoryEntry{
			RoundNumber:     r.RoundNumber,
			ClueGiverID:     r.CurrentClueGiverID,
			Movie:           r.CurrentMovie,
			WinnerID:        r.FirstCorrectGuesser,
			TimedOut:        true,
			StrokeCount:     len(r.BoardStrokes),
			CorrectGuessers: len(r.CorrectGuessers),
		})
		s.advanceRound(r)
		newPhase = r.Phase
		return nil
	})
	if err != nil {
		return
	}
	log.Printf("round timed out room=%s", code)
	s.applyPhaseTransition(code, prevPhase, newPhase)
	s.broadcastRoom(code)
}

// advanceRound implements round advancement: retire the finished clue-giver,
// drop disconnected pending turns, then move to Break, the next cycle, or the
// end of the game. Mutation only; the caller arms timers for the new phase.
func (s *Server) advanceRound(r *Room) {
	if r.CurrentClueGiverID != "" {
		delete(r.PendingClueGivers, r.CurrentClueGiverID)
	}
	connected := idSet(connectedTurnOrderIDs(r))
	for id := range r.PendingClueGivers {
		if _, ok := connected[id]; !ok {
			delete(r.PendingClueGivers, id)
		}
	}

	if len(r.PendingClueGivers) == 0 {
		if r.RoundNumber >= r.Settings.Rounds {
			s.markEnded(r)
			return
		}
		r.RoundNumber++
		r.PendingClueGivers = idSet(connectedTurnOrderIDs(r))
	}
	if len(r.PendingClueGivers) == 0 {
		s.markEnded(r)
		return
	}

	r.Phase = phaseBreak
	r.RoundEndsAt = time.Time{}
	r.CurrentMovie = ""
	r.MovieSource = ""
	r.CurrentClueGiverID = ""
	r.BoardStrokes = nil
	r.NextRoundStartsAt = timeNowUTC().Add(s.breakDuration())
}

// forceAdvanceRound ends the current round immediately (clue-giver left or
// was reaped). Recorded like a timeout but with the reason attached; no score
// penalty beyond what the annotation says.
func (s *Server) forceAdvanceRound(r *Room, reason string) {
	s.appendHistory(r, HistoryEntry{
		RoundNumber:     r.RoundNumber,
		ClueGiverID:     r.CurrentClueGiverID,
		Movie:           r.CurrentMovie,
		WinnerID:        r.FirstCorrectGuesser,
		TimedOut:        true,
		StrokeCount:     len(r.BoardStrokes),
		CorrectGuessers: len(r.CorrectGuessers),
		Reason:          reason,
	})
	s.advanceRound(r)
}

// finishRoundAllCorrect resolves a round where every eligible guesser got the
// title: awards the drawer and records the round. Caller holds the room via
// Update and has verified allEligibleGuessersCorrect.
func (s *Server) finishRoundAllCorrect(r *Room, now time.Time) {
	awarded := make([]int, 0, len(r.CorrectGuesserPoints))
	for _, points := range r.CorrectGuesserPoints {
		awarded = append(awarded, points)
	}
	points := drawerPoints(awarded, r.remainingTimeRatio(now), true)
	if clueGiver := r.findPlayer(r.CurrentClueGiverID); clueGiver != nil {
		clueGiver.Score += points
	}
	guessedAt := now
	s.appendHistory(r, HistoryEntry{
		RoundNumber:     r.RoundNumber,
		ClueGiverID:     r.CurrentClueGiverID,
		Movie:           r.CurrentMovie,
		WinnerID:        r.FirstCorrectGuesser,
		TimedOut:        false,
		GuessedAt:       &guessedAt,
		StrokeCount:     len(r.BoardStrokes),
		CorrectGuessers: len(r.CorrectGuessers),
		DrawerPoints:    points,
	})
	s.advanceRound(r)
}

// markEnded moves the room into its terminal phase. Only the closure timer
// runs from here on.
func (s *Server) markEnded(r *Room) {
	r.Phase = phaseEnded
	r.RoundEndsAt = time.Time{}
	r.NextRoundStartsAt = time.Time{}
	r.CurrentMovie = ""
	r.MovieSource = ""
	r.CurrentClueGiverID = ""
	r.BoardStrokes = nil
	r.GameClosesAt = timeNowUTC().Add(s.closeDelay())
}

// applyPhaseTransition arms whatever timer the room's new phase needs. Phases
// are passed out of the Update closure rather than read off the room pointer
// so nothing touches room state outside the registry lock. A repeat call for
// an unchanged phase is a no-op, otherwise it would keep pushing the break
// deadline out.
func (s *Server) applyPhaseTransition(code, prevPhase, newPhase string) {
	if newPhase == prevPhase {
		return
	}
	switch newPhase {
	case phaseBreak:
		s.cancelTimer(code, timerRound)
		s.armTimer(code, timerBreak, s.breakDuration(), func() {
			s.setupRound(code)
		})
	case phaseEnded:
		s.armClosure(code)
	}
}

func (s *Server) armClosure(code string) {
	s.cancelTimer(code, timerRound)
	s.cancelTimer(code, timerBreak)
	s.armTimer(code, timerClose, s.closeDelay(), func() {
		s.closeRoom(code, "Game completed")
	})
	log.Printf("game ended room=%s", code)
}

func (s *Server) appendHistory(r *Room, entry HistoryEntry) {
	r.History = append(r.History, entry)
	if len(r.History) > maxHistoryEntries {
		r.History = r.History[len(r.History)-maxHistoryEntries:]
	}
}

func (s *Server) breakDuration() time.Duration {
	return time.Duration(s.cfg.RoundBreakSeconds) * time.Second
}

func (s *Server) closeDelay() time.Duration {
	return time.Duration(s.cfg.GameCloseDelaySeconds) * time.Second
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
