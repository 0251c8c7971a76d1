package server

import (
	"sort"
	"time"
)

// Payload caps. The full guess and history logs stay in the room; snapshots
// carry only the tail a client actually renders.
const (
	snapshotGuessLimit   = 15
	snapshotHistoryLimit = 8
)

// buildRoomSnapshot projects the room into the per-viewer payload pushed on
// every change and every sweep tick. Pure except for reading now; calling it
// twice with the same room and clock yields the same payload. The secret
// title only ever appears for the clue-giver; everyone else sees the hint.
func buildRoomSnapshot(r *Room, viewerID string, now time.Time) map[string]any {
	players := scoreboard(r)
	seats := make([]map[string]any, 0, len(players))
	for _, p := range players {
		seats = append(seats, map[string]any{
			"id":        p.ID,
			"name":      p.Name,
			"score":     p.Score,
			"connected": p.Connected,
			"isHost":    p.ID == r.HostID,
		})
	}

	snap := map[string]any{
		"code":              r.Code,
		"phase":             r.Phase,
		"hostId":            r.HostID,
		"you":               viewerID,
		"players":           seats,
		"minPlayers":        minPlayers,
		"maxPlayers":        maxPlayers,
		"settings":          r.Settings,
		"settingsBounds":    settingsBounds(),
		"roundNumber":       r.RoundNumber,
		"totalRounds":       r.Settings.Rounds,
		"clueGiverId":       r.CurrentClueGiverID,
		"roundEndsAt":       nullableTime(r.RoundEndsAt),
		"nextRoundStartsAt": nullableTime(r.NextRoundStartsAt),
		"gameClosesAt":      nullableTime(r.GameClosesAt),
		"strokeCount":       len(r.BoardStrokes),
		"guesses":           snapshotGuesses(r, viewerID),
		"history":           snapshotHistory(r),
	}

	if r.Phase == phasePlaying && r.CurrentMovie != "" {
		if viewerID == r.CurrentClueGiverID {
			snap["myMovie"] = r.CurrentMovie
			snap["movieSource"] = r.MovieSource
		} else {
			total := time.Duration(r.Settings.TimeLimitSec) * time.Second
			remaining := r.RoundEndsAt.Sub(now)
			snap["movieHint"] = buildHint(r.CurrentMovie, r.Settings.HintRevealWords, remaining, total)
			_, snap["youGuessedCorrectly"] = r.CorrectGuessers[viewerID]
		}
	}
	if r.Phase == phaseEnded {
		snap["winners"] = winnerIDs(r)
	}
	return snap
}

// scoreboard orders players by score descending, ties broken by name so the
// listing is stable across broadcasts.
func scoreboard(r *Room) []*Player {
	out := make([]*Player, len(r.Players))
	copy(out, r.Players)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// snapshotGuesses returns the tail of the guess feed. While the round is
// live, a correct guess would spell out the title, so its text is blanked for
// viewers who do not already know it.
func snapshotGuesses(r *Room, viewerID string) []map[string]any {
	start := 0
	if len(r.Guesses) > snapshotGuessLimit {
		start = len(r.Guesses) - snapshotGuessLimit
	}
	knowsTitle := viewerID == r.CurrentClueGiverID
	if !knowsTitle {
		_, knowsTitle = r.CorrectGuessers[viewerID]
	}
	out := make([]map[string]any, 0, len(r.Guesses)-start)
	for _, g := range r.Guesses[start:] {
		text := g.Text
		if g.Correct && r.Phase == phasePlaying && !knowsTitle && g.PlayerID != viewerID {
			text = ""
		}
		out = append(out, map[string]any{
			"playerId": g.PlayerID,
			"name":     g.Name,
			"text":     text,
			"correct":  g.Correct,
			"at":       g.At,
		})
	}
	return out
}

func snapshotHistory(r *Room) []HistoryEntry {
	start := 0
	if len(r.History) > snapshotHistoryLimit {
		start = len(r.History) - snapshotHistoryLimit
	}
	return r.History[start:]
}

// winnerIDs lists every player sharing the top score.
func winnerIDs(r *Room) []string {
	best := 0
	for i, p := range r.Players {
		if i == 0 || p.Score > best {
			best = p.Score
		}
	}
	var out []string
	for _, p := range r.Players {
		if p.Score == best {
			out = append(out, p.ID)
		}
	}
	return out
}

func settingsBounds() map[string]any {
	return map[string]any{
		"rounds":          map[string]int{"min": minRounds, "max": maxRounds, "default": defaultRounds},
		"timeLimitSec":    map[string]int{"min": minTimeLimitSec, "max": maxTimeLimitSec, "default": defaultTimeLimitSec},
		"hintRevealWords": map[string]int{"min": minHintRevealWords, "max": maxHintRevealWords, "default": defaultHintRevealWords},
	}
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
