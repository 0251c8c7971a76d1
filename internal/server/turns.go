package server

// connectedTurnOrderIDs returns the turn order filtered to connected players.
// Connected players missing from the order (joined mid-game, or reconnected
// after a reap dropped them) are appended in seating order so a refill always
// readmits them.
func connectedTurnOrderIDs(r *Room) []string {
	seen := make(map[string]struct{}, len(r.TurnOrder))
	var out []string
	for _, id := range r.TurnOrder {
		if p := r.findPlayer(id); p != nil && p.Connected {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	for _, p := range r.connectedPlayers() {
		if _, ok := seen[p.ID]; !ok {
			out = append(out, p.ID)
		}
	}
	return out
}

// nextClueGiver advances the rotation cursor to the next connected player,
// restricted to allowed when non-nil. The turn order is first re-derived from
// current membership: departed players drop out, newcomers are appended at
// the end, and the relative order of everyone else is preserved - it is never
// re-shuffled mid-game. Scans at most one full cycle and reports false when
// no candidate qualifies - callers treat that as the game being over.
func nextClueGiver(r *Room, allowed map[string]struct{}) (string, bool) {
	ordered := make([]string, 0, len(r.TurnOrder))
	seen := make(map[string]struct{}, len(r.TurnOrder))
	for _, id := range r.TurnOrder {
		if r.findPlayer(id) != nil {
			ordered = append(ordered, id)
			seen[id] = struct{}{}
		}
	}
	for _, p := range r.Players {
		if _, ok := seen[p.ID]; !ok {
			ordered = append(ordered, p.ID)
		}
	}
	r.TurnOrder = ordered
	if len(r.TurnOrder) == 0 {
		return "", false
	}

	for tries := len(r.TurnOrder); tries > 0; tries-- {
		r.TurnIndex = (r.TurnIndex + 1) % len(r.TurnOrder)
		candidateID := r.TurnOrder[r.TurnIndex]
		candidate := r.findPlayer(candidateID)
		if candidate == nil || !candidate.Connected {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[candidateID]; !ok {
				continue
			}
		}
		return candidateID, true
	}
	return "", false
}
