package server

import "time"

const (
	phaseLobby   = "lobby"
	phasePlaying = "playing"
	phaseBreak   = "break"
	phaseEnded   = "ended"
)

const (
	maxPlayers = 15
	minPlayers = 2

	minRounds     = 1
	maxRounds     = 30
	defaultRounds = 8

	minTimeLimitSec     = 15
	maxTimeLimitSec     = 180
	defaultTimeLimitSec = 45

	minHintRevealWords     = 0
	maxHintRevealWords     = 3
	defaultHintRevealWords = 3

	maxBoardStrokes  = 4000
	trimBoardStrokes = 3000
	maxGuessEvents   = 200
	trimGuessEvents  = 150

	timeoutPenaltyPoints = 2
)

type Settings struct {
	Rounds          int `json:"rounds"`
	TimeLimitSec    int `json:"timeLimitSec"`
	HintRevealWords int `json:"hintRevealWords"`
}

func defaultSettings() Settings {
	return Settings{
		Rounds:          defaultRounds,
		TimeLimitSec:    defaultTimeLimitSec,
		HintRevealWords: defaultHintRevealWords,
	}
}

// Player is a seat in a room. The ID doubles as the reconnect token and
// stays stable across transport drops; DisconnectedAt is zero while connected.
type Player struct {
	ID             string
	Name           string
	Score          int
	Connected      bool
	DisconnectedAt time.Time
}

type Stroke struct {
	X1       float64 `json:"x1"`
	Y1       float64 `json:"y1"`
	X2       float64 `json:"x2"`
	Y2       float64 `json:"y2"`
	Size     float64 `json:"size"`
	Color    string  `json:"color"`
	PlayerID string  `json:"playerId"`
}

type GuessEvent struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	Correct  bool      `json:"correct"`
	At       time.Time `json:"at"`
}

// HistoryEntry records one completed round.
type HistoryEntry struct {
	RoundNumber     int        `json:"roundNumber"`
	ClueGiverID     string     `json:"clueGiverId"`
	Movie           string     `json:"movie"`
	WinnerID        string     `json:"winnerId,omitempty"`
	TimedOut        bool       `json:"timedOut"`
	GuessedAt       *time.Time `json:"guessedAt,omitempty"`
	StrokeCount     int        `json:"strokeCount"`
	CorrectGuessers int        `json:"correctGuessersCount"`
	DrawerPoints    int        `json:"drawerPoints,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// Room is one game instance. All mutation goes through Registry.Update so
// handlers and timer callbacks never interleave mid-step.
type Room struct {
	Code     string
	HostID   string
	Players  []*Player
	Phase    string
	Settings Settings

	RoundNumber        int
	TurnOrder          []string
	TurnIndex          int
	PendingClueGivers  map[string]struct{}
	CurrentClueGiverID string

	CurrentMovie string
	MovieSource  string
	UsedMovies   map[string]struct{}

	RoundEndsAt       time.Time
	NextRoundStartsAt time.Time
	GameClosesAt      time.Time

	Guesses              []GuessEvent
	BoardStrokes         []Stroke
	CorrectGuessers      map[string]struct{}
	CorrectGuesserPoints map[string]int
	FirstCorrectGuesser  string
	AlmostNotified       map[string]struct{}

	History   []HistoryEntry
	CreatedAt time.Time
}

func (r *Room) findPlayer(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) findPlayerByName(name string) *Player {
	for _, p := range r.Players {
		if equalFoldName(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) connectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// eligibleGuessers are the connected players other than the clue-giver.
func (r *Room) eligibleGuessers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected && p.ID != r.CurrentClueGiverID {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) allEligibleGuessersCorrect() bool {
	eligible := r.eligibleGuessers()
	if len(eligible) == 0 {
		return false
	}
	for _, p := range eligible {
		if _, ok := r.CorrectGuessers[p.ID]; !ok {
			return false
		}
	}
	return true
}

// remainingTimeRatio is the fraction of the round's time budget left at now,
// clamped to [0,1]. Zero when no round deadline is set.
func (r *Room) remainingTimeRatio(now time.Time) float64 {
	if r.RoundEndsAt.IsZero() {
		return 0
	}
	total := float64(r.Settings.TimeLimitSec) * 1000
	if total <= 0 {
		return 0
	}
	remaining := float64(r.RoundEndsAt.Sub(now).Milliseconds())
	return clamp01(remaining / total)
}

func (r *Room) resetRoundState() {
	r.Guesses = nil
	r.BoardStrokes = nil
	r.CorrectGuessers = make(map[string]struct{})
	r.CorrectGuesserPoints = make(map[string]int)
	r.FirstCorrectGuesser = ""
	r.AlmostNotified = make(map[string]struct{})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
