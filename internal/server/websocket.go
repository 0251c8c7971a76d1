package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// wsHub tracks the live socket per (room, player). All writes go through the
// hub mutex; gorilla connections allow one writer at a time and the hub is
// that writer.
type wsHub struct {
	mu    sync.Mutex
	rooms map[string]map[string]*websocket.Conn
}

func newWSHub() *wsHub {
	return &wsHub{rooms: make(map[string]map[string]*websocket.Conn)}
}

// Attach registers conn as the player's socket, displacing a stale one from a
// previous transport. The displaced socket is closed so its read loop exits.
func (h *wsHub) Attach(code, playerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[code]
	if room == nil {
		room = make(map[string]*websocket.Conn)
		h.rooms[code] = room
	}
	if old, ok := room[playerID]; ok && old != conn {
		_ = old.Close()
	}
	room[playerID] = conn
}

// Detach drops the player's socket only if conn is still the registered one,
// so a reconnect that already displaced it is left alone.
func (h *wsHub) Detach(code, playerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[code]
	if room == nil {
		return
	}
	if current, ok := room[playerID]; ok && current == conn {
		delete(room, playerID)
		if len(room) == 0 {
			delete(h.rooms, code)
		}
	}
}

// HasConn reports whether any socket currently owns the player's seat.
func (h *wsHub) HasConn(code, playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[code][playerID]
	return ok
}

func (h *wsHub) SendPlayer(code, playerID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.rooms[code][playerID]; ok {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *wsHub) SendConn(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) BroadcastRoom(code string, payload any) {
	h.broadcastExcept(code, "", payload)
}

func (h *wsHub) BroadcastRoomExcept(code, exceptPlayerID string, payload any) {
	h.broadcastExcept(code, exceptPlayerID, payload)
}

func (h *wsHub) broadcastExcept(code, exceptPlayerID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for playerID, conn := range h.rooms[code] {
		if playerID == exceptPlayerID {
			continue
		}
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// CloseRoom closes every socket in the room and forgets them.
func (h *wsHub) CloseRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.rooms[code] {
		_ = conn.Close()
	}
	delete(h.rooms, code)
}

// wsSession is the per-connection state. roomCode and playerID are set once
// on a successful create or join and only read from the same read loop.
type wsSession struct {
	conn     *websocket.Conn
	limiter  *rate.Limiter
	roomCode string
	playerID string
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	wsEventRate  = 100
	wsEventBurst = 200
)

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected remote=%s", r.RemoteAddr)
	sess := &wsSession{
		conn:    conn,
		limiter: rate.NewLimiter(wsEventRate, wsEventBurst),
	}
	go s.readWS(sess)
}

func (s *Server) readWS(sess *wsSession) {
	defer s.handleDisconnect(sess)
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if !sess.limiter.Allow() {
			continue
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			continue
		}
		s.dispatchWS(sess, env)
	}
}

func (s *Server) dispatchWS(sess *wsSession, env wsEnvelope) {
	switch env.Type {
	case "room:create":
		s.wsCreateRoom(sess, env.Data)
	case "room:join":
		s.wsJoinRoom(sess, env.Data)
	case "room:leave":
		s.wsLeaveRoom(sess, "")
	case "room:updateSettings":
		s.wsUpdateSettings(sess, env.Data)
	case "room:transferHost":
		s.wsTransferHost(sess, env.Data)
	case "room:transferAndLeave":
		s.wsTransferAndLeave(sess, env.Data)
	case "room:start":
		s.wsStartGame(sess)
	case "board:stroke":
		s.wsBoardStroke(sess, env.Data)
	case "board:clear":
		s.wsBoardClear(sess)
	case "round:guess":
		s.wsGuess(sess, env.Data)
	}
}

func (s *Server) sendError(sess *wsSession, message string) {
	s.hub.SendConn(sess.conn, envelope("room:error", map[string]any{"message": message}))
}

func (s *Server) wsCreateRoom(sess *wsSession, data json.RawMessage) {
	if sess.roomCode != "" {
		s.sendError(sess, "Already in a room")
		return
	}
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	_ = json.Unmarshal(data, &req)
	name := cleanName(req.Name)
	if name == "" {
		s.sendError(sess, "Name required")
		return
	}
	room, host, err := s.registry.CreateRoom(name, cleanCode(req.Code))
	if err != nil {
		s.sendError(sess, "Room code already in use")
		return
	}
	sess.roomCode = room.Code
	sess.playerID = host.ID
	s.hub.Attach(room.Code, host.ID, sess.conn)
	s.hub.SendConn(sess.conn, envelope("room:joined", map[string]any{
		"roomCode": room.Code,
		"playerId": host.ID,
	}))
	log.Printf("room created room=%s host=%s", room.Code, host.ID)
	s.broadcastRoom(room.Code)
}

func (s *Server) wsJoinRoom(sess *wsSession, data json.RawMessage) {
	if sess.roomCode != "" {
		s.sendError(sess, "Already in a room")
		return
	}
	var req struct {
		Code     string `json:"code"`
		Name     string `json:"name"`
		PlayerID string `json:"playerId"`
	}
	_ = json.Unmarshal(data, &req)
	code := cleanCode(req.Code)
	name := cleanName(req.Name)

	var (
		joined *Player
		rejoin bool
	)
	_, err := s.registry.Update(code, func(r *Room) error {
		// Rejoin by token keeps the seat across transport drops,
		// regardless of phase.
		if req.PlayerID != "" {
			if p := r.findPlayer(req.PlayerID); p != nil {
				p.Connected = true
				p.DisconnectedAt = time.Time{}
				resolveHost(r)
				joined, rejoin = p, true
				return nil
			}
		}
		// A disconnected seat with the same name can be reclaimed,
		// covering clients that lost their token.
		if name != "" {
			if p := r.findPlayerByName(name); p != nil && !p.Connected {
				p.Connected = true
				p.DisconnectedAt = time.Time{}
				resolveHost(r)
				joined, rejoin = p, true
				return nil
			}
		}
		if name == "" {
			return errors.New("Name required")
		}
		if r.Phase != phaseLobby {
			return errors.New("Game already in progress")
		}
		if len(r.Players) >= maxPlayers {
			return errors.New("Room is full")
		}
		if p := r.findPlayerByName(name); p != nil {
			return errors.New("Name already taken")
		}
		p := newPlayer(name)
		r.Players = append(r.Players, p)
		joined = p
		return nil
	})
	if err != nil {
		if errors.Is(err, errRoomNotFound) {
			s.sendError(sess, "Room not found")
		} else {
			s.sendError(sess, err.Error())
		}
		return
	}

	sess.roomCode = code
	sess.playerID = joined.ID
	s.hub.Attach(code, joined.ID, sess.conn)
	s.hub.SendConn(sess.conn, envelope("room:joined", map[string]any{
		"roomCode": code,
		"playerId": joined.ID,
	}))
	if rejoin {
		s.sendBoardState(sess)
		log.Printf("player rejoined room=%s player=%s", code, joined.ID)
	} else {
		log.Printf("player joined room=%s player=%s name=%q", code, joined.ID, joined.Name)
	}
	s.broadcastRoom(code)
}

// sendBoardState replays the full canvas to one socket, used on rejoin so the
// board is not blank until the next stroke.
func (s *Server) sendBoardState(sess *wsSession) {
	var strokes []Stroke
	s.registry.View(sess.roomCode, func(r *Room) {
		strokes = append(strokes, r.BoardStrokes...)
	})
	if strokes == nil {
		strokes = []Stroke{}
	}
	s.hub.SendConn(sess.conn, envelope("board:state", map[string]any{"strokes": strokes}))
}

// wsLeaveRoom frees the seat immediately, unlike a transport drop which only
// starts the grace window. transferTo optionally hands the host role over
// first (room:transferAndLeave).
func (s *Server) wsLeaveRoom(sess *wsSession, transferTo string) {
	if sess.roomCode == "" {
		return
	}
	code, playerID := sess.roomCode, sess.playerID

	var (
		empty     bool
		advanced  bool
		prevPhase string
		newPhase  string
	)
	_, err := s.registry.Update(code, func(r *Room) error {
		prevPhase = r.Phase
		if transferTo != "" {
			target := r.findPlayer(transferTo)
			if target == nil || !target.Connected {
				return errors.New("Target player unavailable")
			}
			r.HostID = target.ID
		}
		removePlayer(r, playerID)
		if len(r.Players) == 0 {
			empty = true
			return nil
		}
		if r.Phase == phasePlaying && r.CurrentClueGiverID == playerID {
			s.forceAdvanceRound(r, "Clue giver left")
			advanced = true
		}
		newPhase = r.Phase
		return nil
	})
	if err != nil {
		s.sendError(sess, err.Error())
		return
	}

	s.hub.Detach(code, playerID, sess.conn)
	sess.roomCode = ""
	sess.playerID = ""
	log.Printf("player left room=%s player=%s", code, playerID)

	if empty {
		s.closeRoom(code, "")
		return
	}
	if advanced {
		s.applyPhaseTransition(code, prevPhase, newPhase)
	}
	s.broadcastRoom(code)
}

func (s *Server) wsUpdateSettings(sess *wsSession, data json.RawMessage) {
	if sess.roomCode == "" {
		return
	}
	var req Settings
	_ = json.Unmarshal(data, &req)
	_, err := s.registry.Update(sess.roomCode, func(r *Room) error {
		if r.HostID != sess.playerID {
			return errors.New("Only the host can change settings")
		}
		if r.Phase != phaseLobby {
			return errors.New("Settings are locked once the game starts")
		}
		r.Settings = sanitizeSettings(req)
		return nil
	})
	if err != nil {
		s.sendError(sess, err.Error())
		return
	}
	s.broadcastRoom(sess.roomCode)
}

func (s *Server) wsTransferHost(sess *wsSession, data json.RawMessage) {
	if sess.roomCode == "" {
		return
	}
	var req struct {
		TargetPlayerID string `json:"targetPlayerId"`
	}
	_ = json.Unmarshal(data, &req)
	_, err := s.registry.Update(sess.roomCode, func(r *Room) error {
		if r.HostID != sess.playerID {
			return errors.New("Only the host can transfer the host role")
		}
		target := r.findPlayer(req.TargetPlayerID)
		if target == nil || !target.Connected {
			return errors.New("Target player unavailable")
		}
		r.HostID = target.ID
		return nil
	})
	if err != nil {
		s.sendError(sess, err.Error())
		return
	}
	s.broadcastRoom(sess.roomCode)
}

func (s *Server) wsTransferAndLeave(sess *wsSession, data json.RawMessage) {
	var req struct {
		TargetPlayerID string `json:"targetPlayerId"`
	}
	_ = json.Unmarshal(data, &req)
	if req.TargetPlayerID == "" {
		s.sendError(sess, "Target player required")
		return
	}
	s.wsLeaveRoom(sess, req.TargetPlayerID)
}

func (s *Server) wsStartGame(sess *wsSession) {
	if sess.roomCode == "" {
		return
	}
	code := sess.roomCode
	_, err := s.registry.Update(code, func(r *Room) error {
		if r.HostID != sess.playerID {
			return errors.New("Only the host can start the game")
		}
		if r.Phase != phaseLobby || r.RoundNumber != 0 {
			return errors.New("Game already started")
		}
		if len(r.connectedPlayers()) < minPlayers {
			return errors.New("Need at least 2 players")
		}
		// The rotation is a permutation of every seat, including ones in
		// the disconnect grace window; the scan skips whoever is not
		// connected when their turn comes up.
		ids := make([]string, 0, len(r.Players))
		for _, p := range r.Players {
			ids = append(ids, p.ID)
		}
		r.RoundNumber = 1
		r.TurnOrder = shuffledIDs(ids)
		r.TurnIndex = -1
		r.PendingClueGivers = idSet(r.TurnOrder)
		return nil
	})
	if err != nil {
		s.sendError(sess, err.Error())
		return
	}
	log.Printf("game starting room=%s", code)
	s.setupRound(code)
}

func (s *Server) wsBoardStroke(sess *wsSession, data json.RawMessage) {
	if sess.roomCode == "" {
		return
	}
	var req Stroke
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	stroke, ok := validateStroke(req, sess.playerID)
	if !ok {
		return
	}
	_, err := s.registry.Update(sess.roomCode, func(r *Room) error {
		if r.Phase != phasePlaying || r.CurrentMovie == "" {
			return errors.New("round not live")
		}
		if r.CurrentClueGiverID != sess.playerID {
			return errors.New("only the clue giver draws")
		}
		r.BoardStrokes = append(r.BoardStrokes, stroke)
		if len(r.BoardStrokes) > maxBoardStrokes {
			r.BoardStrokes = r.BoardStrokes[len(r.BoardStrokes)-trimBoardStrokes:]
		}
		return nil
	})
	if err != nil {
		return
	}
	s.hub.BroadcastRoomExcept(sess.roomCode, sess.playerID, envelope("board:stroke", stroke))
}

func (s *Server) wsBoardClear(sess *wsSession) {
	if sess.roomCode == "" {
		return
	}
	_, err := s.registry.Update(sess.roomCode, func(r *Room) error {
		if r.Phase != phasePlaying || r.CurrentClueGiverID != sess.playerID {
			return errors.New("only the clue giver clears")
		}
		r.BoardStrokes = nil
		return nil
	})
	if err != nil {
		return
	}
	s.hub.BroadcastRoomExcept(sess.roomCode, sess.playerID, envelope("board:clear", map[string]any{}))
}

func (s *Server) wsGuess(sess *wsSession, data json.RawMessage) {
	if sess.roomCode == "" {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(data, &req)
	text := cleanGuessText(req.Text)
	if text == "" {
		return
	}
	code := sess.roomCode
	now := timeNowUTC()

	var (
		scored    bool
		almost    bool
		points    int
		prevPhase string
		newPhase  string
	)
	_, err := s.registry.Update(code, func(r *Room) error {
		prevPhase = r.Phase
		newPhase = r.Phase
		if r.Phase != phasePlaying || r.CurrentMovie == "" {
			return errors.New("round not live")
		}
		if sess.playerID == r.CurrentClueGiverID {
			return errors.New("clue giver cannot guess")
		}
		guesser := r.findPlayer(sess.playerID)
		if guesser == nil || !guesser.Connected {
			return errors.New("guesser not seated")
		}
		// A player who already answered keeps chatting in the feed but
		// is never re-scored and gets no further hints.
		_, alreadyCorrect := r.CorrectGuessers[sess.playerID]

		normalized := normalizeGuess(text)
		answer := normalizeGuess(r.CurrentMovie)
		correct := normalized != "" && normalized == answer

		if correct && !alreadyCorrect {
			scored = true
			eligible := len(r.eligibleGuessers())
			points = guesserPoints(eligible, len(r.CorrectGuessers), r.remainingTimeRatio(now))
			guesser.Score += points
			r.CorrectGuessers[sess.playerID] = struct{}{}
			r.CorrectGuesserPoints[sess.playerID] = points
			if r.FirstCorrectGuesser == "" {
				r.FirstCorrectGuesser = sess.playerID
			}
		} else if !correct && !alreadyCorrect && isAlmostCorrect(normalized, answer) {
			if _, notified := r.AlmostNotified[sess.playerID]; !notified {
				r.AlmostNotified[sess.playerID] = struct{}{}
				almost = true
			}
		}

		r.Guesses = append(r.Guesses, GuessEvent{
			PlayerID: sess.playerID,
			Name:     guesser.Name,
			Text:     text,
			Correct:  correct,
			At:       now,
		})
		if len(r.Guesses) > maxGuessEvents {
			r.Guesses = r.Guesses[len(r.Guesses)-trimGuessEvents:]
		}

		if scored && r.allEligibleGuessersCorrect() {
			s.finishRoundAllCorrect(r, now)
		}
		newPhase = r.Phase
		return nil
	})
	if err != nil {
		return
	}

	if scored {
		s.hub.SendPlayer(code, sess.playerID, envelope("guess:feedback", map[string]any{
			"type":   "correct",
			"points": points,
		}))
		log.Printf("correct guess room=%s player=%s points=%d", code, sess.playerID, points)
	} else if almost {
		s.hub.SendPlayer(code, sess.playerID, envelope("guess:feedback", map[string]any{
			"type":    "almost",
			"message": "So close!",
		}))
	}
	s.applyPhaseTransition(code, prevPhase, newPhase)
	s.broadcastRoom(code)
}

// handleDisconnect runs when the read loop exits. The seat survives: it is
// marked disconnected and the sweeper reaps it only after the grace window.
func (s *Server) handleDisconnect(sess *wsSession) {
	_ = sess.conn.Close()
	if sess.roomCode == "" {
		return
	}
	code, playerID := sess.roomCode, sess.playerID
	s.hub.Detach(code, playerID, sess.conn)
	if s.hub.HasConn(code, playerID) {
		// A newer socket already reclaimed the seat.
		return
	}

	_, err := s.registry.Update(code, func(r *Room) error {
		if p := r.findPlayer(playerID); p == nil || !p.Connected {
			return errors.New("seat already released")
		}
		markDisconnected(r, playerID)
		return nil
	})
	if err != nil {
		return
	}
	log.Printf("ws disconnected room=%s player=%s", code, playerID)
	s.broadcastRoom(code)
}
