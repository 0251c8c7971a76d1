package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, tsURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tsURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

// readWSUntil reads messages until one of the wanted type arrives, failing on
// timeout. Broadcast updates interleave with direct replies, so tests skip
// past the types they are not asserting on.
func readWSUntil(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		var msg struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Type == eventType {
			return msg.Data
		}
	}
}

func TestWebsocketCreateAndJoin(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava"})
	joined := readWSUntil(t, hostConn, "room:joined", 5*time.Second)
	code, _ := joined["roomCode"].(string)
	if len(code) != 6 {
		t.Fatalf("expected 6-char room code, got %q", code)
	}
	if id, _ := joined["playerId"].(string); id == "" {
		t.Fatalf("expected player id in join ack")
	}
	update := readWSUntil(t, hostConn, "room:update", 5*time.Second)
	if update["phase"] != phaseLobby {
		t.Fatalf("expected lobby snapshot, got %v", update["phase"])
	}

	guestConn := dialWS(t, ts.URL)
	sendWS(t, guestConn, "room:join", map[string]any{"code": code, "name": "Bela"})
	if data := readWSUntil(t, guestConn, "room:joined", 5*time.Second); data["roomCode"] != code {
		t.Fatalf("expected guest joined to %s, got %v", code, data["roomCode"])
	}

	update = readWSUntil(t, hostConn, "room:update", 5*time.Second)
	players, _ := update["players"].([]any)
	if len(players) != 2 {
		t.Fatalf("expected 2 players in broadcast, got %d", len(players))
	}
}

func TestWebsocketJoinUnknownRoom(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL)
	sendWS(t, conn, "room:join", map[string]any{"code": "ZZZZZZ", "name": "Ava"})
	data := readWSUntil(t, conn, "room:error", 5*time.Second)
	if data["message"] != "Room not found" {
		t.Fatalf("expected room not found error, got %v", data["message"])
	}
}

func TestWebsocketDuplicateNameRejected(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava", "code": "ABC123"})
	readWSUntil(t, hostConn, "room:joined", 5*time.Second)

	guestConn := dialWS(t, ts.URL)
	sendWS(t, guestConn, "room:join", map[string]any{"code": "ABC123", "name": "ava"})
	data := readWSUntil(t, guestConn, "room:error", 5*time.Second)
	if data["message"] != "Name already taken" {
		t.Fatalf("expected duplicate name rejection, got %v", data["message"])
	}
}

func TestWebsocketRejoinByToken(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava", "code": "ABC123"})
	joined := readWSUntil(t, hostConn, "room:joined", 5*time.Second)
	playerID := joined["playerId"].(string)

	guestConn := dialWS(t, ts.URL)
	sendWS(t, guestConn, "room:join", map[string]any{"code": "ABC123", "name": "Bela"})
	readWSUntil(t, guestConn, "room:joined", 5*time.Second)

	_ = hostConn.Close()

	// The seat survives the drop; a fresh socket reclaims it with the token.
	rejoinConn := dialWS(t, ts.URL)
	sendWS(t, rejoinConn, "room:join", map[string]any{"code": "ABC123", "playerId": playerID})
	data := readWSUntil(t, rejoinConn, "room:joined", 5*time.Second)
	if data["playerId"] != playerID {
		t.Fatalf("expected same seat on rejoin, got %v", data["playerId"])
	}

	room, ok := s.registry.Get("ABC123")
	if !ok {
		t.Fatalf("room missing")
	}
	if p := room.findPlayer(playerID); p == nil || !p.Connected {
		t.Fatalf("expected seat reconnected, got %+v", p)
	}
}

func TestWebsocketRejoinByDisconnectedName(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava", "code": "ABC123"})
	readWSUntil(t, hostConn, "room:joined", 5*time.Second)

	guestConn := dialWS(t, ts.URL)
	sendWS(t, guestConn, "room:join", map[string]any{"code": "ABC123", "name": "Bela"})
	joined := readWSUntil(t, guestConn, "room:joined", 5*time.Second)
	belaID := joined["playerId"].(string)

	_ = guestConn.Close()
	waitForSeatDisconnected(t, s, "ABC123", belaID)

	// No token: the cleaned, case-folded name reclaims the seat.
	rejoinConn := dialWS(t, ts.URL)
	sendWS(t, rejoinConn, "room:join", map[string]any{"code": "ABC123", "name": "  bela "})
	data := readWSUntil(t, rejoinConn, "room:joined", 5*time.Second)
	if data["playerId"] != belaID {
		t.Fatalf("expected same seat reclaimed by name, got %v", data["playerId"])
	}

	var (
		reconnected bool
		seats       int
	)
	s.registry.View("ABC123", func(r *Room) {
		p := r.findPlayer(belaID)
		reconnected = p != nil && p.Connected
		seats = len(r.Players)
	})
	if !reconnected {
		t.Fatalf("expected seat reconnected")
	}
	if seats != 2 {
		t.Fatalf("expected no extra seat, got %d", seats)
	}
}

func waitForSeatDisconnected(t *testing.T, s *Server, code, playerID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var down bool
		s.registry.View(code, func(r *Room) {
			p := r.findPlayer(playerID)
			down = p != nil && !p.Connected
		})
		if down {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("seat %s never marked disconnected", playerID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketAlmostFeedbackSentOnce(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.cancelRoomTimers("ABC123") })

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava", "code": "ABC123"})
	hostJoined := readWSUntil(t, hostConn, "room:joined", 5*time.Second)
	hostID := hostJoined["playerId"].(string)

	guestConn := dialWS(t, ts.URL)
	sendWS(t, guestConn, "room:join", map[string]any{"code": "ABC123", "name": "Bela"})
	readWSUntil(t, guestConn, "room:joined", 5*time.Second)

	sendWS(t, hostConn, "room:start", nil)
	title, clueGiverID := waitForRoundLive(t, s, "ABC123")

	guesserConn := guestConn
	if clueGiverID != hostID {
		guesserConn = hostConn
	}

	near := title + "x"
	sendWS(t, guesserConn, "round:guess", map[string]any{"text": near})
	feedback := readWSUntil(t, guesserConn, "guess:feedback", 5*time.Second)
	if feedback["type"] != "almost" {
		t.Fatalf("expected almost feedback, got %v", feedback["type"])
	}

	// A second near-miss and an unrelated wrong guess produce broadcasts
	// but no further feedback. Feedback is written to the socket before the
	// matching broadcast, so three updates bound the wait.
	sendWS(t, guesserConn, "round:guess", map[string]any{"text": near})
	sendWS(t, guesserConn, "round:guess", map[string]any{"text": "zzzzzz"})
	deadline := time.Now().Add(5 * time.Second)
	updates := 0
	for updates < 3 {
		_ = guesserConn.SetReadDeadline(deadline)
		_, raw, err := guesserConn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for broadcasts: %v", err)
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Type == "guess:feedback" {
			t.Fatalf("expected almost feedback only once")
		}
		if msg.Type == "room:update" {
			updates++
		}
	}
}

func waitForRoundLive(t *testing.T, s *Server, code string) (string, string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var title, clueGiverID string
		s.registry.View(code, func(r *Room) {
			if r.Phase == phasePlaying && r.CurrentMovie != "" {
				title, clueGiverID = r.CurrentMovie, r.CurrentClueGiverID
			}
		})
		if title != "" {
			return title, clueGiverID
		}
		if time.Now().After(deadline) {
			t.Fatalf("round never went live in room %s", code)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketStartRequiresTwoPlayers(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	hostConn := dialWS(t, ts.URL)
	sendWS(t, hostConn, "room:create", map[string]any{"name": "Ava"})
	readWSUntil(t, hostConn, "room:joined", 5*time.Second)

	sendWS(t, hostConn, "room:start", nil)
	data := readWSUntil(t, hostConn, "room:error", 5*time.Second)
	if data["message"] != "Need at least 2 players" {
		t.Fatalf("expected player count rejection, got %v", data["message"])
	}
}
