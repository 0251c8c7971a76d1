package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestRoomLookupUnknownCode(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/room/NOPE42")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["valid"] != false {
		t.Fatalf("expected valid=false, got %v", body)
	}
}

func TestRoomLookupExistingRoom(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	room, _, err := s.registry.CreateRoom("Ava", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/room/" + room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["valid"] != true || body["canJoin"] != true {
		t.Fatalf("expected joinable room, got %v", body)
	}
	if body["phase"] != phaseLobby {
		t.Fatalf("expected lobby phase, got %v", body["phase"])
	}
	if body["players"] != float64(1) {
		t.Fatalf("expected 1 player, got %v", body["players"])
	}
}

func TestRoomLookupCleansCode(t *testing.T) {
	s := New(testConfig())
	ts := newTestServer(t, s.Handler())
	t.Cleanup(ts.Close)

	room, _, err := s.registry.CreateRoom("Ava", "ABC123")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/room/abc123")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected lowercase code to resolve to %s, got status %d", room.Code, resp.StatusCode)
	}
}
