package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/room/{code}", s.handleRoomLookup).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket)
	r.PathPrefix("/").Handler(s.staticHandler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRoomLookup lets the client validate a code before opening a socket.
// canJoin means a fresh player could take a seat right now; rejoining players
// get in regardless.
func (s *Server) handleRoomLookup(w http.ResponseWriter, r *http.Request) {
	code := cleanCode(mux.Vars(r)["code"])
	var payload map[string]any
	ok := s.registry.View(code, func(room *Room) {
		payload = map[string]any{
			"valid":   true,
			"phase":   room.Phase,
			"canJoin": room.Phase == phaseLobby && len(room.Players) < maxPlayers,
			"players": len(room.Players),
		}
	})
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// staticHandler serves the client bundle with an index.html fallback, so
// client-side routes like /room/ABC123 resolve after a page reload.
func (s *Server) staticHandler() http.Handler {
	dir := s.cfg.StaticDir
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}
