package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"movie-sketch/internal/config"
)

// testConfig keeps tests offline: an empty API URL makes every title pick
// come from the local pool.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.MovieAPIURL = ""
	return cfg
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}
