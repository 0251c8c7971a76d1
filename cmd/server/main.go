package main

import (
	"context"
	"log"
	"net/http"

	"movie-sketch/internal/config"
	"movie-sketch/internal/server"
)

func main() {
	config.LoadDotEnv(".env")
	cfg := config.Load()

	srv := server.New(cfg)
	go srv.RunSweeper(context.Background())

	log.Printf("movie-sketch server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
