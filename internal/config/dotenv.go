package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Addr                   string
	StaticDir              string
	MovieAPIURL            string
	MovieAPITimeoutSeconds int
	RoundBreakSeconds      int
	DisconnectGraceSeconds int
	GameCloseDelaySeconds  int
	SweepIntervalSeconds   int
}

func Default() Config {
	return Config{
		Addr:                   ":3001",
		StaticDir:              "public",
		MovieAPIURL:            "https://random-movie-api-872s.onrender.com/random-telugu-movie",
		MovieAPITimeoutSeconds: 8,
		RoundBreakSeconds:      10,
		DisconnectGraceSeconds: 90,
		GameCloseDelaySeconds:  10,
		SweepIntervalSeconds:   1,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Addr = ":" + raw
	}
	if raw := os.Getenv("STATIC_DIR"); raw != "" {
		cfg.StaticDir = raw
	}
	if raw := os.Getenv("MOVIE_API_URL"); raw != "" {
		cfg.MovieAPIURL = raw
	}
	if raw := os.Getenv("MOVIE_API_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MovieAPITimeoutSeconds = value
		}
	}
	if raw := os.Getenv("ROUND_BREAK_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RoundBreakSeconds = value
		}
	}
	if raw := os.Getenv("DISCONNECT_GRACE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DisconnectGraceSeconds = value
		}
	}
	if raw := os.Getenv("GAME_CLOSE_DELAY_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GameCloseDelaySeconds = value
		}
	}
	if raw := os.Getenv("SWEEP_INTERVAL_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SweepIntervalSeconds = value
		}
	}
	return cfg
}
