package server

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength  = 24
	maxCodeLength  = 8
	maxGuessLength = 60
	maxColorLength = 16
	maxTitleLength = 80

	minStrokeSize = 1
	maxStrokeSize = 24

	defaultStrokeColor = "#111111"
)

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

func cleanName(name string) string {
	return truncate(strings.TrimSpace(stripControl(name)), maxNameLength)
}

// cleanCode uppercases and strips anything outside A-Z0-9, capped at 8 chars.
func cleanCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= maxCodeLength {
			break
		}
	}
	return b.String()
}

func cleanGuessText(text string) string {
	return truncate(strings.TrimSpace(stripControl(text)), maxGuessLength)
}

func cleanMovieTitle(title string) string {
	return truncate(strings.TrimSpace(stripControl(title)), maxTitleLength)
}

// normalizeGuess folds a guess (or the title) for exact comparison:
// lowercase, NFKC, then letters and digits only.
func normalizeGuess(text string) string {
	folded := norm.NFKC.String(strings.ToLower(text))
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isAlmostCorrect reports a near-miss between normalized guess and answer:
// close in edit distance relative to length, but not an exact match.
func isAlmostCorrect(guess, answer string) bool {
	if guess == "" || answer == "" || guess == answer {
		return false
	}
	maxLen := len([]rune(guess))
	if n := len([]rune(answer)); n > maxLen {
		maxLen = n
	}
	if maxLen < 4 {
		return false
	}
	threshold := 2
	if maxLen <= 6 {
		threshold = 1
	}
	distance := levenshtein.ComputeDistance(guess, answer)
	return distance > 0 && distance <= threshold
}

// sanitizeSettings clamps each field into its advertised bounds. Zero or
// negative values are treated as absent and fall back to the defaults, so a
// partial update never zeroes a setting.
func sanitizeSettings(s Settings) Settings {
	out := defaultSettings()
	if s.Rounds > 0 {
		out.Rounds = clampInt(s.Rounds, minRounds, maxRounds)
	}
	if s.TimeLimitSec > 0 {
		out.TimeLimitSec = clampInt(s.TimeLimitSec, minTimeLimitSec, maxTimeLimitSec)
	}
	if s.HintRevealWords >= 0 {
		out.HintRevealWords = clampInt(s.HintRevealWords, minHintRevealWords, maxHintRevealWords)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// validateStroke normalizes an inbound stroke or rejects it. Coordinates are
// canvas-relative in [0,1]; the color is an opaque string the client renders.
func validateStroke(s Stroke, playerID string) (Stroke, bool) {
	coords := []float64{s.X1, s.Y1, s.X2, s.Y2}
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c > 1 {
			return Stroke{}, false
		}
	}
	if math.IsNaN(s.Size) || s.Size < minStrokeSize || s.Size > maxStrokeSize {
		return Stroke{}, false
	}
	color := truncate(s.Color, maxColorLength)
	if color == "" {
		color = defaultStrokeColor
	}
	return Stroke{
		X1:       s.X1,
		Y1:       s.Y1,
		X2:       s.X2,
		Y2:       s.Y2,
		Size:     s.Size,
		Color:    color,
		PlayerID: playerID,
	}, true
}
