package server

import (
	"strings"
	"time"
	"unicode"
)

type HintInfo struct {
	Text             string `json:"text"`
	TotalWords       int    `json:"totalWords"`
	TotalLetters     int    `json:"totalLetters"`
	RevealedLetters  int    `json:"revealedLetters"`
	MaxRevealLetters int    `json:"maxRevealLetters"`
}

func isHideableRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordRevealOrder lists the hideable rune positions of one word in disclosure
// order: second, last, first, then the remainder left to right. Leading with
// the second character keeps early hints from spelling out a readable prefix.
func wordRevealOrder(chars []rune) []int {
	var hideable []int
	for i, r := range chars {
		if isHideableRune(r) {
			hideable = append(hideable, i)
		}
	}
	if len(hideable) == 0 {
		return nil
	}

	var order []int
	seen := make(map[int]struct{})
	add := func(idx int) {
		if _, ok := seen[idx]; ok {
			return
		}
		seen[idx] = struct{}{}
		order = append(order, idx)
	}

	if len(hideable) > 1 {
		add(hideable[1])
	} else {
		add(hideable[0])
	}
	add(hideable[len(hideable)-1])
	add(hideable[0])
	for i := 2; i < len(hideable); i++ {
		add(hideable[i])
	}
	return order
}

// buildHint renders the masked title for the given reveal budget and round
// clock. Pure: recomputed per snapshot so the reveal always tracks wall-clock
// time. Unrevealed hideable characters become "-"; punctuation and spacing
// are always shown.
func buildHint(title string, revealWords int, remaining, total time.Duration) HintInfo {
	type hintWord struct {
		chars    []rune
		order    []int
		revealed map[int]struct{}
	}

	rawWords := strings.Fields(strings.TrimSpace(title))
	words := make([]hintWord, 0, len(rawWords))
	totalHideable := 0
	for _, w := range rawWords {
		chars := []rune(w)
		order := wordRevealOrder(chars)
		totalHideable += len(order)
		words = append(words, hintWord{chars: chars, order: order, revealed: make(map[int]struct{})})
	}

	configured := revealWords
	if configured < minHintRevealWords {
		configured = minHintRevealWords
	}
	if configured > maxHintRevealWords {
		configured = maxHintRevealWords
	}
	maxReveal := configured
	if totalHideable < maxReveal {
		maxReveal = totalHideable
	}
	revealCount := revealLetterCount(maxReveal, remaining, total)

	// Interleave the per-word orders breadth-first so every word starts
	// disclosing before any single word gives away too much.
	type slot struct{ wi, idx int }
	var global []slot
	for cursor := 0; len(global) < totalHideable; cursor++ {
		progressed := false
		for wi := range words {
			if cursor < len(words[wi].order) {
				global = append(global, slot{wi, words[wi].order[cursor]})
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for i := 0; i < revealCount && i < len(global); i++ {
		words[global[i].wi].revealed[global[i].idx] = struct{}{}
	}

	rendered := make([]string, 0, len(words))
	for _, w := range words {
		parts := make([]string, 0, len(w.chars))
		for idx, r := range w.chars {
			if !isHideableRune(r) {
				parts = append(parts, string(r))
				continue
			}
			if _, ok := w.revealed[idx]; ok {
				parts = append(parts, string(r))
			} else {
				parts = append(parts, "-")
			}
		}
		rendered = append(rendered, strings.Join(parts, " "))
	}

	return HintInfo{
		Text:             strings.Join(rendered, "   "),
		TotalWords:       len(words),
		TotalLetters:     totalHideable,
		RevealedLetters:  revealCount,
		MaxRevealLetters: maxReveal,
	}
}

// revealLetterCount maps round progress onto [0,cap]: floor(elapsed·(cap+1)),
// so the final letter lands just before the deadline rather than at it.
func revealLetterCount(maxReveal int, remaining, total time.Duration) int {
	if maxReveal <= 0 || total <= 0 {
		return 0
	}
	if remaining < 0 {
		remaining = 0
	}
	elapsedRatio := clamp01(1 - float64(remaining)/float64(total))
	count := int(elapsedRatio * float64(maxReveal+1))
	if count > maxReveal {
		count = maxReveal
	}
	return count
}
