package server

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "AAAAAA"
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf)
}

// shuffledIDs returns a uniform random permutation of ids.
func shuffledIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			continue
		}
		j := int(n.Int64())
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func equalFoldName(a, b string) bool {
	return strings.EqualFold(a, b)
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}
