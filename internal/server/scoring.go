package server

import "math"

const (
	guesserBasePoints   = 30
	guesserTimeBonusMax = 50
	guesserOrderBonus   = 35
	guesserFloor        = 20

	drawerBasePoints       = 25
	drawerAvgGuesserWeight = 0.45
	drawerTimeBonusMax     = 35
	drawerAllGuessedBonus  = 10
	drawerFloor            = 15
)

// guesserPoints scores one correct guess. Earlier and faster guesses are
// worth more: rank is alreadyCorrectCount+1, the first correct guesser gets
// the full order bonus and the last gets none. With a single eligible guesser
// the order factor is 1.
func guesserPoints(eligibleCount, alreadyCorrectCount int, remainingTimeRatio float64) int {
	rank := alreadyCorrectCount + 1
	orderFactor := 1.0
	if eligibleCount > 1 {
		orderFactor = float64(eligibleCount-rank) / float64(eligibleCount-1)
	}
	timeBonus := int(math.Round(guesserTimeBonusMax * clamp01(remainingTimeRatio)))
	orderBonus := int(math.Round(guesserOrderBonus * clamp01(orderFactor)))
	points := guesserBasePoints + timeBonus + orderBonus
	if points < guesserFloor {
		return guesserFloor
	}
	return points
}

// drawerPoints scores the clue-giver once the round resolves with guesses.
// awarded holds the points each correct guesser received this round.
func drawerPoints(awarded []int, remainingTimeRatio float64, allGuessed bool) int {
	avg := 0.0
	if len(awarded) > 0 {
		sum := 0
		for _, p := range awarded {
			sum += p
		}
		avg = float64(sum) / float64(len(awarded))
	}
	points := drawerBasePoints
	points += int(math.Round(avg * drawerAvgGuesserWeight))
	points += int(math.Round(drawerTimeBonusMax * clamp01(remainingTimeRatio)))
	if allGuessed {
		points += drawerAllGuessedBonus
	}
	if points < drawerFloor {
		return drawerFloor
	}
	return points
}

// applyTimeoutPenalty deducts the fixed no-guess penalty, never below zero.
func applyTimeoutPenalty(p *Player) {
	if p == nil {
		return
	}
	p.Score -= timeoutPenaltyPoints
	if p.Score < 0 {
		p.Score = 0
	}
}
