package analytics

import (
	"math"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

const (
	roundAmountUnit = 1000.0
	rapidHopGap     = 5 * time.Minute
)

// SuspicionScore rates a path of hops from 0 to 100 as the sum of four
// capped factors: share of round amounts (up to 30), share of hop gaps under
// five minutes (up to 30), path length (3 per hop, up to 20) and amount
// consistency (20 when the coefficient of variation is under 0.1, 10 under 0.3).
func SuspicionScore(hops []entity.Transaction) float64 {
	if len(hops) == 0 {
		return 0
	}

	score := 0.0

	round := 0
	for _, tx := range hops {
		if IsRoundAmount(tx.Amount) {
			round++
		}
	}
	score += float64(round) / float64(len(hops)) * 30

	if gaps := len(hops) - 1; gaps > 0 {
		rapid := 0
		for i := 1; i < len(hops); i++ {
			if absDuration(hops[i].Timestamp.Sub(hops[i-1].Timestamp)) < rapidHopGap {
				rapid++
			}
		}
		score += float64(rapid) / float64(gaps) * 30
	}

	score += math.Min(float64(len(hops))*3, 20)

	amounts := make([]float64, len(hops))
	for i, tx := range hops {
		amounts[i] = tx.Amount
	}
	if cv, ok := coefficientOfVariation(amounts); ok {
		switch {
		case cv < 0.1:
			score += 20
		case cv < 0.3:
			score += 10
		}
	}

	return math.Min(score, 100)
}

// IsRoundAmount reports amounts of at least 1000 that are whole multiples of 1000
func IsRoundAmount(amount float64) bool {
	return amount >= roundAmountUnit && math.Mod(amount, roundAmountUnit) == 0
}

// coefficientOfVariation returns the population standard deviation over the
// mean. It is undefined (ok false) for empty input or a zero mean.
func coefficientOfVariation(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0, false
	}

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / mean, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
