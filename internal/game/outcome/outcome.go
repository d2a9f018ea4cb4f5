package outcome

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/nardotini/pump-dump-server/internal/model"
)

// Probability bounds for the house-edge bias. The clamp limits how far the
// bias may skew a round regardless of pot imbalance.
const (
	baseProbability = 0.50
	favoredShift    = 0.52
	unfavoredShift  = 0.48
	jitterRange     = 0.05
	minProbability  = 0.40
	maxProbability  = 0.60
)

// Pick chooses the round result from the two pots and the configured house
// edge. It is a pure function of its inputs and the supplied random source:
// a fixed source always yields the same sequence of results.
//
// The side whose victory would obligate the house to a smaller payout gets a
// slight probability bump, jittered and clamped so outcomes stay close to a
// fair coin.
func Pick(rnd *rand.Rand, pumpPot, dumpPot decimal.Decimal, houseEdge float64) model.Side {
	if pumpPot.IsZero() && dumpPot.IsZero() {
		if rnd.Intn(2) == 0 {
			return model.Pump
		}

		return model.Dump
	}

	keep := 1 - houseEdge

	// Payout the house would owe if the given side wins.
	pumpPayout := dumpPot.InexactFloat64() * keep
	dumpPayout := pumpPot.InexactFloat64() * keep

	pumpProbability := baseProbability

	if pumpPayout < dumpPayout {
		pumpProbability = favoredShift
	} else if dumpPayout < pumpPayout {
		pumpProbability = unfavoredShift
	}

	pumpProbability += (rnd.Float64()*2 - 1) * jitterRange

	if pumpProbability < minProbability {
		pumpProbability = minProbability
	}
	if pumpProbability > maxProbability {
		pumpProbability = maxProbability
	}

	if rnd.Float64() < pumpProbability {
		return model.Pump
	}

	return model.Dump
}
