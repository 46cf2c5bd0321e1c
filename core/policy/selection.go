package policy

import (
	"math"
	"sort"

	"github.com/kilianp07/gridbalance/core/model"
)

// Score weights a battery's charge by its efficiency and internal resistance.
// A battery without a reported resistance gets a flat 10% bonus.
func Score(b model.Battery) float64 {
	bonus := 0.1
	if b.InternalResistance != 0 {
		bonus = 1 / (1 + b.InternalResistance)
	}
	return b.Charge * b.EffectiveEfficiency() * (1 + bonus)
}

// AutoCandidate returns the index of the battery best suited to run
// automatically for the given imbalance. bs must not be empty.
func AutoCandidate(bs []model.Battery, imbalance float64, th Thresholds) int {
	switch {
	case imbalance > float64(th.NeutralBand):
		idx := filter(bs, func(b model.Battery) bool { return b.Charge > th.MinSoC })
		return pickScore(bs, idx, func(s, best float64) bool { return s > best })
	case imbalance < -float64(th.NeutralBand):
		idx := filter(bs, func(b model.Battery) bool { return b.Charge < th.ChargeCeiling })
		return pickScore(bs, idx, func(s, best float64) bool { return s < best })
	default:
		return byCharge(bs, false)[len(bs)/2]
	}
}

// SelectAuto applies hysteresis between the previous automatic battery and
// the candidate. prev is -1 when no battery was automatic.
func SelectAuto(bs []model.Battery, prev, candidate int, imbalance float64, th Thresholds) int {
	if prev < 0 {
		return candidate
	}
	old := bs[prev].Charge
	diff := math.Abs(bs[candidate].Charge - old)
	inBand := old > th.MinSoC && old < th.ChargeCeiling
	switch {
	case diff < th.HysteresisSoC && inBand:
		return prev
	case !inBand:
		return candidate
	case math.Abs(imbalance) < float64(th.OverloadBand):
		return prev
	default:
		return candidate
	}
}

// PreviousAuto returns the index of the first battery flagged automatic, or -1.
func PreviousAuto(bs []model.Battery) int {
	for i, b := range bs {
		if b.IsAutomatic {
			return i
		}
	}
	return -1
}

// filter returns the indexes matching keep, or every index when none match.
func filter(bs []model.Battery, keep func(model.Battery) bool) []int {
	var idx []int
	for i, b := range bs {
		if keep(b) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		idx = make([]int, len(bs))
		for i := range bs {
			idx[i] = i
		}
	}
	return idx
}

// pickScore keeps the first index on ties.
func pickScore(bs []model.Battery, idx []int, better func(s, best float64) bool) int {
	best := idx[0]
	bestScore := Score(bs[best])
	for _, i := range idx[1:] {
		if s := Score(bs[i]); better(s, bestScore) {
			best, bestScore = i, s
		}
	}
	return best
}

// byCharge returns indexes ordered by charge, preserving input order on ties.
func byCharge(bs []model.Battery, descending bool) []int {
	idx := make([]int, len(bs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if descending {
			return bs[idx[a]].Charge > bs[idx[b]].Charge
		}
		return bs[idx[a]].Charge < bs[idx[b]].Charge
	})
	return idx
}
