// Package prob prices binary outcomes: the probability that an asset
// finishes above a reference price given remaining time and volatility,
// and the blend of that estimate with the market's own implied
// probability.
package prob

import "math"

const secondsPerYear = 365.25 * 24 * 3600

// ProbabilityAbove returns P(price at expiry > reference) under zero-drift
// lognormal dynamics: the standard N(d2) formulation. At or past expiry it
// returns a near-certain outcome based on which side of the reference the
// current price sits.
func ProbabilityAbove(current, reference, secondsRemaining, annualVol float64) float64 {
	if current <= 0 || reference <= 0 {
		return 0.5
	}
	if secondsRemaining <= 0 {
		switch {
		case current > reference:
			return 0.999
		case current < reference:
			return 0.001
		default:
			return 0.5
		}
	}
	if annualVol <= 0 {
		annualVol = 0.5
	}
	t := secondsRemaining / secondsPerYear
	sigmaT := annualVol * math.Sqrt(t)
	d2 := (math.Log(current/reference) - 0.5*annualVol*annualVol*t) / sigmaT
	return normCDF(d2)
}

// ProbabilityForSide returns the probability that the given directional
// bet wins: above the reference for up (+1), below for down (-1).
func ProbabilityForSide(dir int, current, reference, secondsRemaining, annualVol float64) float64 {
	above := ProbabilityAbove(current, reference, secondsRemaining, annualVol)
	if dir < 0 {
		return 1 - above
	}
	return above
}

// tokenWeight is the blend weight given to the live outcome-token price.
// The token price reflects the venue's whole participant base, including
// traders watching the resolution source, so it dominates the blend.
const tokenWeight = 0.6

// PriceSupport blends the live token price with the model estimate from
// the underlying's move since entry. When no fresh underlying data exists
// the token price stands alone.
func PriceSupport(tokenPrice, modelProb float64, underlyingFresh bool) float64 {
	if tokenPrice <= 0 || tokenPrice >= 1 {
		if underlyingFresh {
			return modelProb
		}
		return 0.5
	}
	if !underlyingFresh {
		return tokenPrice
	}
	return tokenWeight*tokenPrice + (1-tokenWeight)*modelProb
}

// SigmasToRecover returns how many standard deviations of underlying
// movement are required, in the remaining time, for the asset to cross
// back over the reference price. Used by the salvage exit: requirements
// beyond a few sigma will not happen while a counterparty still exists.
func SigmasToRecover(current, reference, secondsRemaining, annualVol float64) float64 {
	if current <= 0 || reference <= 0 || secondsRemaining <= 0 || annualVol <= 0 {
		return math.Inf(1)
	}
	sigmaT := annualVol * math.Sqrt(secondsRemaining/secondsPerYear)
	if sigmaT == 0 {
		return math.Inf(1)
	}
	return math.Abs(math.Log(reference/current)) / sigmaT
}

// normCDF is the standard normal CDF via the Abramowitz and Stegun
// polynomial approximation (7.1.26), accurate to ~1e-7.
func normCDF(x float64) float64 {
	if x < 0 {
		return 1 - normCDF(-x)
	}
	k := 1 / (1 + 0.2316419*x)
	poly := k * (0.319381530 + k*(-0.356563782+k*(1.781477937+k*(-1.821255978+k*1.330274429))))
	return 1 - math.Exp(-x*x/2)/math.Sqrt(2*math.Pi)*poly
}
