package scoring

// Piecewise-linear transforms from raw facts to 0-100 sub-scores. Each
// transform has fixed breakpoints: at or beyond the "excellent" breakpoint
// the score is 100, at or beyond the "poor" breakpoint it is 0, and the
// score interpolates linearly in between. A missing raw input substitutes
// the neutral default for its field, the value that maps to a score of 50,
// so scoring always produces a result.

// Neutral defaults per raw input, substituted when the fact is unknown.
const (
	neutralYieldPct       = 8.0     // projected yield, pct
	neutralCushionPts     = 2.0     // rent cushion, pts over breakeven rent
	neutralBreakevenPct   = 77.5    // breakeven occupancy, pct
	neutralSaturationSqft = 7.5     // storage sqft per capita
	neutralRentPerSqft    = 1.2     // monthly asking rent, $/sqft
	neutralDemandPop      = 135_000 // aggregate population
	neutralGrowthPct      = 2.0     // annual growth, pct (all three legs)
	neutralCatalystSqft   = 250_000 // unmet catalyst demand, sqft
	neutralRegDifficulty  = 5.5     // jurisdiction difficulty, 1-10 scale
)

// scaleUp maps v from [poor, excellent] onto [0, 100], clamped. Higher raw
// values score higher.
func scaleUp(v, poor, excellent float64) float64 {
	if v >= excellent {
		return 100
	}
	if v <= poor {
		return 0
	}
	return (v - poor) / (excellent - poor) * 100
}

// scaleDown is scaleUp for fields where lower raw values score higher.
func scaleDown(v, excellent, poor float64) float64 {
	if v <= excellent {
		return 100
	}
	if v >= poor {
		return 0
	}
	return (poor - v) / (poor - excellent) * 100
}

func yieldScore(v float64) float64      { return scaleUp(v, 4, 12) }
func cushionScore(v float64) float64    { return scaleUp(v, -2, 6) }
func breakevenScore(v float64) float64  { return scaleDown(v, 60, 95) }
func saturationScore(v float64) float64 { return scaleDown(v, 3, 12) }
func rentScore(v float64) float64       { return scaleUp(v, 0.6, 1.8) }
func demandScore(v float64) float64     { return scaleUp(v, 20_000, 250_000) }
func growthScore(v float64) float64     { return scaleUp(v, -2, 6) }
func catalystScore(v float64) float64   { return scaleUp(v, 0, 500_000) }
func regulatoryScore(v float64) float64 { return scaleDown(v, 2, 9) }

// orNeutral resolves a nullable raw fact, substituting the field's neutral
// default when unknown. The second return reports whether the value was
// actually known; fatal-flaw checks only fire on known values.
func orNeutral(v *float64, neutral float64) (float64, bool) {
	if v == nil {
		return neutral, false
	}
	return *v, true
}
