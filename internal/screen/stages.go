package screen

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect-cli/internal/facts"
)

// Kill switch rule IDs. The audit trail records these per killed candidate.
const (
	RulePopulationMin = "population_min"
	RuleDensityMax    = "density_max"
	RuleDensityMin    = "density_min"
	RuleIncomeMin     = "income_min"
	RulePovertyMax    = "poverty_max"
	RuleRenterMax     = "renter_max"
	RuleFacilitiesMax = "facilities_max"
	RuleSqftCapMax    = "sqft_per_capita_max"
	RuleYieldMin      = "yield_min"
	RuleBreakevenMax  = "breakeven_max"
	RuleLandPriceMax  = "land_price_max"
)

// Stages returns the fixed stage sequence. Within each stage, switches
// evaluate in the order listed here and the first match wins.
func Stages() []Stage {
	return []Stage{
		{
			Index: 0,
			Name:  "demographics",
			Switches: []KillSwitch{
				killBelow(RulePopulationMin, "population",
					func(f *facts.ZIPFacts) *float64 { return f.Population },
					func(t Thresholds) float64 { return t.MinPopulation }),
				killAbove(RuleDensityMax, "density",
					func(f *facts.ZIPFacts) *float64 { return f.Density },
					func(t Thresholds) float64 { return t.MaxDensity }),
				killBelow(RuleDensityMin, "density",
					func(f *facts.ZIPFacts) *float64 { return f.Density },
					func(t Thresholds) float64 { return t.MinDensity }),
			},
			Metrics: func(f *facts.ZIPFacts) Metrics {
				return metricsFrom(map[string]*float64{
					"population": f.Population,
					"density":    f.Density,
				})
			},
		},
		{
			Index: 1,
			Name:  "market",
			Switches: []KillSwitch{
				killBelow(RuleIncomeMin, "median income",
					func(f *facts.ZIPFacts) *float64 { return f.MedianIncome },
					func(t Thresholds) float64 { return t.MinMedianIncome }),
				killAbove(RulePovertyMax, "poverty rate",
					func(f *facts.ZIPFacts) *float64 { return f.PovertyRatePct },
					func(t Thresholds) float64 { return t.MaxPovertyRate }),
				killAbove(RuleRenterMax, "renter share",
					func(f *facts.ZIPFacts) *float64 { return f.RenterSharePct },
					func(t Thresholds) float64 { return t.MaxRenterShare }),
			},
			Metrics: func(f *facts.ZIPFacts) Metrics {
				return metricsFrom(map[string]*float64{
					"median_income":    f.MedianIncome,
					"poverty_rate_pct": f.PovertyRatePct,
					"renter_share_pct": f.RenterSharePct,
				})
			},
		},
		{
			Index: 2,
			Name:  "saturation",
			Switches: []KillSwitch{
				killAbove(RuleFacilitiesMax, "competing facilities",
					func(f *facts.ZIPFacts) *float64 { return f.FacilityCount },
					func(t Thresholds) float64 { return t.MaxFacilities }),
				killAbove(RuleSqftCapMax, "sqft per capita",
					func(f *facts.ZIPFacts) *float64 { return f.SqftPerCapita },
					func(t Thresholds) float64 { return t.MaxSqftPerCapita }),
			},
			Metrics: func(f *facts.ZIPFacts) Metrics {
				return metricsFrom(map[string]*float64{
					"facility_count":  f.FacilityCount,
					"sqft_per_capita": f.SqftPerCapita,
				})
			},
		},
		{
			Index: 3,
			Name:  "feasibility",
			Switches: []KillSwitch{
				killBelow(RuleYieldMin, "projected yield",
					func(f *facts.ZIPFacts) *float64 { return f.ProjectedYieldPct },
					func(t Thresholds) float64 { return t.MinProjectedYield }),
				killAbove(RuleBreakevenMax, "breakeven occupancy",
					func(f *facts.ZIPFacts) *float64 { return f.BreakevenOccupancyPct },
					func(t Thresholds) float64 { return t.MaxBreakevenOcc }),
				killAbove(RuleLandPriceMax, "land price per acre",
					func(f *facts.ZIPFacts) *float64 { return f.LandPricePerAcre },
					func(t Thresholds) float64 { return t.MaxLandPricePerAc }),
			},
			Metrics: func(f *facts.ZIPFacts) Metrics {
				return metricsFrom(map[string]*float64{
					"projected_yield_pct":     f.ProjectedYieldPct,
					"breakeven_occupancy_pct": f.BreakevenOccupancyPct,
					"land_price_per_acre":     f.LandPricePerAcre,
				})
			},
		},
	}
}

// StageByIndex returns the stage with the given index.
func StageByIndex(index int) (Stage, error) {
	for _, st := range Stages() {
		if st.Index == index {
			return st, nil
		}
	}
	return Stage{}, eris.Errorf("screen: no stage %d", index)
}

// killBelow builds a switch that kills when the fact is below the threshold.
func killBelow(id, label string, fact func(*facts.ZIPFacts) *float64, threshold func(Thresholds) float64) KillSwitch {
	return KillSwitch{
		ID:          id,
		Description: label + " below minimum",
		Eval: func(f *facts.ZIPFacts, _ Metrics, t Thresholds) *Kill {
			v := fact(f)
			limit := threshold(t)
			if v == nil || limit <= 0 || *v >= limit {
				return nil
			}
			return &Kill{
				Reason:    fmt.Sprintf("%s %.1f below minimum %.1f", label, *v, limit),
				Threshold: limit,
				Observed:  *v,
			}
		},
	}
}

// killAbove builds a switch that kills when the fact exceeds the threshold.
func killAbove(id, label string, fact func(*facts.ZIPFacts) *float64, threshold func(Thresholds) float64) KillSwitch {
	return KillSwitch{
		ID:          id,
		Description: label + " above maximum",
		Eval: func(f *facts.ZIPFacts, _ Metrics, t Thresholds) *Kill {
			v := fact(f)
			limit := threshold(t)
			if v == nil || limit <= 0 || *v <= limit {
				return nil
			}
			return &Kill{
				Reason:    fmt.Sprintf("%s %.1f above maximum %.1f", label, *v, limit),
				Threshold: limit,
				Observed:  *v,
			}
		},
	}
}

// metricsFrom copies known (non-nil) facts into a metrics delta.
func metricsFrom(vals map[string]*float64) Metrics {
	m := make(Metrics, len(vals))
	for k, v := range vals {
		if v != nil {
			m[k] = *v
		}
	}
	return m
}
