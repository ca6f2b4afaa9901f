// Package scoring implements weight-profile-driven composite scoring of
// county aggregates: normalized sub-scores, weighted components, fatal-flaw
// overrides, tier classification, and dense ranking.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidProfile indicates a weight profile failed validation and was
// not persisted.
var ErrInvalidProfile = eris.New("scoring: invalid weight profile")

// weightTolerance is the allowed floating-point slack when checking that a
// weight group sums to 1.0.
const weightTolerance = 0.01

// ComponentWeights are the five top-level weights. They must sum to 1.0.
type ComponentWeights struct {
	Financial  float64 `json:"financial" yaml:"financial" mapstructure:"financial"`
	Market     float64 `json:"market" yaml:"market" mapstructure:"market"`
	Growth     float64 `json:"growth" yaml:"growth" mapstructure:"growth"`
	Catalyst   float64 `json:"catalyst" yaml:"catalyst" mapstructure:"catalyst"`
	Regulatory float64 `json:"regulatory" yaml:"regulatory" mapstructure:"regulatory"`
}

// FinancialWeights weight the financial sub-scores. They must sum to 1.0.
type FinancialWeights struct {
	Yield     float64 `json:"yield" yaml:"yield" mapstructure:"yield"`
	Cushion   float64 `json:"cushion" yaml:"cushion" mapstructure:"cushion"`
	Breakeven float64 `json:"breakeven" yaml:"breakeven" mapstructure:"breakeven"`
}

// MarketWeights weight the market sub-scores. They must sum to 1.0.
type MarketWeights struct {
	Saturation float64 `json:"saturation" yaml:"saturation" mapstructure:"saturation"`
	Rent       float64 `json:"rent" yaml:"rent" mapstructure:"rent"`
	Demand     float64 `json:"demand" yaml:"demand" mapstructure:"demand"`
}

// GrowthWeights weight the growth sub-scores. They must sum to 1.0.
type GrowthWeights struct {
	Population float64 `json:"population" yaml:"population" mapstructure:"population"`
	Income     float64 `json:"income" yaml:"income" mapstructure:"income"`
	Permits    float64 `json:"permits" yaml:"permits" mapstructure:"permits"`
}

// TierThresholds are the minimum composite scores for tiers A through D,
// strictly descending. A composite below D classifies as F.
type TierThresholds struct {
	A float64 `json:"a" yaml:"a" mapstructure:"a"`
	B float64 `json:"b" yaml:"b" mapstructure:"b"`
	C float64 `json:"c" yaml:"c" mapstructure:"c"`
	D float64 `json:"d" yaml:"d" mapstructure:"d"`
}

// FatalFlawThresholds are absolute limits checked against raw inputs,
// independent of the composite. A value <= 0 disables that check.
type FatalFlawThresholds struct {
	MinYieldPct       float64 `json:"min_yield_pct" yaml:"min_yield_pct" mapstructure:"min_yield_pct"`
	MaxSaturationSqft float64 `json:"max_saturation_sqft" yaml:"max_saturation_sqft" mapstructure:"max_saturation_sqft"`
	MinCushionPts     float64 `json:"min_cushion_pts" yaml:"min_cushion_pts" mapstructure:"min_cushion_pts"`
}

// WeightProfile is a named, versioned scoring configuration. Profiles are
// immutable once saved; edits create a new version.
type WeightProfile struct {
	ID        string    `json:"id" yaml:"-"`
	Name      string    `json:"name" yaml:"name"`
	Version   int       `json:"version" yaml:"version"`
	Active    bool      `json:"active" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	Components ComponentWeights    `json:"components" yaml:"components"`
	Financial  FinancialWeights    `json:"financial" yaml:"financial"`
	Market     MarketWeights       `json:"market" yaml:"market"`
	Growth     GrowthWeights       `json:"growth" yaml:"growth"`
	Tiers      TierThresholds      `json:"tiers" yaml:"tiers"`
	FatalFlaws FatalFlawThresholds `json:"fatal_flaws" yaml:"fatal_flaws"`
}

// DefaultProfile returns the baseline profile shipped with the tool.
func DefaultProfile() WeightProfile {
	return WeightProfile{
		Name:    "baseline",
		Version: 1,
		Components: ComponentWeights{
			Financial:  0.35,
			Market:     0.25,
			Growth:     0.20,
			Catalyst:   0.10,
			Regulatory: 0.10,
		},
		Financial: FinancialWeights{Yield: 0.45, Cushion: 0.30, Breakeven: 0.25},
		Market:    MarketWeights{Saturation: 0.45, Rent: 0.30, Demand: 0.25},
		Growth:    GrowthWeights{Population: 0.40, Income: 0.30, Permits: 0.30},
		Tiers:     TierThresholds{A: 80, B: 65, C: 50, D: 35},
		FatalFlaws: FatalFlawThresholds{
			MinYieldPct:       5.0,
			MaxSaturationSqft: 12.0,
			MinCushionPts:     -1.0,
		},
	}
}

// Validate checks the profile's internal consistency. All violations are
// collected and reported together; an invalid profile must never be saved.
func (p *WeightProfile) Validate() error {
	var errs []string

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name must not be empty")
	}
	if p.Version < 1 {
		errs = append(errs, "version must be >= 1")
	}

	groups := []struct {
		name    string
		weights []float64
	}{
		{"components", []float64{p.Components.Financial, p.Components.Market,
			p.Components.Growth, p.Components.Catalyst, p.Components.Regulatory}},
		{"financial", []float64{p.Financial.Yield, p.Financial.Cushion, p.Financial.Breakeven}},
		{"market", []float64{p.Market.Saturation, p.Market.Rent, p.Market.Demand}},
		{"growth", []float64{p.Growth.Population, p.Growth.Income, p.Growth.Permits}},
	}
	for _, g := range groups {
		var sum float64
		for _, w := range g.weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s weights must be >= 0", g.name))
				break
			}
		}
		for _, w := range g.weights {
			sum += w
		}
		if math.Abs(sum-1.0) > weightTolerance {
			errs = append(errs, fmt.Sprintf("%s weights must sum to 1.0, got %.3f", g.name, sum))
		}
	}

	if !(p.Tiers.A > p.Tiers.B && p.Tiers.B > p.Tiers.C && p.Tiers.C > p.Tiers.D) {
		errs = append(errs, fmt.Sprintf(
			"tier thresholds must be strictly descending, got a=%.1f b=%.1f c=%.1f d=%.1f",
			p.Tiers.A, p.Tiers.B, p.Tiers.C, p.Tiers.D))
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidProfile, "%s", strings.Join(errs, "; "))
	}
	return nil
}
