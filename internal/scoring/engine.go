package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/facts"
	"github.com/sells-group/siteselect-cli/internal/rollup"
)

// ScoreRecord is the scoring result for one county under one profile. The
// raw input snapshot is retained so any composite can be traced back to the
// facts it was computed from.
type ScoreRecord struct {
	ProfileID         string             `json:"profile_id"`
	RunID             string             `json:"run_id"`
	CountyFIPS        string             `json:"county_fips"`
	Inputs            map[string]float64 `json:"inputs"`
	SubScores         map[string]float64 `json:"sub_scores"`
	ComponentScores   map[string]float64 `json:"component_scores"`
	Composite         float64            `json:"composite"`
	HasFatalFlaw      bool               `json:"has_fatal_flaw"`
	FatalFlaws        []string           `json:"fatal_flaws,omitempty"`
	Tier              string             `json:"tier"`
	Recommendation    string             `json:"recommendation"`
	Rank              *int               `json:"rank"`
	DataFreshnessDays int                `json:"data_freshness_days"`
	ScoredAt          time.Time          `json:"scored_at"`
}

// Result summarizes one ScoreAll invocation.
type Result struct {
	ProfileID string `json:"profile_id"`
	Counties  int    `json:"counties"`
	Fatal     int    `json:"fatal"`
	Ranked    int    `json:"ranked"`
}

// Tier labels, best to worst.
const (
	TierA = "A"
	TierB = "B"
	TierC = "C"
	TierD = "D"
	TierF = "F"
)

// Recommendation labels, a fixed lookup from tier and fatal-flaw status.
const (
	RecStrongPursue = "strong_pursue"
	RecPursue       = "pursue"
	RecMonitor      = "monitor"
	RecPass         = "pass"
	RecAvoid        = "avoid"
)

// ProfileSource resolves weight profiles.
type ProfileSource interface {
	Get(ctx context.Context, id string) (*WeightProfile, error)
	Active(ctx context.Context) (*WeightProfile, error)
}

// AggregateSource supplies the live county aggregates of a run.
type AggregateSource interface {
	ListLive(ctx context.Context, runID string) ([]rollup.Aggregate, error)
}

// FactSource supplies county-level facts.
type FactSource interface {
	CountyFacts(ctx context.Context, countyFIPS string) (*facts.CountyFacts, error)
}

// ScoreSink persists score records.
type ScoreSink interface {
	Replace(ctx context.Context, profileID string, records []ScoreRecord) error
}

// Engine computes and persists score records.
type Engine struct {
	profiles   ProfileSource
	aggregates AggregateSource
	facts      FactSource
	sink       ScoreSink
}

// NewEngine creates a scoring engine.
func NewEngine(profiles ProfileSource, aggregates AggregateSource, facts FactSource, sink ScoreSink) *Engine {
	return &Engine{profiles: profiles, aggregates: aggregates, facts: facts, sink: sink}
}

// ScoreAll recomputes all score records for one profile over the live
// aggregates of a run. Existing records for the profile are deleted and
// rebuilt in one transaction; ranks are assigned in a single pass after all
// composites are known. An empty profileID scores under the active profile.
func (e *Engine) ScoreAll(ctx context.Context, runID, profileID string) (*Result, error) {
	var profile *WeightProfile
	var err error
	if profileID == "" {
		profile, err = e.profiles.Active(ctx)
	} else {
		profile, err = e.profiles.Get(ctx, profileID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "scoring: resolve profile")
	}

	aggs, err := e.aggregates.ListLive(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: list aggregates")
	}

	now := time.Now().UTC()
	records := make([]ScoreRecord, 0, len(aggs))
	for _, agg := range aggs {
		cf, err := e.facts.CountyFacts(ctx, agg.CountyFIPS)
		if err != nil {
			// Missing county facts degrade to neutral inputs rather than
			// failing the batch; the record is still produced.
			if !eris.Is(err, facts.ErrNotFound) {
				zap.L().Debug("scoring: county facts unavailable",
					zap.String("county_fips", agg.CountyFIPS),
					zap.Error(err),
				)
			}
			cf = nil
		}
		rec := scoreOne(profile, agg, cf, now)
		rec.RunID = runID
		records = append(records, rec)
	}

	assignRanks(records)

	if err := e.sink.Replace(ctx, profile.ID, records); err != nil {
		return nil, eris.Wrap(err, "scoring: replace score records")
	}

	result := &Result{ProfileID: profile.ID, Counties: len(records)}
	for i := range records {
		if records[i].HasFatalFlaw {
			result.Fatal++
		} else {
			result.Ranked++
		}
	}

	zap.L().Info("scoring complete",
		zap.String("run_id", runID),
		zap.String("profile", profile.Name),
		zap.Int("counties", result.Counties),
		zap.Int("fatal", result.Fatal),
	)
	return result, nil
}

// scoreOne computes a single county's score record. Stateless: every
// invocation recomputes from the inputs alone.
func scoreOne(p *WeightProfile, agg rollup.Aggregate, cf *facts.CountyFacts, now time.Time) ScoreRecord {
	var (
		yieldRaw, cushionRaw, breakevenRaw *float64
		saturationRaw, rentRaw            *float64
		popGrowthRaw, incGrowthRaw        *float64
		permitGrowthRaw, catalystRaw      *float64
		regRaw                            *float64
	)
	freshness := -1
	if cf != nil {
		yieldRaw, cushionRaw, breakevenRaw = cf.ProjectedYieldPct, cf.RentCushionPts, cf.BreakevenOccupancyPct
		saturationRaw, rentRaw = cf.SqftPerCapita, cf.AvgRentPerSqft
		popGrowthRaw, incGrowthRaw, permitGrowthRaw = cf.PopulationGrowthPct, cf.IncomeGrowthPct, cf.PermitGrowthPct
		catalystRaw, regRaw = cf.CatalystDemandSqft, cf.RegulatoryDifficulty
		if cf.UpdatedAt != nil {
			freshness = int(now.Sub(*cf.UpdatedAt).Hours() / 24)
		}
	}

	yield, yieldKnown := orNeutral(yieldRaw, neutralYieldPct)
	cushion, cushionKnown := orNeutral(cushionRaw, neutralCushionPts)
	breakeven, _ := orNeutral(breakevenRaw, neutralBreakevenPct)
	saturation, saturationKnown := orNeutral(saturationRaw, neutralSaturationSqft)
	rent, _ := orNeutral(rentRaw, neutralRentPerSqft)
	popGrowth, _ := orNeutral(popGrowthRaw, neutralGrowthPct)
	incGrowth, _ := orNeutral(incGrowthRaw, neutralGrowthPct)
	permitGrowth, _ := orNeutral(permitGrowthRaw, neutralGrowthPct)
	catalyst, _ := orNeutral(catalystRaw, neutralCatalystSqft)
	regulatory, _ := orNeutral(regRaw, neutralRegDifficulty)
	demand := agg.TotalPopulation

	inputs := map[string]float64{
		"projected_yield_pct":     yield,
		"rent_cushion_pts":        cushion,
		"breakeven_occupancy_pct": breakeven,
		"sqft_per_capita":         saturation,
		"avg_rent_per_sqft":       rent,
		"population":              demand,
		"population_growth_pct":   popGrowth,
		"income_growth_pct":       incGrowth,
		"permit_growth_pct":       permitGrowth,
		"catalyst_demand_sqft":    catalyst,
		"regulatory_difficulty":   regulatory,
	}

	subs := map[string]float64{
		"yield":             yieldScore(yield),
		"cushion":           cushionScore(cushion),
		"breakeven":         breakevenScore(breakeven),
		"saturation":        saturationScore(saturation),
		"rent":              rentScore(rent),
		"demand":            demandScore(demand),
		"population_growth": growthScore(popGrowth),
		"income_growth":     growthScore(incGrowth),
		"permit_growth":     growthScore(permitGrowth),
		"catalyst":          catalystScore(catalyst),
		"regulatory":        regulatoryScore(regulatory),
	}

	components := map[string]float64{
		"financial": round2(subs["yield"]*p.Financial.Yield +
			subs["cushion"]*p.Financial.Cushion +
			subs["breakeven"]*p.Financial.Breakeven),
		"market": round2(subs["saturation"]*p.Market.Saturation +
			subs["rent"]*p.Market.Rent +
			subs["demand"]*p.Market.Demand),
		"growth": round2(subs["population_growth"]*p.Growth.Population +
			subs["income_growth"]*p.Growth.Income +
			subs["permit_growth"]*p.Growth.Permits),
		"catalyst":   round2(subs["catalyst"]),
		"regulatory": round2(subs["regulatory"]),
	}

	composite := round2(components["financial"]*p.Components.Financial +
		components["market"]*p.Components.Market +
		components["growth"]*p.Components.Growth +
		components["catalyst"]*p.Components.Catalyst +
		components["regulatory"]*p.Components.Regulatory)

	// Fatal flaws accumulate; they never short-circuit, so every violated
	// threshold is reported. Unknown raw values never trigger a flaw.
	var flaws []string
	ff := p.FatalFlaws
	if ff.MinYieldPct > 0 && yieldKnown && yield < ff.MinYieldPct {
		flaws = append(flaws, fmt.Sprintf("projected yield %.1f below minimum %.1f", yield, ff.MinYieldPct))
	}
	if ff.MaxSaturationSqft > 0 && saturationKnown && saturation > ff.MaxSaturationSqft {
		flaws = append(flaws, fmt.Sprintf("saturation %.1f sqft/capita above maximum %.1f", saturation, ff.MaxSaturationSqft))
	}
	if cushionKnown && cushion < ff.MinCushionPts {
		flaws = append(flaws, fmt.Sprintf("rent cushion %.1f below minimum %.1f", cushion, ff.MinCushionPts))
	}

	rec := ScoreRecord{
		ProfileID:         p.ID,
		CountyFIPS:        agg.CountyFIPS,
		Inputs:            inputs,
		SubScores:         subs,
		ComponentScores:   components,
		Composite:         composite,
		HasFatalFlaw:      len(flaws) > 0,
		FatalFlaws:        flaws,
		DataFreshnessDays: freshness,
		ScoredAt:          now,
	}
	rec.Tier = classifyTier(composite, rec.HasFatalFlaw, p.Tiers)
	rec.Recommendation = recommend(rec.Tier, rec.HasFatalFlaw)
	return rec
}

// classifyTier returns the highest tier whose threshold the composite meets.
// A fatal flaw forces F regardless of the composite.
func classifyTier(composite float64, fatal bool, t TierThresholds) string {
	if fatal {
		return TierF
	}
	switch {
	case composite >= t.A:
		return TierA
	case composite >= t.B:
		return TierB
	case composite >= t.C:
		return TierC
	case composite >= t.D:
		return TierD
	default:
		return TierF
	}
}

func recommend(tier string, fatal bool) string {
	if fatal {
		return RecAvoid
	}
	switch tier {
	case TierA:
		return RecStrongPursue
	case TierB:
		return RecPursue
	case TierC:
		return RecMonitor
	case TierD:
		return RecPass
	default:
		return RecAvoid
	}
}

// assignRanks gives every non-fatal record a dense rank by composite
// descending (ties share a rank, no gaps). Fatal records keep a nil rank.
// County FIPS breaks ordering ties so repeated scoring is deterministic.
func assignRanks(records []ScoreRecord) {
	idx := make([]int, 0, len(records))
	for i := range records {
		if !records[i].HasFatalFlaw {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		ra, rb := &records[idx[a]], &records[idx[b]]
		if ra.Composite != rb.Composite {
			return ra.Composite > rb.Composite
		}
		return ra.CountyFIPS < rb.CountyFIPS
	})

	rank := 0
	prev := math.Inf(1)
	for _, i := range idx {
		if records[i].Composite < prev {
			rank++
			prev = records[i].Composite
		}
		r := rank
		records[i].Rank = &r
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
