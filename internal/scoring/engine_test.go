package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteselect-cli/internal/facts"
	"github.com/sells-group/siteselect-cli/internal/rollup"
)

type mockProfiles struct {
	profile WeightProfile
}

func (m *mockProfiles) Get(_ context.Context, id string) (*WeightProfile, error) {
	if id != m.profile.ID {
		return nil, ErrProfileNotFound
	}
	p := m.profile
	return &p, nil
}

func (m *mockProfiles) Active(context.Context) (*WeightProfile, error) {
	p := m.profile
	return &p, nil
}

type mockAggregates struct {
	aggs []rollup.Aggregate
}

func (m *mockAggregates) ListLive(context.Context, string) ([]rollup.Aggregate, error) {
	return m.aggs, nil
}

type mockFacts struct {
	byFIPS map[string]*facts.CountyFacts
}

func (m *mockFacts) CountyFacts(_ context.Context, fips string) (*facts.CountyFacts, error) {
	if cf, ok := m.byFIPS[fips]; ok {
		return cf, nil
	}
	return nil, facts.ErrNotFound
}

type mockSink struct {
	profileID string
	records   []ScoreRecord
	calls     int
}

func (m *mockSink) Replace(_ context.Context, profileID string, records []ScoreRecord) error {
	m.profileID = profileID
	m.records = records
	m.calls++
	return nil
}

// halfSplitProfile weights financial and market at 0.5 each with the full
// sub-weight on the first leg, so the composite is a clean average of the
// yield and saturation sub-scores.
func halfSplitProfile() WeightProfile {
	p := DefaultProfile()
	p.ID = "p-1"
	p.Components = ComponentWeights{Financial: 0.5, Market: 0.5}
	p.Financial = FinancialWeights{Yield: 1}
	p.Market = MarketWeights{Saturation: 1}
	p.Growth = GrowthWeights{Population: 1}
	p.FatalFlaws = FatalFlawThresholds{MinCushionPts: -1000}
	return p
}

func countyFactsFor(yield, saturation float64) *facts.CountyFacts {
	updated := time.Now().UTC().Add(-48 * time.Hour)
	return &facts.CountyFacts{
		CountyFIPS:        "48453",
		ProjectedYieldPct: facts.Float(yield),
		SqftPerCapita:     facts.Float(saturation),
		UpdatedAt:         &updated,
	}
}

func TestScoreOne_CompositeIsWeightedAverage(t *testing.T) {
	p := halfSplitProfile()
	// Yield at the excellent breakpoint scores 100; saturation at the poor
	// breakpoint scores 0.
	cf := countyFactsFor(12, 12)
	p.FatalFlaws.MaxSaturationSqft = 0 // disabled

	rec := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453"}, cf, time.Now().UTC())

	assert.Equal(t, 100.0, rec.ComponentScores["financial"])
	assert.Equal(t, 0.0, rec.ComponentScores["market"])
	assert.Equal(t, 50.0, rec.Composite)
	assert.False(t, rec.HasFatalFlaw)
	assert.Equal(t, TierC, rec.Tier)
	assert.Equal(t, RecMonitor, rec.Recommendation)
}

func TestScoreOne_FatalFlawOverridesComposite(t *testing.T) {
	p := halfSplitProfile()
	p.FatalFlaws.MinYieldPct = 10
	cf := countyFactsFor(8, 5)

	rec := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453"}, cf, time.Now().UTC())

	require.True(t, rec.HasFatalFlaw)
	require.Len(t, rec.FatalFlaws, 1)
	assert.Contains(t, rec.FatalFlaws[0], "8")
	assert.Contains(t, rec.FatalFlaws[0], "10")
	assert.Equal(t, TierF, rec.Tier)
	assert.Equal(t, RecAvoid, rec.Recommendation)
	assert.Nil(t, rec.Rank)
}

func TestScoreOne_FatalFlawsAccumulate(t *testing.T) {
	p := halfSplitProfile()
	p.FatalFlaws = FatalFlawThresholds{MinYieldPct: 10, MaxSaturationSqft: 8, MinCushionPts: 1}
	cf := countyFactsFor(6, 11)
	cf.RentCushionPts = facts.Float(0.2)

	rec := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453"}, cf, time.Now().UTC())

	assert.Len(t, rec.FatalFlaws, 3)
}

func TestScoreOne_UnknownRawNeverFlagsFatal(t *testing.T) {
	p := halfSplitProfile()
	p.FatalFlaws = FatalFlawThresholds{MinYieldPct: 10, MaxSaturationSqft: 8, MinCushionPts: 1}

	rec := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453"}, nil, time.Now().UTC())

	assert.False(t, rec.HasFatalFlaw)
	assert.Equal(t, -1, rec.DataFreshnessDays)
}

func TestScoreOne_MissingFactsScoreNeutral(t *testing.T) {
	p := DefaultProfile()
	p.ID = "p-1"
	p.FatalFlaws = FatalFlawThresholds{}

	// Population at the neutral point keeps the demand leg at 50 with all
	// other inputs defaulted, so every component and the composite land at 50.
	rec := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453", TotalPopulation: 135_000}, nil, time.Now().UTC())

	assert.InDelta(t, 50.0, rec.ComponentScores["financial"], 0.01)
	assert.InDelta(t, 50.0, rec.ComponentScores["market"], 0.01)
	assert.InDelta(t, 50.0, rec.Composite, 0.01)
	assert.Equal(t, TierC, rec.Tier)
}

func TestScoreOne_Deterministic(t *testing.T) {
	p := halfSplitProfile()
	cf := countyFactsFor(9.5, 6.2)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453", TotalPopulation: 80_000}, cf, now)
	b := scoreOne(&p, rollup.Aggregate{CountyFIPS: "48453", TotalPopulation: 80_000}, cf, now)

	assert.Equal(t, a, b)
}

func TestAssignRanks_DenseOverNonFatalOnly(t *testing.T) {
	records := []ScoreRecord{
		{CountyFIPS: "1", Composite: 70},
		{CountyFIPS: "2", Composite: 90},
		{CountyFIPS: "3", Composite: 80},
		{CountyFIPS: "4", Composite: 80},
		{CountyFIPS: "5", Composite: 95, HasFatalFlaw: true},
	}

	assignRanks(records)

	byFIPS := make(map[string]*int)
	for i := range records {
		byFIPS[records[i].CountyFIPS] = records[i].Rank
	}

	require.NotNil(t, byFIPS["2"])
	assert.Equal(t, 1, *byFIPS["2"])
	assert.Equal(t, 2, *byFIPS["3"])
	assert.Equal(t, 2, *byFIPS["4"])
	assert.Equal(t, 3, *byFIPS["1"])
	assert.Nil(t, byFIPS["5"])
}

func TestEngine_ScoreAll(t *testing.T) {
	p := halfSplitProfile()
	p.FatalFlaws.MinYieldPct = 7

	profiles := &mockProfiles{profile: p}
	aggs := &mockAggregates{aggs: []rollup.Aggregate{
		{RunID: "run-1", CountyFIPS: "48453", TotalPopulation: 95_000},
		{RunID: "run-1", CountyFIPS: "48491", TotalPopulation: 60_000},
		{RunID: "run-1", CountyFIPS: "48999", TotalPopulation: 10_000},
	}}
	factSrc := &mockFacts{byFIPS: map[string]*facts.CountyFacts{
		"48453": countyFactsFor(11, 5),
		"48491": countyFactsFor(5, 4), // yield below fatal minimum
		// 48999 has no county facts: neutral inputs, still scored.
	}}
	sink := &mockSink{}

	engine := NewEngine(profiles, aggs, factSrc, sink)
	result, err := engine.ScoreAll(context.Background(), "run-1", "")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Counties)
	assert.Equal(t, 1, result.Fatal)
	assert.Equal(t, 2, result.Ranked)
	assert.Equal(t, "p-1", sink.profileID)
	require.Len(t, sink.records, 3)

	for _, rec := range sink.records {
		assert.Equal(t, "run-1", rec.RunID)
		switch rec.CountyFIPS {
		case "48491":
			assert.True(t, rec.HasFatalFlaw)
			assert.Nil(t, rec.Rank)
		default:
			assert.False(t, rec.HasFatalFlaw)
			assert.NotNil(t, rec.Rank)
		}
	}
}

func TestEngine_ScoreAll_UnknownProfile(t *testing.T) {
	profiles := &mockProfiles{profile: halfSplitProfile()}
	engine := NewEngine(profiles, &mockAggregates{}, &mockFacts{}, &mockSink{})

	_, err := engine.ScoreAll(context.Background(), "run-1", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
