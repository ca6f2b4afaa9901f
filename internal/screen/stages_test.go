package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteselect-cli/internal/facts"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MinPopulation:     10000,
		MaxDensity:        3500,
		MinDensity:        150,
		MinMedianIncome:   45000,
		MaxPovertyRate:    25,
		MaxRenterShare:    75,
		MaxFacilities:     8,
		MaxSqftPerCapita:  9,
		MinProjectedYield: 7.5,
		MaxBreakevenOcc:   80,
		MaxLandPricePerAc: 1200000,
	}
}

func TestStages_OrderAndIndexes(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 4)
	for i, st := range stages {
		assert.Equal(t, i, st.Index)
		assert.NotEmpty(t, st.Switches)
		assert.NotNil(t, st.Metrics)
	}
	assert.Equal(t, "demographics", stages[0].Name)
	assert.Equal(t, "feasibility", stages[3].Name)
}

func TestStageByIndex(t *testing.T) {
	st, err := StageByIndex(2)
	require.NoError(t, err)
	assert.Equal(t, "saturation", st.Name)

	_, err = StageByIndex(9)
	assert.Error(t, err)
}

func TestDemographicsStage_FirstMatchWins(t *testing.T) {
	th := defaultThresholds()
	// Both population and density violate; population is listed first so it
	// must provide the kill.
	f := &facts.ZIPFacts{
		Population: facts.Float(5000),
		Density:    facts.Float(9000),
	}

	st, err := StageByIndex(0)
	require.NoError(t, err)

	var kill *Kill
	var rule string
	for _, ks := range st.Switches {
		if k := ks.Eval(f, nil, th); k != nil {
			kill = k
			rule = ks.ID
			break
		}
	}

	require.NotNil(t, kill)
	assert.Equal(t, RulePopulationMin, rule)
	assert.InDelta(t, 5000, kill.Observed, 0.001)
	assert.InDelta(t, 10000, kill.Threshold, 0.001)
	assert.Contains(t, kill.Reason, "population")
}

func TestKillSwitch_UnknownFactNeverKills(t *testing.T) {
	th := defaultThresholds()
	f := &facts.ZIPFacts{} // everything unknown

	for _, st := range Stages() {
		for _, ks := range st.Switches {
			assert.Nil(t, ks.Eval(f, nil, th), "switch %s fired on unknown fact", ks.ID)
		}
	}
}

func TestKillSwitch_DisabledThreshold(t *testing.T) {
	var th Thresholds // all zero = disabled
	f := &facts.ZIPFacts{
		Population: facts.Float(1),
		Density:    facts.Float(999999),
	}
	st, err := StageByIndex(0)
	require.NoError(t, err)
	for _, ks := range st.Switches {
		assert.Nil(t, ks.Eval(f, nil, th), "switch %s fired with zero threshold", ks.ID)
	}
}

func TestDensityKill_Boundary(t *testing.T) {
	th := defaultThresholds()
	st, _ := StageByIndex(0)
	densityMax := st.Switches[1]
	require.Equal(t, RuleDensityMax, densityMax.ID)

	tests := []struct {
		density float64
		killed  bool
	}{
		{3499.9, false},
		{3500, false}, // at the ceiling passes
		{3500.1, true},
	}
	for _, tt := range tests {
		f := &facts.ZIPFacts{Density: facts.Float(tt.density)}
		kill := densityMax.Eval(f, nil, th)
		if tt.killed {
			require.NotNil(t, kill, "density %v", tt.density)
			assert.InDelta(t, tt.density, kill.Observed, 0.001)
		} else {
			assert.Nil(t, kill, "density %v", tt.density)
		}
	}
}

func TestFeasibilityStage_YieldKill(t *testing.T) {
	th := defaultThresholds()
	st, _ := StageByIndex(3)
	f := &facts.ZIPFacts{ProjectedYieldPct: facts.Float(6.0)}

	kill := st.Switches[0].Eval(f, nil, th)
	require.NotNil(t, kill)
	assert.Contains(t, kill.Reason, "6.0")
	assert.Contains(t, kill.Reason, "7.5")
}

func TestStageMetrics_SkipsUnknown(t *testing.T) {
	st, _ := StageByIndex(1)
	f := &facts.ZIPFacts{
		MedianIncome:   facts.Float(72000),
		PovertyRatePct: nil,
		RenterSharePct: facts.Float(40),
	}
	m := st.Metrics(f)
	assert.Equal(t, 72000.0, m["median_income"])
	assert.Equal(t, 40.0, m["renter_share_pct"])
	_, ok := m["poverty_rate_pct"]
	assert.False(t, ok, "unknown facts stay out of metrics")
}
