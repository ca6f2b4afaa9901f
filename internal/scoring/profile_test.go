package scoring

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WeightProfile)
		wantErr string
	}{
		{
			name:   "default profile valid",
			mutate: func(p *WeightProfile) {},
		},
		{
			name: "within tolerance",
			mutate: func(p *WeightProfile) {
				p.Components.Financial = 0.355 // sum 1.005
			},
		},
		{
			name: "component sum too high",
			mutate: func(p *WeightProfile) {
				p.Components.Financial = 0.5 // sum 1.15
			},
			wantErr: "components weights must sum to 1.0",
		},
		{
			name: "sub-group sum broken",
			mutate: func(p *WeightProfile) {
				p.Financial.Yield = 0.9 // sum 1.45
			},
			wantErr: "financial weights must sum to 1.0",
		},
		{
			name: "negative weight",
			mutate: func(p *WeightProfile) {
				p.Market.Rent = -0.1
				p.Market.Saturation = 0.85
			},
			wantErr: "market weights must be >= 0",
		},
		{
			name: "tiers not descending",
			mutate: func(p *WeightProfile) {
				p.Tiers.B = 80 // equal to A
			},
			wantErr: "strictly descending",
		},
		{
			name: "empty name",
			mutate: func(p *WeightProfile) {
				p.Name = "  "
			},
			wantErr: "name must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidProfile))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWeightProfile_ValidateCollectsAllViolations(t *testing.T) {
	p := DefaultProfile()
	p.Components.Financial = 0.9
	p.Growth.Population = 0.9
	p.Tiers.D = 99

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "components weights")
	assert.Contains(t, err.Error(), "growth weights")
	assert.Contains(t, err.Error(), "strictly descending")
}

func TestParseProfileYAML(t *testing.T) {
	doc := `
name: aggressive
version: 2
components:
  financial: 0.40
  market: 0.30
  growth: 0.15
  catalyst: 0.10
  regulatory: 0.05
financial:
  yield: 0.50
  cushion: 0.30
  breakeven: 0.20
market:
  saturation: 0.50
  rent: 0.25
  demand: 0.25
growth:
  population: 0.40
  income: 0.30
  permits: 0.30
tiers:
  a: 82
  b: 68
  c: 52
  d: 36
fatal_flaws:
  min_yield_pct: 6
  max_saturation_sqft: 11
  min_cushion_pts: 0
`
	p, err := ParseProfileYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "aggressive", p.Name)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, 0.40, p.Components.Financial)
	assert.Equal(t, 82.0, p.Tiers.A)
	assert.Equal(t, 6.0, p.FatalFlaws.MinYieldPct)
}

func TestParseProfileYAML_Invalid(t *testing.T) {
	doc := `
name: broken
components:
  financial: 0.9
  market: 0.9
  growth: 0
  catalyst: 0
  regulatory: 0
financial: {yield: 1, cushion: 0, breakeven: 0}
market: {saturation: 1, rent: 0, demand: 0}
growth: {population: 1, income: 0, permits: 0}
tiers: {a: 80, b: 65, c: 50, d: 35}
fatal_flaws: {}
`
	_, err := ParseProfileYAML(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidProfile))
}
