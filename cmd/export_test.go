//go:build !integration

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/siteselect-cli/internal/scoring"
)

func TestWriteScoreWorkbook(t *testing.T) {
	rank := 1
	records := []scoring.ScoreRecord{
		{
			CountyFIPS:      "48453",
			ComponentScores: map[string]float64{"financial": 88, "market": 74, "growth": 80, "catalyst": 65, "regulatory": 70},
			SubScores:       map[string]float64{"yield": 90, "cushion": 85, "breakeven": 88},
			Composite:       79.4,
			Tier:            scoring.TierB,
			Recommendation:  scoring.RecPursue,
			Rank:            &rank,
		},
		{
			CountyFIPS:     "48491",
			HasFatalFlaw:   true,
			FatalFlaws:     []string{"saturation 13.0 sqft/capita above maximum 12.0"},
			Tier:           scoring.TierF,
			Recommendation: scoring.RecAvoid,
		},
	}

	path := filepath.Join(t.TempDir(), "scores.xlsx")
	require.NoError(t, writeScoreWorkbook(records, path))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)

	rankings := file.Sheet["Rankings"]
	require.NotNil(t, rankings)
	assert.Equal(t, "Rank", rankings.Rows[0].Cells[0].Value)
	assert.Equal(t, "48453", rankings.Rows[1].Cells[1].Value)
	assert.Equal(t, "B", rankings.Rows[1].Cells[3].Value)
	// Fatal row has an empty rank cell.
	assert.Equal(t, "", rankings.Rows[2].Cells[0].Value)
	assert.Contains(t, rankings.Rows[2].Cells[5].Value, "saturation")

	components := file.Sheet["Components"]
	require.NotNil(t, components)
	assert.Equal(t, "County FIPS", components.Rows[0].Cells[0].Value)
	assert.Equal(t, "financial", components.Rows[0].Cells[1].Value)
}
