package facts

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/db"
)

// zipCatalogColumns is the canonical column order for ref_zip_catalog loads.
var zipCatalogColumns = []string{
	"zip", "county_fips", "state", "population", "density", "median_income",
	"poverty_rate_pct", "renter_share_pct", "facility_count", "sqft_per_capita",
	"projected_yield_pct", "breakeven_occupancy_pct", "land_price_per_acre",
	"single_family_units", "multi_family_units",
}

// countyFactsColumns is the canonical column order for ref_county_facts loads.
var countyFactsColumns = []string{
	"county_fips", "county_name", "state", "projected_yield_pct", "rent_cushion_pts",
	"breakeven_occupancy_pct", "sqft_per_capita", "avg_rent_per_sqft",
	"catalyst_demand_sqft", "population_growth_pct", "income_growth_pct",
	"permit_growth_pct", "regulatory_difficulty",
}

// LoadZIPCatalog bulk-loads ZIP reference rows from CSV into ref_zip_catalog.
// The header row must name columns; unrecognized columns are ignored and
// missing numeric values load as NULL. Returns the number of rows upserted.
func LoadZIPCatalog(ctx context.Context, pool db.Pool, r io.Reader) (int64, error) {
	rows, err := parseCSV(r, zipCatalogColumns, 3)
	if err != nil {
		return 0, eris.Wrap(err, "facts: parse zip catalog csv")
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "ref_zip_catalog",
		Columns:      zipCatalogColumns,
		ConflictKeys: []string{"zip"},
	}, rows)
	if err != nil {
		return 0, err
	}

	zap.L().Info("facts: zip catalog loaded", zap.Int64("rows", n))
	return n, nil
}

// LoadCountyFacts bulk-loads county fact rows from CSV into ref_county_facts.
func LoadCountyFacts(ctx context.Context, pool db.Pool, r io.Reader) (int64, error) {
	rows, err := parseCSV(r, countyFactsColumns, 3)
	if err != nil {
		return 0, eris.Wrap(err, "facts: parse county facts csv")
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "ref_county_facts",
		Columns:      countyFactsColumns,
		ConflictKeys: []string{"county_fips"},
	}, rows)
	if err != nil {
		return 0, err
	}

	zap.L().Info("facts: county facts loaded", zap.Int64("rows", n))
	return n, nil
}

// parseCSV reads a headed CSV and projects each record onto wantCols.
// The first textCols columns load as strings; the rest parse as floats,
// with blanks becoming NULL.
func parseCSV(r io.Reader, wantCols []string, textCols int) ([][]any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	// Map wanted column name -> position in the file.
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for i := 0; i < textCols; i++ {
		if _, ok := pos[wantCols[i]]; !ok {
			return nil, eris.Errorf("missing required column %q", wantCols[i])
		}
	}

	var rows [][]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read record")
		}

		row := make([]any, len(wantCols))
		for i, col := range wantCols {
			idx, ok := pos[col]
			if !ok || idx >= len(rec) {
				row[i] = nil
				continue
			}
			raw := strings.TrimSpace(rec[idx])
			if i < textCols {
				row[i] = raw
				continue
			}
			if raw == "" {
				row[i] = nil
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "parse %s=%q", col, raw)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return rows, nil
}
