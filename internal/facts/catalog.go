package facts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect-cli/internal/db"
)

// ErrNotFound indicates the provider has no record for the requested key.
var ErrNotFound = eris.New("facts: not found")

// CatalogProvider implements Provider against the local reference tables.
type CatalogProvider struct {
	pool db.Pool
}

// NewCatalogProvider creates a CatalogProvider.
func NewCatalogProvider(pool db.Pool) *CatalogProvider {
	return &CatalogProvider{pool: pool}
}

const catalogMigration = `
CREATE TABLE IF NOT EXISTS ref_zip_catalog (
	zip                     TEXT PRIMARY KEY,
	county_fips             TEXT NOT NULL,
	state                   TEXT NOT NULL,
	population              DOUBLE PRECISION,
	density                 DOUBLE PRECISION,
	median_income           DOUBLE PRECISION,
	poverty_rate_pct        DOUBLE PRECISION,
	renter_share_pct        DOUBLE PRECISION,
	facility_count          DOUBLE PRECISION,
	sqft_per_capita         DOUBLE PRECISION,
	projected_yield_pct     DOUBLE PRECISION,
	breakeven_occupancy_pct DOUBLE PRECISION,
	land_price_per_acre     DOUBLE PRECISION,
	single_family_units     DOUBLE PRECISION,
	multi_family_units      DOUBLE PRECISION,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_zip_catalog_state ON ref_zip_catalog(state);

CREATE TABLE IF NOT EXISTS ref_county_facts (
	county_fips             TEXT PRIMARY KEY,
	county_name             TEXT NOT NULL DEFAULT '',
	state                   TEXT NOT NULL DEFAULT '',
	projected_yield_pct     DOUBLE PRECISION,
	rent_cushion_pts        DOUBLE PRECISION,
	breakeven_occupancy_pct DOUBLE PRECISION,
	sqft_per_capita         DOUBLE PRECISION,
	avg_rent_per_sqft       DOUBLE PRECISION,
	catalyst_demand_sqft    DOUBLE PRECISION,
	population_growth_pct   DOUBLE PRECISION,
	income_growth_pct       DOUBLE PRECISION,
	permit_growth_pct       DOUBLE PRECISION,
	regulatory_difficulty   DOUBLE PRECISION,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the reference tables if they do not exist.
func (p *CatalogProvider) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, catalogMigration); err != nil {
		return eris.Wrap(err, "facts: migrate reference tables")
	}
	return nil
}

// ListZIPs returns catalog entries matching the filter.
func (p *CatalogProvider) ListZIPs(ctx context.Context, f CatalogFilter) ([]ZIPRef, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "population IS NOT NULL")

	if len(f.States) > 0 {
		conditions = append(conditions, fmt.Sprintf("state = ANY($%d)", argIdx))
		args = append(args, f.States)
		argIdx++
	}
	if f.MinPopulation > 0 {
		conditions = append(conditions, fmt.Sprintf("population >= $%d", argIdx))
		args = append(args, f.MinPopulation)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT zip, county_fips, state, population FROM ref_zip_catalog WHERE %s ORDER BY zip`,
		strings.Join(conditions, " AND "),
	)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "facts: list zips")
	}
	defer rows.Close()

	var refs []ZIPRef
	for rows.Next() {
		var r ZIPRef
		if err := rows.Scan(&r.ZIP, &r.CountyFIPS, &r.State, &r.Population); err != nil {
			return nil, eris.Wrap(err, "facts: scan zip ref")
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ZIPFacts returns the fact record for one ZIP.
func (p *CatalogProvider) ZIPFacts(ctx context.Context, zip string) (*ZIPFacts, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT zip, county_fips, state, population, density, median_income,
			poverty_rate_pct, renter_share_pct, facility_count, sqft_per_capita,
			projected_yield_pct, breakeven_occupancy_pct, land_price_per_acre
		FROM ref_zip_catalog WHERE zip = $1`, zip)

	var f ZIPFacts
	err := row.Scan(
		&f.ZIP, &f.CountyFIPS, &f.State, &f.Population, &f.Density, &f.MedianIncome,
		&f.PovertyRatePct, &f.RenterSharePct, &f.FacilityCount, &f.SqftPerCapita,
		&f.ProjectedYieldPct, &f.BreakevenOccupancyPct, &f.LandPricePerAcre,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "facts: zip facts %s", zip)
	}
	return &f, nil
}

// CountyFacts returns the fact record for one county.
func (p *CatalogProvider) CountyFacts(ctx context.Context, countyFIPS string) (*CountyFacts, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT county_fips, county_name, state, projected_yield_pct, rent_cushion_pts,
			breakeven_occupancy_pct, sqft_per_capita, avg_rent_per_sqft,
			catalyst_demand_sqft, population_growth_pct, income_growth_pct,
			permit_growth_pct, regulatory_difficulty, updated_at
		FROM ref_county_facts WHERE county_fips = $1`, countyFIPS)

	var f CountyFacts
	err := row.Scan(
		&f.CountyFIPS, &f.CountyName, &f.State, &f.ProjectedYieldPct, &f.RentCushionPts,
		&f.BreakevenOccupancyPct, &f.SqftPerCapita, &f.AvgRentPerSqft,
		&f.CatalystDemandSqft, &f.PopulationGrowthPct, &f.IncomeGrowthPct,
		&f.PermitGrowthPct, &f.RegulatoryDifficulty, &f.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "facts: county facts %s", countyFIPS)
	}
	return &f, nil
}
