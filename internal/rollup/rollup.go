// Package rollup rebuilds county-level aggregates from the surviving
// candidates of a screening run. Aggregates are purely derived: every
// rebuild deletes the prior rows for the run and recomputes from scratch,
// so there is no merge step and no staleness window once it completes.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/db"
)

// Aggregate is one county rollup row.
type Aggregate struct {
	RunID             string    `json:"run_id" db:"run_id"`
	CountyFIPS        string    `json:"county_fips" db:"county_fips"`
	ZIPCount          int       `json:"zip_count" db:"zip_count"`
	TotalPopulation   float64   `json:"total_population" db:"total_population"`
	SingleFamilyUnits float64   `json:"single_family_units" db:"single_family_units"`
	MultiFamilyUnits  float64   `json:"multi_family_units" db:"multi_family_units"`
	MeanDensity       float64   `json:"mean_density" db:"mean_density"`
	Passed            bool      `json:"passed" db:"passed"`
	FailReason        string    `json:"fail_reason,omitempty" db:"fail_reason"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Result summarizes one rebuild.
type Result struct {
	Counties int `json:"counties"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
}

// Store persists county aggregates.
type Store struct {
	pool db.Pool
}

// NewStore creates a rollup store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const rollupMigration = `
CREATE TABLE IF NOT EXISTS county_aggregates (
	run_id              TEXT NOT NULL,
	county_fips         TEXT NOT NULL,
	zip_count           INT NOT NULL,
	total_population    DOUBLE PRECISION NOT NULL,
	single_family_units DOUBLE PRECISION NOT NULL,
	multi_family_units  DOUBLE PRECISION NOT NULL,
	mean_density        DOUBLE PRECISION NOT NULL,
	passed              BOOLEAN NOT NULL,
	fail_reason         TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, county_fips)
);
`

// Migrate creates the aggregate table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, rollupMigration); err != nil {
		return eris.Wrap(err, "rollup: migrate")
	}
	return nil
}

// groupQuery aggregates surviving candidates by county. Mean density is the
// unweighted mean of the reference-catalog density, not the run's own
// metrics, to avoid compounding rounding. The catalog-based mean is a
// deliberately separate statistical basis from the per-ZIP density kill
// switch; the two thresholds are configured independently.
const groupQuery = `
SELECT c.county_fips,
	count(*),
	COALESCE(sum(z.population), 0),
	COALESCE(sum(z.single_family_units), 0),
	COALESCE(sum(z.multi_family_units), 0),
	COALESCE(avg(z.density), 0)
FROM run_candidates c
JOIN ref_zip_catalog z ON z.zip = c.zip
WHERE c.run_id = $1 AND NOT c.killed
GROUP BY c.county_fips
ORDER BY c.county_fips`

// Rebuild deletes all prior aggregates for the run and recomputes them from
// the current surviving candidate set. Counties whose mean density exceeds
// maxMeanDensity are recorded as failed, with a reason, and excluded from
// the live set consumed by scoring.
func (s *Store) Rebuild(ctx context.Context, runID string, maxMeanDensity float64) (*Result, error) {
	rows, err := s.pool.Query(ctx, groupQuery, runID)
	if err != nil {
		return nil, eris.Wrap(err, "rollup: group candidates")
	}

	var aggs []Aggregate
	for rows.Next() {
		a := Aggregate{RunID: runID}
		if err := rows.Scan(&a.CountyFIPS, &a.ZIPCount, &a.TotalPopulation,
			&a.SingleFamilyUnits, &a.MultiFamilyUnits, &a.MeanDensity); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "rollup: scan group")
		}
		a.Passed, a.FailReason = evaluate(a.MeanDensity, maxMeanDensity)
		aggs = append(aggs, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "rollup: iterate groups")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "rollup: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM county_aggregates WHERE run_id = $1`, runID); err != nil {
		return nil, eris.Wrap(err, "rollup: delete prior aggregates")
	}

	copyRows := make([][]any, len(aggs))
	for i, a := range aggs {
		copyRows[i] = []any{a.RunID, a.CountyFIPS, a.ZIPCount, a.TotalPopulation,
			a.SingleFamilyUnits, a.MultiFamilyUnits, a.MeanDensity, a.Passed, a.FailReason}
	}
	if len(copyRows) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"county_aggregates"},
			[]string{"run_id", "county_fips", "zip_count", "total_population",
				"single_family_units", "multi_family_units", "mean_density", "passed", "fail_reason"},
			pgx.CopyFromRows(copyRows))
		if err != nil {
			return nil, eris.Wrap(err, "rollup: copy aggregates")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "rollup: commit")
	}

	result := &Result{Counties: len(aggs)}
	for _, a := range aggs {
		if a.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	zap.L().Info("rollup rebuilt",
		zap.String("run_id", runID),
		zap.Int("counties", result.Counties),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// evaluate applies the aggregate-level kill switch.
func evaluate(meanDensity, ceiling float64) (passed bool, reason string) {
	if ceiling > 0 && meanDensity > ceiling {
		return false, fmt.Sprintf("mean density %.1f above ceiling %.1f", meanDensity, ceiling)
	}
	return true, ""
}

const aggregateColumns = `run_id, county_fips, zip_count, total_population,
	single_family_units, multi_family_units, mean_density, passed, fail_reason, created_at`

// ListLive returns the passing aggregates of a run, the working set
// consumed by scoring.
func (s *Store) ListLive(ctx context.Context, runID string) ([]Aggregate, error) {
	return s.list(ctx, runID, true)
}

// ListAll returns all aggregates of a run including failed ones.
func (s *Store) ListAll(ctx context.Context, runID string) ([]Aggregate, error) {
	return s.list(ctx, runID, false)
}

func (s *Store) list(ctx context.Context, runID string, liveOnly bool) ([]Aggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM county_aggregates WHERE run_id = $1`
	if liveOnly {
		query += ` AND passed`
	}
	query += ` ORDER BY county_fips`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrap(err, "rollup: list aggregates")
	}
	defer rows.Close()

	var aggs []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.RunID, &a.CountyFIPS, &a.ZIPCount, &a.TotalPopulation,
			&a.SingleFamilyUnits, &a.MultiFamilyUnits, &a.MeanDensity,
			&a.Passed, &a.FailReason, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "rollup: scan aggregate")
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}
