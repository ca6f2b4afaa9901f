package scoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/db"
)

// ErrProfileNotFound indicates no weight profile matched the lookup.
var ErrProfileNotFound = eris.New("scoring: profile not found")

// Store persists weight profiles and score records in Postgres. It
// implements ProfileSource and ScoreSink.
type Store struct {
	pool db.Pool
}

// NewStore creates a scoring store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const scoringMigration = `
CREATE TABLE IF NOT EXISTS weight_profiles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	version    INT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT false,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, version)
);

CREATE TABLE IF NOT EXISTS county_scores (
	profile_id          TEXT NOT NULL,
	run_id              TEXT NOT NULL,
	county_fips         TEXT NOT NULL,
	inputs              JSONB NOT NULL DEFAULT '{}',
	sub_scores          JSONB NOT NULL DEFAULT '{}',
	component_scores    JSONB NOT NULL DEFAULT '{}',
	composite           DOUBLE PRECISION NOT NULL,
	has_fatal_flaw      BOOLEAN NOT NULL DEFAULT false,
	fatal_flaws         JSONB NOT NULL DEFAULT '[]',
	tier                TEXT NOT NULL,
	recommendation      TEXT NOT NULL,
	rank                INT,
	data_freshness_days INT NOT NULL DEFAULT -1,
	scored_at           TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (profile_id, run_id, county_fips)
);

CREATE INDEX IF NOT EXISTS idx_county_scores_rank ON county_scores(profile_id, rank);
`

// Migrate creates the scoring tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, scoringMigration); err != nil {
		return eris.Wrap(err, "scoring: migrate")
	}
	return nil
}

// SaveProfile validates and inserts a profile, assigning an ID when empty.
// Invalid profiles are rejected before any write (all-or-nothing).
func (s *Store) SaveProfile(ctx context.Context, p *WeightProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	body, err := json.Marshal(p)
	if err != nil {
		return eris.Wrapf(err, "scoring: marshal profile %s", p.Name)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO weight_profiles (id, name, version, active, body)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Version, p.Active, body)
	if err != nil {
		return eris.Wrapf(err, "scoring: insert profile %s v%d", p.Name, p.Version)
	}

	zap.L().Info("scoring: profile saved",
		zap.String("id", p.ID),
		zap.String("name", p.Name),
		zap.Int("version", p.Version),
	)
	return nil
}

// SetActive marks one profile active and all others inactive.
func (s *Store) SetActive(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "scoring: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE weight_profiles SET active = false WHERE active`); err != nil {
		return eris.Wrap(err, "scoring: clear active profile")
	}
	tag, err := tx.Exec(ctx, `UPDATE weight_profiles SET active = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "scoring: activate profile %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrProfileNotFound, "id %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "scoring: commit activation")
}

// Get returns one profile by ID.
func (s *Store) Get(ctx context.Context, id string) (*WeightProfile, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// Active returns the currently active profile.
func (s *Store) Active(ctx context.Context) (*WeightProfile, error) {
	return s.getWhere(ctx, `active`)
}

func (s *Store) getWhere(ctx context.Context, where string, args ...any) (*WeightProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, active, body, created_at FROM weight_profiles WHERE `+where+` LIMIT 1`,
		args...)

	var (
		id        string
		body      []byte
		active    bool
		createdAt time.Time
	)
	if err := row.Scan(&id, &active, &body, &createdAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, eris.Wrap(err, "scoring: load profile")
	}

	var p WeightProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrapf(err, "scoring: unmarshal profile %s", id)
	}
	p.ID = id
	p.Active = active
	p.CreatedAt = createdAt
	return &p, nil
}

// ListProfiles returns all saved profiles, newest first.
func (s *Store) ListProfiles(ctx context.Context) ([]WeightProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, active, body, created_at FROM weight_profiles ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: list profiles")
	}
	defer rows.Close()

	var profiles []WeightProfile
	for rows.Next() {
		var (
			id        string
			body      []byte
			active    bool
			createdAt time.Time
		)
		if err := rows.Scan(&id, &active, &body, &createdAt); err != nil {
			return nil, eris.Wrap(err, "scoring: scan profile")
		}
		var p WeightProfile
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, eris.Wrapf(err, "scoring: unmarshal profile %s", id)
		}
		p.ID = id
		p.Active = active
		p.CreatedAt = createdAt
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Replace deletes all score records for the profile and inserts the new set
// in one transaction, so readers never observe a partial recompute.
func (s *Store) Replace(ctx context.Context, profileID string, records []ScoreRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "scoring: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM county_scores WHERE profile_id = $1`, profileID); err != nil {
		return eris.Wrap(err, "scoring: delete prior scores")
	}

	for i := range records {
		r := &records[i]
		inputs, err := json.Marshal(r.Inputs)
		if err != nil {
			return eris.Wrapf(err, "scoring: marshal inputs for %s", r.CountyFIPS)
		}
		subs, err := json.Marshal(r.SubScores)
		if err != nil {
			return eris.Wrapf(err, "scoring: marshal sub-scores for %s", r.CountyFIPS)
		}
		components, err := json.Marshal(r.ComponentScores)
		if err != nil {
			return eris.Wrapf(err, "scoring: marshal components for %s", r.CountyFIPS)
		}
		flaws := []byte("[]")
		if len(r.FatalFlaws) > 0 {
			flaws, err = json.Marshal(r.FatalFlaws)
			if err != nil {
				return eris.Wrapf(err, "scoring: marshal flaws for %s", r.CountyFIPS)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO county_scores
				(profile_id, run_id, county_fips, inputs, sub_scores, component_scores,
				 composite, has_fatal_flaw, fatal_flaws, tier, recommendation, rank,
				 data_freshness_days, scored_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			profileID, r.RunID, r.CountyFIPS, inputs, subs, components,
			r.Composite, r.HasFatalFlaw, flaws, r.Tier, r.Recommendation, r.Rank,
			r.DataFreshnessDays, r.ScoredAt)
		if err != nil {
			return eris.Wrapf(err, "scoring: insert score for %s", r.CountyFIPS)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "scoring: commit scores")
}

// ListScores returns the score records for a profile, ranked records first
// by rank ascending, then fatal records by county.
func (s *Store) ListScores(ctx context.Context, profileID string) ([]ScoreRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT profile_id, run_id, county_fips, inputs, sub_scores, component_scores,
			composite, has_fatal_flaw, fatal_flaws, tier, recommendation, rank,
			data_freshness_days, scored_at
		FROM county_scores
		WHERE profile_id = $1
		ORDER BY rank NULLS LAST, county_fips`, profileID)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: list scores")
	}
	defer rows.Close()

	var records []ScoreRecord
	for rows.Next() {
		var r ScoreRecord
		var inputs, subs, components, flaws []byte
		err := rows.Scan(
			&r.ProfileID, &r.RunID, &r.CountyFIPS, &inputs, &subs, &components,
			&r.Composite, &r.HasFatalFlaw, &flaws, &r.Tier, &r.Recommendation, &r.Rank,
			&r.DataFreshnessDays, &r.ScoredAt)
		if err != nil {
			return nil, eris.Wrap(err, "scoring: scan score")
		}
		if err := json.Unmarshal(inputs, &r.Inputs); err != nil {
			return nil, eris.Wrapf(err, "scoring: unmarshal inputs for %s", r.CountyFIPS)
		}
		if err := json.Unmarshal(subs, &r.SubScores); err != nil {
			return nil, eris.Wrapf(err, "scoring: unmarshal sub-scores for %s", r.CountyFIPS)
		}
		if err := json.Unmarshal(components, &r.ComponentScores); err != nil {
			return nil, eris.Wrapf(err, "scoring: unmarshal components for %s", r.CountyFIPS)
		}
		if err := json.Unmarshal(flaws, &r.FatalFlaws); err != nil {
			return nil, eris.Wrapf(err, "scoring: unmarshal flaws for %s", r.CountyFIPS)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
