package screen

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect-cli/internal/db"
)

// Store defines persistence operations for the screening core. All writes
// funnel through these methods so the frozen-on-kill and monotonic
// stage_reached invariants are enforced in one place.
type Store interface {
	CreateRun(ctx context.Context, criteria FilterCriteria, params Thresholds, totalZIPs int) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	FailRun(ctx context.Context, runID string, errMsg string) error
	CompleteRun(ctx context.Context, runID string) error

	InsertCandidates(ctx context.Context, runID string, refs []CandidateSeed) (int64, error)
	ListLiveCandidates(ctx context.Context, runID string) ([]Candidate, error)
	GetCandidate(ctx context.Context, runID, zip string) (*Candidate, error)
	KillCandidate(ctx context.Context, runID, zip string, stage int, rule, reason string, threshold, observed float64) error
	MergeMetrics(ctx context.Context, runID, zip string, stage int, delta Metrics) error

	LogStage(ctx context.Context, runID string, stage, input, output int) error
	StageLogExists(ctx context.Context, runID string, stage int) (bool, error)
	ListStageLogs(ctx context.Context, runID string) ([]StageLogEntry, error)

	SurvivorCount(ctx context.Context, runID string) (int, error)
	StageHistogram(ctx context.Context, runID string) (map[int]int, error)

	Migrate(ctx context.Context) error
}

// CandidateSeed is one entry of the initial universe inserted at run start.
type CandidateSeed struct {
	ZIP        string
	CountyFIPS string
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const screenMigration = `
CREATE TABLE IF NOT EXISTS screening_runs (
	id             TEXT PRIMARY KEY,
	criteria       JSONB NOT NULL,
	params         JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	current_stage  INT NOT NULL DEFAULT -1,
	total_zips     INT NOT NULL DEFAULT 0,
	surviving_zips INT NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_candidates (
	run_id         TEXT NOT NULL REFERENCES screening_runs(id),
	zip            TEXT NOT NULL,
	county_fips    TEXT NOT NULL DEFAULT '',
	stage_reached  INT NOT NULL DEFAULT -1,
	killed         BOOLEAN NOT NULL DEFAULT false,
	kill_stage     INT,
	kill_rule      TEXT,
	kill_reason    TEXT,
	kill_threshold DOUBLE PRECISION,
	kill_observed  DOUBLE PRECISION,
	metrics        JSONB NOT NULL DEFAULT '{}'::jsonb,
	final_score    DOUBLE PRECISION,
	tier           INT,
	rank           INT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	killed_at      TIMESTAMPTZ,
	PRIMARY KEY (run_id, zip)
);

CREATE INDEX IF NOT EXISTS idx_run_candidates_live ON run_candidates(run_id) WHERE NOT killed;

CREATE TABLE IF NOT EXISTS stage_logs (
	run_id       TEXT NOT NULL REFERENCES screening_runs(id),
	stage        INT NOT NULL,
	input_count  INT NOT NULL,
	output_count INT NOT NULL,
	killed_count INT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'complete',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	PRIMARY KEY (run_id, stage)
);
`

// Migrate creates the screening tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, screenMigration); err != nil {
		return eris.Wrap(err, "screen: migrate")
	}
	return nil
}

// CreateRun inserts a new screening run in running status.
func (s *PostgresStore) CreateRun(ctx context.Context, criteria FilterCriteria, params Thresholds, totalZIPs int) (*Run, error) {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "screen: marshal criteria")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "screen: marshal params")
	}

	run := &Run{
		ID:        uuid.New().String(),
		Criteria:  criteria,
		Params:    params,
		Status:    StatusRunning,
		TotalZIPs: totalZIPs,
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO screening_runs (id, criteria, params, status, current_stage, total_zips)
		VALUES ($1, $2, $3, $4, -1, $5)
		RETURNING created_at`,
		run.ID, criteriaJSON, paramsJSON, run.Status, totalZIPs,
	).Scan(&run.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "screen: create run")
	}
	run.CurrentStage = -1
	return run, nil
}

// GetRun fetches one run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, criteria, params, status, current_stage, total_zips,
			surviving_zips, error, created_at, completed_at
		FROM screening_runs WHERE id = $1`, runID)

	run, err := scanRun(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrConfiguration, "run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "screen: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, criteria, params, status, current_stage, total_zips,
			surviving_zips, error, created_at, completed_at
		FROM screening_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "screen: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "screen: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FailRun marks a run as errored with a message.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE screening_runs SET status = 'error', error = $2, completed_at = now() WHERE id = $1`,
		runID, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: fail run %s", runID)
	}
	return nil
}

// CompleteRun marks a run complete and records the surviving candidate
// count. Idempotent: a second call leaves the row unchanged.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE screening_runs SET
			status = 'complete',
			completed_at = now(),
			surviving_zips = (SELECT count(*) FROM run_candidates WHERE run_id = $1 AND NOT killed)
		WHERE id = $1 AND status <> 'complete'`,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: complete run %s", runID)
	}
	return nil
}

// InsertCandidates bulk-inserts the initial universe for a run via COPY.
func (s *PostgresStore) InsertCandidates(ctx context.Context, runID string, refs []CandidateSeed) (int64, error) {
	rows := make([][]any, len(refs))
	for i, r := range refs {
		rows[i] = []any{runID, r.ZIP, r.CountyFIPS}
	}
	n, err := db.CopyFrom(ctx, s.pool, "run_candidates", []string{"run_id", "zip", "county_fips"}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "screen: insert candidates for run %s", runID)
	}
	return n, nil
}

const candidateColumns = `run_id, zip, stage_reached, killed, kill_stage, kill_rule,
	kill_reason, kill_threshold, kill_observed, metrics, final_score, tier, rank,
	created_at, killed_at`

// ListLiveCandidates returns all non-killed candidates of a run.
func (s *PostgresStore) ListLiveCandidates(ctx context.Context, runID string) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM run_candidates WHERE run_id = $1 AND NOT killed ORDER BY zip`,
		runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: list live candidates")
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// GetCandidate fetches one candidate row.
func (s *PostgresStore) GetCandidate(ctx context.Context, runID, zip string) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM run_candidates WHERE run_id = $1 AND zip = $2`,
		runID, zip)

	c, err := scanCandidate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "screen: get candidate %s/%s", runID, zip)
	}
	return c, nil
}

// KillCandidate marks a candidate killed and freezes stage_reached at
// stage-1. A no-op when the candidate is already killed: kill is
// idempotent and monotonic, a candidate is never un-killed.
func (s *PostgresStore) KillCandidate(ctx context.Context, runID, zip string, stage int, rule, reason string, threshold, observed float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE run_candidates SET
			killed = true,
			kill_stage = $3,
			kill_rule = $4,
			kill_reason = $5,
			kill_threshold = $6,
			kill_observed = $7,
			stage_reached = $3 - 1,
			killed_at = now()
		WHERE run_id = $1 AND zip = $2 AND NOT killed`,
		runID, zip, stage, rule, reason, threshold, observed,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: kill candidate %s", zip)
	}
	return nil
}

// MergeMetrics merges a metrics delta into the candidate's map (collisions
// overwrite) and raises stage_reached to stage. Silent no-op on killed
// candidates, enforcing the frozen invariant.
func (s *PostgresStore) MergeMetrics(ctx context.Context, runID, zip string, stage int, delta Metrics) error {
	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return eris.Wrap(err, "screen: marshal metrics delta")
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE run_candidates SET
			metrics = metrics || $4::jsonb,
			stage_reached = GREATEST(stage_reached, $3)
		WHERE run_id = $1 AND zip = $2 AND NOT killed`,
		runID, zip, stage, deltaJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: merge metrics %s", zip)
	}
	return nil
}

// LogStage writes the audit entry for a stage and advances the run's
// current stage, in one transaction. Re-executing a stage refreshes its
// entry rather than appending a duplicate.
func (s *PostgresStore) LogStage(ctx context.Context, runID string, stage, input, output int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "screen: log stage: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO stage_logs (run_id, stage, input_count, output_count, killed_count, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, 'complete', now())
		ON CONFLICT (run_id, stage) DO UPDATE SET
			input_count = EXCLUDED.input_count,
			output_count = EXCLUDED.output_count,
			killed_count = EXCLUDED.killed_count,
			completed_at = now()`,
		runID, stage, input, output, input-output,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: log stage %d", stage)
	}

	_, err = tx.Exec(ctx,
		`UPDATE screening_runs SET current_stage = GREATEST(current_stage, $2) WHERE id = $1`,
		runID, stage,
	)
	if err != nil {
		return eris.Wrapf(err, "screen: advance current stage %d", stage)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "screen: log stage: commit")
	}
	return nil
}

// StageLogExists reports whether a completed stage log entry exists.
func (s *PostgresStore) StageLogExists(ctx context.Context, runID string, stage int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stage_logs WHERE run_id = $1 AND stage = $2 AND status = 'complete')`,
		runID, stage,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "screen: stage log exists")
	}
	return exists, nil
}

// ListStageLogs returns all stage log entries of a run in stage order.
func (s *PostgresStore) ListStageLogs(ctx context.Context, runID string) ([]StageLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, stage, input_count, output_count, killed_count, status, started_at, completed_at
		FROM stage_logs WHERE run_id = $1 ORDER BY stage`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: list stage logs")
	}
	defer rows.Close()

	var entries []StageLogEntry
	for rows.Next() {
		var e StageLogEntry
		if err := rows.Scan(&e.RunID, &e.Stage, &e.InputCount, &e.OutputCount,
			&e.KilledCount, &e.Status, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "screen: scan stage log")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SurvivorCount returns the number of non-killed candidates of a run.
func (s *PostgresStore) SurvivorCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM run_candidates WHERE run_id = $1 AND NOT killed`, runID,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "screen: survivor count")
	}
	return n, nil
}

// StageHistogram returns candidate counts grouped by stage_reached. The
// counts always sum to the run's total universe.
func (s *PostgresStore) StageHistogram(ctx context.Context, runID string) (map[int]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage_reached, count(*) FROM run_candidates WHERE run_id = $1 GROUP BY stage_reached`,
		runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: stage histogram")
	}
	defer rows.Close()

	hist := make(map[int]int)
	for rows.Next() {
		var stage, count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, eris.Wrap(err, "screen: scan histogram row")
		}
		hist[stage] = count
	}
	return hist, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var criteriaJSON, paramsJSON []byte
	err := row.Scan(&run.ID, &criteriaJSON, &paramsJSON, &run.Status, &run.CurrentStage,
		&run.TotalZIPs, &run.SurvivingZIPs, &run.Error, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteriaJSON, &run.Criteria); err != nil {
		return nil, eris.Wrap(err, "screen: unmarshal criteria")
	}
	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, eris.Wrap(err, "screen: unmarshal params")
	}
	return &run, nil
}

func scanCandidate(row pgx.Row) (*Candidate, error) {
	var c Candidate
	var metricsJSON []byte
	err := row.Scan(&c.RunID, &c.ZIP, &c.StageReached, &c.Killed, &c.KillStage,
		&c.KillRule, &c.KillReason, &c.KillThreshold, &c.KillObserved,
		&metricsJSON, &c.FinalScore, &c.Tier, &c.Rank, &c.CreatedAt, &c.KilledAt)
	if err != nil {
		return nil, err
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &c.Metrics); err != nil {
			return nil, eris.Wrap(err, "screen: unmarshal metrics")
		}
	}
	return &c, nil
}

func scanCandidates(rows pgx.Rows) ([]Candidate, error) {
	var candidates []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "screen: scan candidate")
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}
