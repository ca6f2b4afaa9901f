package screen

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/facts"
)

// Registry owns the run lifecycle: it sizes the candidate universe, creates
// the run row, seeds the candidate table, and finalizes completed runs.
type Registry struct {
	store    Store
	provider facts.Provider
}

// NewRegistry creates a run registry.
func NewRegistry(store Store, provider facts.Provider) *Registry {
	return &Registry{store: store, provider: provider}
}

// StartRun computes the candidate universe from the reference catalog
// restricted by criteria, creates the run in running status, and
// bulk-inserts one candidate row per ZIP. Criteria matching zero
// candidates fail with ErrConfiguration and create nothing.
func (r *Registry) StartRun(ctx context.Context, criteria FilterCriteria, params Thresholds) (*Run, error) {
	refs, err := r.provider.ListZIPs(ctx, facts.CatalogFilter{
		States:        criteria.States,
		MinPopulation: criteria.MinPopulation,
	})
	if err != nil {
		return nil, eris.Wrap(err, "screen: size universe")
	}
	if len(refs) == 0 {
		return nil, eris.Wrap(ErrConfiguration, "filter criteria match zero candidates")
	}

	run, err := r.store.CreateRun(ctx, criteria, params, len(refs))
	if err != nil {
		return nil, err
	}

	seeds := make([]CandidateSeed, len(refs))
	for i, ref := range refs {
		seeds[i] = CandidateSeed{ZIP: ref.ZIP, CountyFIPS: ref.CountyFIPS}
	}
	n, err := r.store.InsertCandidates(ctx, run.ID, seeds)
	if err != nil {
		// Leave an error trace on the run so the failed start is visible.
		if failErr := r.store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			zap.L().Warn("screen: fail run after seed error", zap.String("run_id", run.ID), zap.Error(failErr))
		}
		return nil, eris.Wrapf(err, "screen: seed candidates for run %s", run.ID)
	}

	zap.L().Info("run started",
		zap.String("run_id", run.ID),
		zap.Int64("candidates", n),
		zap.Strings("states", criteria.States),
	)
	return run, nil
}

// CompleteRun finalizes a run. Idempotent.
func (r *Registry) CompleteRun(ctx context.Context, runID string) error {
	if err := r.store.CompleteRun(ctx, runID); err != nil {
		return err
	}
	zap.L().Info("run complete", zap.String("run_id", runID))
	return nil
}
