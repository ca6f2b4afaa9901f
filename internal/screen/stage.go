package screen

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteselect-cli/internal/facts"
)

// Kill is the outcome of a matched kill switch.
type Kill struct {
	Reason    string
	Threshold float64
	Observed  float64
}

// KillSwitch is a pure predicate over a candidate's facts and accumulated
// metrics. It returns nil to pass, or a Kill describing the elimination.
// A switch never fires on an unknown (nil) fact.
type KillSwitch struct {
	ID          string
	Description string
	Eval        func(f *facts.ZIPFacts, m Metrics, t Thresholds) *Kill
}

// Stage is an ordered batch of kill switches. Switches evaluate in slice
// order and the first match wins; the survivors' metrics delta is merged
// afterwards.
type Stage struct {
	Index    int
	Name     string
	Switches []KillSwitch
	Metrics  func(f *facts.ZIPFacts) Metrics
}

// Executor applies one stage's kill switches to every live candidate of a
// run. Safe to re-run: kill and merge are idempotent, and unresolved
// candidates are simply retried.
type Executor struct {
	store       Store
	provider    facts.Provider
	concurrency int
}

// NewExecutor creates a stage executor. Concurrency bounds the candidate
// fan-out; writes never interleave for the same candidate because each
// candidate is handled by exactly one goroutine.
func NewExecutor(store Store, provider facts.Provider, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Executor{store: store, provider: provider, concurrency: concurrency}
}

// ExecuteStage runs one stage against all live candidates of a run.
//
// Preconditions: the run must be in running status, and for stage N > 0 a
// completed stage log for N-1 must exist. Violations return
// ErrPrecedenceViolation before any candidate is touched.
func (e *Executor) ExecuteStage(ctx context.Context, runID string, stage Stage) (*StageResult, error) {
	log := zap.L().With(zap.String("run_id", runID), zap.Int("stage", stage.Index), zap.String("stage_name", stage.Name))

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusRunning {
		return nil, eris.Wrapf(ErrPrecedenceViolation, "run %s is %s, not running", runID, run.Status)
	}
	if stage.Index > 0 {
		done, err := e.store.StageLogExists(ctx, runID, stage.Index-1)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, eris.Wrapf(ErrPrecedenceViolation, "stage %d has no completed log for stage %d", stage.Index, stage.Index-1)
		}
	}

	live, err := e.store.ListLiveCandidates(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &StageResult{Stage: stage.Index, Input: len(live)}
	log.Info("executing stage", zap.Int("input", result.Input))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range live {
		cand := live[i]
		g.Go(func() error {
			outcome, err := e.evaluateCandidate(gctx, run, cand, stage)
			if err != nil {
				return err
			}
			mu.Lock()
			switch outcome {
			case outcomeKilled:
				result.Killed++
			case outcomeAdvanced:
				result.Advanced++
			case outcomeUnresolved:
				result.Unresolved++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "screen: stage %d", stage.Index)
	}

	result.Output = result.Input - result.Killed
	if err := e.store.LogStage(ctx, runID, stage.Index, result.Input, result.Output); err != nil {
		return nil, err
	}

	log.Info("stage complete",
		zap.Int("killed", result.Killed),
		zap.Int("advanced", result.Advanced),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("output", result.Output),
	)
	return result, nil
}

type candidateOutcome int

const (
	outcomeKilled candidateOutcome = iota
	outcomeAdvanced
	outcomeUnresolved
)

// evaluateCandidate applies the stage's switches to one candidate. Provider
// failures leave the candidate untouched for retry; store failures abort
// the stage since the audit trail would be incomplete.
func (e *Executor) evaluateCandidate(ctx context.Context, run *Run, cand Candidate, stage Stage) (candidateOutcome, error) {
	f, err := e.provider.ZIPFacts(ctx, cand.ZIP)
	if err != nil {
		zap.L().Debug("candidate unresolved",
			zap.String("run_id", run.ID),
			zap.String("zip", cand.ZIP),
			zap.Error(err),
		)
		return outcomeUnresolved, nil
	}

	// First matching switch wins; later switches are not evaluated so the
	// recorded kill reason stays unambiguous.
	for _, ks := range stage.Switches {
		kill := ks.Eval(f, cand.Metrics, run.Params)
		if kill == nil {
			continue
		}
		err := e.store.KillCandidate(ctx, run.ID, cand.ZIP, stage.Index,
			ks.ID, kill.Reason, kill.Threshold, kill.Observed)
		if err != nil {
			return 0, err
		}
		return outcomeKilled, nil
	}

	var delta Metrics
	if stage.Metrics != nil {
		delta = stage.Metrics(f)
	}
	if len(delta) == 0 {
		delta = Metrics{}
	}
	if err := e.store.MergeMetrics(ctx, run.ID, cand.ZIP, stage.Index, delta); err != nil {
		return 0, err
	}
	return outcomeAdvanced, nil
}
