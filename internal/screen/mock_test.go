package screen

import (
	"context"
	"sync"

	"github.com/sells-group/siteselect-cli/internal/facts"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu sync.Mutex

	run           *Run
	runErr        error
	live          []Candidate
	stageLogDone  map[int]bool
	stageLogErr   error
	killed        map[string]Kill
	killedRules   map[string]string
	merged        map[string]Metrics
	mergedStage   map[string]int
	loggedStages  []StageLogEntry
	completedRuns []string
	failedRuns    []string
	seeds         []CandidateSeed
	seedErr       error
	createdRuns   int
	survivors     int
}

func newMockStore() *mockStore {
	return &mockStore{
		stageLogDone: make(map[int]bool),
		killed:       make(map[string]Kill),
		killedRules:  make(map[string]string),
		merged:       make(map[string]Metrics),
		mergedStage:  make(map[string]int),
	}
}

func (m *mockStore) CreateRun(_ context.Context, criteria FilterCriteria, params Thresholds, totalZIPs int) (*Run, error) {
	m.createdRuns++
	run := &Run{ID: "run-1", Criteria: criteria, Params: params, Status: StatusRunning, CurrentStage: -1, TotalZIPs: totalZIPs}
	m.run = run
	return run, nil
}

func (m *mockStore) GetRun(_ context.Context, _ string) (*Run, error) {
	if m.runErr != nil {
		return nil, m.runErr
	}
	return m.run, nil
}

func (m *mockStore) ListRuns(_ context.Context, _ int) ([]Run, error) {
	if m.run == nil {
		return nil, nil
	}
	return []Run{*m.run}, nil
}

func (m *mockStore) FailRun(_ context.Context, runID string, _ string) error {
	m.failedRuns = append(m.failedRuns, runID)
	return nil
}

func (m *mockStore) CompleteRun(_ context.Context, runID string) error {
	m.completedRuns = append(m.completedRuns, runID)
	return nil
}

func (m *mockStore) InsertCandidates(_ context.Context, _ string, refs []CandidateSeed) (int64, error) {
	if m.seedErr != nil {
		return 0, m.seedErr
	}
	m.seeds = append(m.seeds, refs...)
	return int64(len(refs)), nil
}

func (m *mockStore) ListLiveCandidates(_ context.Context, _ string) ([]Candidate, error) {
	return m.live, nil
}

func (m *mockStore) GetCandidate(_ context.Context, _, zip string) (*Candidate, error) {
	for i := range m.live {
		if m.live[i].ZIP == zip {
			return &m.live[i], nil
		}
	}
	return nil, nil
}

func (m *mockStore) KillCandidate(_ context.Context, _, zip string, _ int, rule, reason string, threshold, observed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, already := m.killed[zip]; already {
		return nil // idempotent, mirrors the store's NOT killed guard
	}
	m.killed[zip] = Kill{Reason: reason, Threshold: threshold, Observed: observed}
	m.killedRules[zip] = rule
	return nil
}

func (m *mockStore) MergeMetrics(_ context.Context, _, zip string, stage int, delta Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dead := m.killed[zip]; dead {
		return nil // frozen invariant
	}
	if m.merged[zip] == nil {
		m.merged[zip] = make(Metrics)
	}
	for k, v := range delta {
		m.merged[zip][k] = v
	}
	if stage > m.mergedStage[zip] {
		m.mergedStage[zip] = stage
	}
	return nil
}

func (m *mockStore) LogStage(_ context.Context, runID string, stage, input, output int) error {
	if m.stageLogErr != nil {
		return m.stageLogErr
	}
	m.loggedStages = append(m.loggedStages, StageLogEntry{
		RunID: runID, Stage: stage, InputCount: input, OutputCount: output, KilledCount: input - output,
	})
	m.stageLogDone[stage] = true
	return nil
}

func (m *mockStore) StageLogExists(_ context.Context, _ string, stage int) (bool, error) {
	return m.stageLogDone[stage], nil
}

func (m *mockStore) ListStageLogs(_ context.Context, _ string) ([]StageLogEntry, error) {
	return m.loggedStages, nil
}

func (m *mockStore) SurvivorCount(_ context.Context, _ string) (int, error) {
	return m.survivors, nil
}

func (m *mockStore) StageHistogram(_ context.Context, _ string) (map[int]int, error) {
	hist := make(map[int]int)
	for _, c := range m.live {
		hist[c.StageReached]++
	}
	return hist, nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }

// mockProvider implements facts.Provider for testing.
type mockProvider struct {
	refs    []facts.ZIPRef
	zips    map[string]*facts.ZIPFacts
	fail    map[string]error
	listErr error
}

func (m *mockProvider) ListZIPs(_ context.Context, f facts.CatalogFilter) ([]facts.ZIPRef, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []facts.ZIPRef
	for _, r := range m.refs {
		if f.MinPopulation > 0 && r.Population < f.MinPopulation {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockProvider) ZIPFacts(_ context.Context, zip string) (*facts.ZIPFacts, error) {
	if err, ok := m.fail[zip]; ok {
		return nil, err
	}
	if f, ok := m.zips[zip]; ok {
		return f, nil
	}
	return nil, facts.ErrNotFound
}

func (m *mockProvider) CountyFacts(_ context.Context, _ string) (*facts.CountyFacts, error) {
	return nil, facts.ErrNotFound
}
