// Package screen implements the run/stage screening core: campaign lifecycle,
// ordered kill-switch stages with auditable kill records, and per-candidate
// metric accumulation.
package screen

import (
	"time"
)

// RunStatus is the lifecycle state of a screening run.
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusError    RunStatus = "error"
)

// FilterCriteria restricts the candidate universe at run start.
type FilterCriteria struct {
	States        []string `json:"states,omitempty"`
	MinPopulation float64  `json:"min_population,omitempty"`
}

// Thresholds are the kill-switch limits for one run. They are snapshotted
// into the run row at creation and never change for the run's lifetime.
type Thresholds struct {
	MinPopulation     float64 `json:"min_population"`
	MaxDensity        float64 `json:"max_density"`
	MinDensity        float64 `json:"min_density"`
	MinMedianIncome   float64 `json:"min_median_income"`
	MaxPovertyRate    float64 `json:"max_poverty_rate"`
	MaxRenterShare    float64 `json:"max_renter_share"`
	MaxFacilities     float64 `json:"max_facilities"`
	MaxSqftPerCapita  float64 `json:"max_sqft_per_capita"`
	MinProjectedYield float64 `json:"min_projected_yield"`
	MaxBreakevenOcc   float64 `json:"max_breakeven_occupancy"`
	MaxLandPricePerAc float64 `json:"max_land_price_per_acre"`
}

// Run is one screening campaign over a candidate universe.
type Run struct {
	ID            string         `json:"id" db:"id"`
	Criteria      FilterCriteria `json:"criteria" db:"criteria"`
	Params        Thresholds     `json:"params" db:"params"`
	Status        RunStatus      `json:"status" db:"status"`
	CurrentStage  int            `json:"current_stage" db:"current_stage"`
	TotalZIPs     int            `json:"total_zips" db:"total_zips"`
	SurvivingZIPs int            `json:"surviving_zips" db:"surviving_zips"`
	Error         string         `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Metrics is the open-ended per-candidate metric map. Stages add keys over
// the run's life; keys are never removed and collisions overwrite.
type Metrics map[string]any

// Candidate is the per-run state of one ZIP. Once killed it is frozen:
// no further metric or stage advancement happens.
type Candidate struct {
	RunID         string     `json:"run_id" db:"run_id"`
	ZIP           string     `json:"zip" db:"zip"`
	StageReached  int        `json:"stage_reached" db:"stage_reached"`
	Killed        bool       `json:"killed" db:"killed"`
	KillStage     *int       `json:"kill_stage,omitempty" db:"kill_stage"`
	KillRule      *string    `json:"kill_rule,omitempty" db:"kill_rule"`
	KillReason    *string    `json:"kill_reason,omitempty" db:"kill_reason"`
	KillThreshold *float64   `json:"kill_threshold,omitempty" db:"kill_threshold"`
	KillObserved  *float64   `json:"kill_observed,omitempty" db:"kill_observed"`
	Metrics       Metrics    `json:"metrics" db:"metrics"`
	FinalScore    *float64   `json:"final_score,omitempty" db:"final_score"`
	Tier          *int       `json:"tier,omitempty" db:"tier"`
	Rank          *int       `json:"rank,omitempty" db:"rank"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	KilledAt      *time.Time `json:"killed_at,omitempty" db:"killed_at"`
}

// StageLogEntry is the audit record for one executed stage of a run.
type StageLogEntry struct {
	RunID       string     `json:"run_id" db:"run_id"`
	Stage       int        `json:"stage" db:"stage"`
	InputCount  int        `json:"input_count" db:"input_count"`
	OutputCount int        `json:"output_count" db:"output_count"`
	KilledCount int        `json:"killed_count" db:"killed_count"`
	Status      string     `json:"status" db:"status"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// StageResult summarizes one stage execution. Unresolved candidates saw a
// provider failure and were neither killed nor advanced; re-running the
// stage retries them.
type StageResult struct {
	Stage      int `json:"stage"`
	Input      int `json:"input"`
	Killed     int `json:"killed"`
	Advanced   int `json:"advanced"`
	Unresolved int `json:"unresolved"`
	Output     int `json:"output"`
}
