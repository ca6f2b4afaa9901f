// Package facts defines the fact-provider boundary for the screening engine.
// The core consumes structured records keyed by ZIP or county; it never owns
// acquisition of the underlying data. Absent fields are nil pointers, an
// explicit "unknown" distinct from zero.
package facts

import (
	"context"
	"time"
)

// ZIPRef is one entry of the reference catalog used to seed a run's
// candidate universe.
type ZIPRef struct {
	ZIP        string
	CountyFIPS string
	State      string
	Population float64
}

// CatalogFilter restricts the reference catalog when sizing a universe.
type CatalogFilter struct {
	States        []string
	MinPopulation float64
}

// ZIPFacts holds per-ZIP attributes consumed by stage kill switches.
// Nil fields are unknown; a kill switch never fires on an unknown value.
type ZIPFacts struct {
	ZIP        string
	CountyFIPS string
	State      string

	Population            *float64
	Density               *float64 // persons per square mile
	MedianIncome          *float64
	PovertyRatePct        *float64
	RenterSharePct        *float64
	FacilityCount         *float64 // competing facilities within trade radius
	SqftPerCapita         *float64
	ProjectedYieldPct     *float64
	BreakevenOccupancyPct *float64
	LandPricePerAcre      *float64
}

// CountyFacts holds per-county attributes consumed by the scoring engine.
type CountyFacts struct {
	CountyFIPS string
	CountyName string
	State      string

	// Financial feasibility.
	ProjectedYieldPct     *float64
	RentCushionPts        *float64 // achievable rent minus breakeven rent, in points
	BreakevenOccupancyPct *float64

	// Market saturation and demand.
	SqftPerCapita      *float64
	AvgRentPerSqft     *float64
	CatalystDemandSqft *float64 // demand attributable to announced catalysts

	// Growth trajectory.
	PopulationGrowthPct *float64
	IncomeGrowthPct     *float64
	PermitGrowthPct     *float64

	// Jurisdiction difficulty, 1 (easy) to 10 (hostile).
	RegulatoryDifficulty *float64

	UpdatedAt *time.Time
}

// Provider is the external collaborator supplying facts to the core.
// Implementations decide their own caching, retry, and pacing; the core
// treats each call as an opaque boundary that either succeeds, returns
// no data, or fails.
type Provider interface {
	// ListZIPs returns the reference catalog restricted by the filter.
	ListZIPs(ctx context.Context, f CatalogFilter) ([]ZIPRef, error)
	// ZIPFacts returns facts for one candidate, or ErrNotFound.
	ZIPFacts(ctx context.Context, zip string) (*ZIPFacts, error)
	// CountyFacts returns facts for one county, or ErrNotFound.
	CountyFacts(ctx context.Context, countyFIPS string) (*CountyFacts, error)
}

// Float returns a pointer to v. Convenience for building fact records.
func Float(v float64) *float64 { return &v }
