package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/lock"
	"github.com/leadflow/backend/internal/metrics"
)

// Stores is everything the engine reads and writes. Both the Postgres store
// and memstore implement it.
type Stores interface {
	ConsultantRepository
	AssignmentStore
	LedgerStore
	EventReader
	AnalyticsSummaryStore
}

type Options struct {
	LookupTimeout    time.Duration
	AppendTimeout    time.Duration
	PartialThreshold float64
	MaxAlternatives  int
	Location         *time.Location
	Locker           lock.Locker
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

type Engine struct {
	Service    *AssignmentService
	Aggregator *AnalyticsAggregator
}

func NewEngine(stores Stores, opts Options) Engine {
	selector := &AssignmentSelector{
		Matcher:          &ConsultantMatcher{Consultants: stores, LookupTimeout: opts.LookupTimeout},
		PartialThreshold: opts.PartialThreshold,
		MaxAlternatives:  opts.MaxAlternatives,
		Metrics:          opts.Metrics,
		Logger:           opts.Logger.With().Str("component", "selector").Logger(),
	}
	ledger := &ReassignmentLedger{
		Store:         stores,
		Locker:        opts.Locker,
		AppendTimeout: opts.AppendTimeout,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger.With().Str("component", "ledger").Logger(),
	}
	return Engine{
		Service: &AssignmentService{
			Selector:    selector,
			Ledger:      ledger,
			Assignments: stores,
			Events:      stores,
			Logger:      opts.Logger.With().Str("component", "assignments").Logger(),
		},
		Aggregator: &AnalyticsAggregator{
			Events:    stores,
			Summaries: stores,
			Location:  opts.Location,
			Metrics:   opts.Metrics,
			Logger:    opts.Logger.With().Str("component", "analytics").Logger(),
		},
	}
}
