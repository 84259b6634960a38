package service

import (
	"context"
	"time"

	"github.com/leadflow/backend/internal/models"
)

// ConsultantRepository returns active, under-capacity consultants that are not
// excluded, as of call time.
type ConsultantRepository interface {
	ListEligible(ctx context.Context, excluding *models.ExclusionSet) ([]models.Consultant, error)
}

type AssignmentStore interface {
	// CreateAssignment reserves capacity on the consultant and inserts the
	// assignment in one unit. It returns models.ErrConsultantUnavailable when
	// the consultant went inactive or full since selection.
	CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
}

// LedgerTx is the set of operations the ledger composes into one atomic unit
// while it holds the assignment.
type LedgerTx interface {
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	MaxReassignmentNumber(ctx context.Context, assignmentID string) (int, error)
	AppendEvent(ctx context.Context, ev models.ReassignmentEvent) (string, error)
	IncrementReassignmentCount(ctx context.Context, assignmentID string, delta int, entry models.HistoryEntry) error
	// TransferConsultant points the assignment at the new consultant and moves
	// one unit of load. It returns models.ErrConsultantUnavailable when the
	// new consultant is inactive or full, and models.ErrHolderChanged when
	// fromID no longer holds the assignment.
	TransferConsultant(ctx context.Context, assignmentID, fromID, toID string, at time.Time) error
}

// LedgerStore runs fn with the assignment row held exclusively; all writes
// made through tx commit together or not at all.
type LedgerStore interface {
	InLedgerTx(ctx context.Context, assignmentID string, fn func(tx LedgerTx) error) error
}

type EventReader interface {
	ListEvents(ctx context.Context, assignmentID string) ([]models.ReassignmentEvent, error)
	ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.ReassignmentEvent, error)
}

type AnalyticsSummaryStore interface {
	// ReplaceDailySummaries upserts rows keyed by (date, sdr, consultant) and
	// drops keys of that date not present in rows.
	ReplaceDailySummaries(ctx context.Context, day time.Time, rows []models.DailyAnalyticsSummary) error
	ListDailySummaries(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error)
}
