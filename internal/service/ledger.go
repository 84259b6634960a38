package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/lock"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
)

const (
	errConsultantNoLongerEligible = "consultant is no longer eligible"
	errHolderChanged              = "assignment was reassigned by another request"
)

// ReassignmentRecord is the input of one ledger write.
type ReassignmentRecord struct {
	AssignmentID         string
	OriginalConsultantID string
	NewConsultantID      string
	LeadIdentifier       string
	LeadName             string
	Reason               string
	Source               models.ReassignmentSource
	PreviousScore        *float64
	NewScore             *float64
	Requirements         []models.SkillRequirement
	Exclusions           []string
	ProcessingTimeMs     int64
	Success              bool
	ErrorMessage         string
}

// ReassignmentLedger appends reassignment events and keeps the owning
// assignment's counter and history in step with them.
type ReassignmentLedger struct {
	Store LedgerStore
	// Locker, when set, serializes writers per assignment ahead of the store
	// transaction, across processes when it is Redis backed.
	Locker        lock.Locker
	AppendTimeout time.Duration
	Now           func() time.Time
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

func (l *ReassignmentLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func validateRecord(rec ReassignmentRecord) error {
	switch {
	case strings.TrimSpace(rec.AssignmentID) == "":
		return newError(KindInvalidReassignment, "assignment id is required")
	case strings.TrimSpace(rec.OriginalConsultantID) == "" || strings.TrimSpace(rec.NewConsultantID) == "":
		return newError(KindInvalidReassignment, "original and new consultant ids are required")
	case rec.OriginalConsultantID == rec.NewConsultantID:
		return newError(KindInvalidReassignment, "new consultant must differ from the original consultant")
	case !rec.Source.Valid():
		return newError(KindInvalidReassignment, "unknown reassignment source "+string(rec.Source))
	case !validScore(rec.PreviousScore) || !validScore(rec.NewScore):
		return newError(KindInvalidReassignment, "skills match scores must be within [0,1]")
	}
	return nil
}

func validScore(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 1)
}

// RecordReassignment appends one event. A successful record whose new
// consultant fails the commit-time capacity check, or whose original
// consultant no longer holds the assignment, is stored as a failed event and
// returned together with a CONSULTANT_NO_LONGER_ELIGIBLE error.
func (l *ReassignmentLedger) RecordReassignment(ctx context.Context, rec ReassignmentRecord) (models.ReassignmentEvent, error) {
	if err := validateRecord(rec); err != nil {
		return models.ReassignmentEvent{}, err
	}
	if !rec.Success && strings.TrimSpace(rec.ErrorMessage) == "" {
		rec.ErrorMessage = "reassignment failed"
	}

	if l.AppendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.AppendTimeout)
		defer cancel()
	}

	start := time.Now()
	if l.Locker != nil {
		unlock, err := l.Locker.Lock(ctx, "assignment:"+rec.AssignmentID)
		if err != nil {
			return models.ReassignmentEvent{}, l.classify(ctx, err)
		}
		defer unlock()
	}

	ev, err := l.append(ctx, rec)
	if err != nil && rec.Success {
		var msg string
		switch {
		case errors.Is(err, models.ErrConsultantUnavailable):
			msg = errConsultantNoLongerEligible
		case errors.Is(err, models.ErrHolderChanged):
			msg = errHolderChanged
		}
		if msg != "" {
			rec.Success = false
			rec.ErrorMessage = msg
			ev, err = l.append(ctx, rec)
			if err == nil {
				err = newError(KindConsultantNoLongerEligible, msg)
			}
		}
	}

	switch {
	case err == nil:
	case IsKind(err, KindConsultantNoLongerEligible):
	default:
		return models.ReassignmentEvent{}, l.classify(ctx, err)
	}

	l.Metrics.ObserveReassignment(string(ev.Source), ev.Success, time.Since(start))
	l.Logger.Info().
		Str("assignment_id", ev.AssignmentID).
		Int("reassignment_number", ev.ReassignmentNumber).
		Str("from", ev.OriginalConsultantID).
		Str("to", ev.NewConsultantID).
		Str("source", string(ev.Source)).
		Bool("success", ev.Success).
		Msg("reassignment recorded")
	return ev, err
}

func (l *ReassignmentLedger) append(ctx context.Context, rec ReassignmentRecord) (models.ReassignmentEvent, error) {
	var ev models.ReassignmentEvent
	err := l.Store.InLedgerTx(ctx, rec.AssignmentID, func(tx LedgerTx) error {
		a, err := tx.GetAssignment(ctx, rec.AssignmentID)
		if err != nil {
			return err
		}
		if rec.Success && a.ConsultantID != rec.OriginalConsultantID {
			return models.ErrHolderChanged
		}
		maxNum, err := tx.MaxReassignmentNumber(ctx, rec.AssignmentID)
		if err != nil {
			return err
		}

		ev = models.ReassignmentEvent{
			AssignmentID:             a.ID,
			ReassignmentNumber:       maxNum + 1,
			SDRID:                    a.SDRID,
			OriginalConsultantID:     rec.OriginalConsultantID,
			NewConsultantID:          rec.NewConsultantID,
			LeadIdentifier:           firstNonEmpty(rec.LeadIdentifier, a.LeadIdentifier),
			LeadName:                 firstNonEmpty(rec.LeadName, a.LeadName),
			Reason:                   rec.Reason,
			PreviousSkillsMatchScore: rec.PreviousScore,
			NewSkillsMatchScore:      rec.NewScore,
			SkillsRequirements:       rec.Requirements,
			ExclusionList:            rec.Exclusions,
			Source:                   rec.Source,
			Timestamp:                l.now(),
			ProcessingTimeMs:         rec.ProcessingTimeMs,
			Success:                  rec.Success,
		}
		if ev.SkillsRequirements == nil {
			ev.SkillsRequirements = []models.SkillRequirement{}
		}
		if ev.ExclusionList == nil {
			ev.ExclusionList = []string{}
		}
		if !rec.Success {
			msg := rec.ErrorMessage
			ev.ErrorMessage = &msg
		}

		if rec.Success {
			if err := tx.TransferConsultant(ctx, a.ID, rec.OriginalConsultantID, rec.NewConsultantID, ev.Timestamp); err != nil {
				return err
			}
		}

		id, err := tx.AppendEvent(ctx, ev)
		if err != nil {
			return err
		}
		ev.ID = id
		return tx.IncrementReassignmentCount(ctx, a.ID, 1, ev.HistoryEntry())
	})
	return ev, err
}

func (l *ReassignmentLedger) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "reassignment append timed out", Err: err}
	}
	if errors.Is(err, models.ErrNotFound) {
		return &Error{Kind: KindInvalidReassignment, Message: "assignment does not exist", Err: err}
	}
	return storeError("reassignment append", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
