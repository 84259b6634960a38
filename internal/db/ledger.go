package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

// InLedgerTx locks the assignment row for the lifetime of the transaction,
// so concurrent ledger writers of one assignment run one after another.
func (s *Store) InLedgerTx(ctx context.Context, assignmentID string, fn func(tx service.LedgerTx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM assignments WHERE id = $1 FOR UPDATE`, assignmentID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return eris.Wrap(err, "db: lock assignment")
		}
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx pgx.Tx
}

func (l *ledgerTx) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	return getAssignment(ctx, l.tx, id)
}

func (l *ledgerTx) MaxReassignmentNumber(ctx context.Context, assignmentID string) (int, error) {
	var max int
	err := l.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(reassignment_number), 0) FROM reassignment_events WHERE assignment_id = $1
	`, assignmentID).Scan(&max)
	if err != nil {
		return 0, eris.Wrap(err, "db: max reassignment number")
	}
	return max, nil
}

func (l *ledgerTx) AppendEvent(ctx context.Context, ev models.ReassignmentEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	reqs, err := json.Marshal(nonNilRequirements(ev.SkillsRequirements))
	if err != nil {
		return "", eris.Wrap(err, "db: encode skills requirements")
	}
	exclusions := ev.ExclusionList
	if exclusions == nil {
		exclusions = []string{}
	}
	_, err = l.tx.Exec(ctx, `
		INSERT INTO reassignment_events (id, assignment_id, reassignment_number, sdr_id, original_consultant_id,
			new_consultant_id, lead_identifier, lead_name, reason, previous_skills_match_score, new_skills_match_score,
			skills_requirements, exclusion_list, source, created_at, processing_time_ms, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, ev.ID, ev.AssignmentID, ev.ReassignmentNumber, ev.SDRID, ev.OriginalConsultantID,
		ev.NewConsultantID, ev.LeadIdentifier, ev.LeadName, nullableString(ev.Reason), ev.PreviousSkillsMatchScore, ev.NewSkillsMatchScore,
		reqs, exclusions, string(ev.Source), ev.Timestamp, ev.ProcessingTimeMs, ev.Success, ev.ErrorMessage)
	if err != nil {
		return "", eris.Wrap(err, "db: insert reassignment event")
	}
	return ev.ID, nil
}

// IncrementReassignmentCount bumps the counter, appends the cached history
// entry and, on the first reassignment, marks the row as its own chain root.
func (l *ledgerTx) IncrementReassignmentCount(ctx context.Context, assignmentID string, delta int, entry models.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "db: encode history entry")
	}
	tag, err := l.tx.Exec(ctx, `
		UPDATE assignments
		SET reassignment_count = reassignment_count + $2,
			reassignment_history = reassignment_history || jsonb_build_array($3::jsonb),
			original_assignment_id = COALESCE(original_assignment_id, id),
			updated_at = NOW()
		WHERE id = $1
	`, assignmentID, delta, raw)
	if err != nil {
		return eris.Wrap(err, "db: increment reassignment count")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TransferConsultant moves one unit of load from the old consultant to the
// new one. Rows are touched in id order so two transfers crossing the same
// pair of consultants cannot deadlock. The assignment must still be held by
// fromID, otherwise ErrHolderChanged rolls the transaction back.
func (l *ledgerTx) TransferConsultant(ctx context.Context, assignmentID, fromID, toID string, at time.Time) error {
	if fromID < toID {
		if err := releaseCapacity(ctx, l.tx, fromID); err != nil {
			return err
		}
		if err := reserveCapacity(ctx, l.tx, toID, at); err != nil {
			return err
		}
	} else {
		if err := reserveCapacity(ctx, l.tx, toID, at); err != nil {
			return err
		}
		if err := releaseCapacity(ctx, l.tx, fromID); err != nil {
			return err
		}
	}
	tag, err := l.tx.Exec(ctx, `
		UPDATE assignments SET consultant_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND consultant_id = $4
	`, assignmentID, toID, models.StatusReassigned, fromID)
	if err != nil {
		return eris.Wrap(err, "db: transfer assignment")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrHolderChanged
	}
	return nil
}

func nonNilRequirements(reqs []models.SkillRequirement) []models.SkillRequirement {
	if reqs == nil {
		return []models.SkillRequirement{}
	}
	return reqs
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
