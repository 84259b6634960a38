package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadflow/backend/internal/models"
)

const eventColumns = `
	SELECT id, assignment_id, reassignment_number, sdr_id, original_consultant_id, new_consultant_id,
		lead_identifier, lead_name, reason, previous_skills_match_score, new_skills_match_score,
		skills_requirements, exclusion_list, source, created_at, processing_time_ms, success, error_message
	FROM reassignment_events`

func (s *Store) ListEvents(ctx context.Context, assignmentID string) ([]models.ReassignmentEvent, error) {
	return s.queryEvents(ctx, eventColumns+` WHERE assignment_id = $1 ORDER BY reassignment_number ASC`, assignmentID)
}

// ListEventsBetween returns events with from <= created_at < to.
func (s *Store) ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.ReassignmentEvent, error) {
	return s.queryEvents(ctx, eventColumns+` WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC, id ASC`, from, to)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.ReassignmentEvent, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "db: query reassignment events")
	}
	defer rows.Close()

	out := []models.ReassignmentEvent{}
	for rows.Next() {
		var (
			ev      models.ReassignmentEvent
			reason  *string
			reqsRaw []byte
			source  string
		)
		if err := rows.Scan(&ev.ID, &ev.AssignmentID, &ev.ReassignmentNumber, &ev.SDRID, &ev.OriginalConsultantID, &ev.NewConsultantID,
			&ev.LeadIdentifier, &ev.LeadName, &reason, &ev.PreviousSkillsMatchScore, &ev.NewSkillsMatchScore,
			&reqsRaw, &ev.ExclusionList, &source, &ev.Timestamp, &ev.ProcessingTimeMs, &ev.Success, &ev.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "db: scan reassignment event")
		}
		if reason != nil {
			ev.Reason = *reason
		}
		ev.Source = models.ReassignmentSource(source)
		if len(reqsRaw) > 0 {
			if err := json.Unmarshal(reqsRaw, &ev.SkillsRequirements); err != nil {
				return nil, eris.Wrap(err, "db: decode skills requirements")
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: iterate reassignment events")
	}
	return out, nil
}

var summaryColumns = []string{
	"date", "sdr_id", "consultant_id", "total_reassignments", "successful_reassignments", "failed_reassignments",
	"avg_processing_time_ms", "most_common_reason", "skills_based_reassignment_count", "avg_reassignment_number",
	"max_reassignment_number", "unique_leads_reassigned",
}

// ReplaceDailySummaries swaps the day's rows in one transaction, so a rerun
// over the same events leaves exactly the same table contents.
func (s *Store) ReplaceDailySummaries(ctx context.Context, day time.Time, rows []models.DailyAnalyticsSummary) error {
	date := dateOnly(day)
	for _, r := range rows {
		if r.FailedReassignments > r.TotalReassignments {
			return models.ErrConstraint
		}
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM daily_reassignment_analytics WHERE date = $1`, date); err != nil {
			return eris.Wrap(err, "db: clear daily analytics")
		}
		if len(rows) == 0 {
			return nil
		}
		data := make([][]any, 0, len(rows))
		for _, r := range rows {
			data = append(data, []any{
				date, r.SDRID, r.ConsultantID, r.TotalReassignments, r.SuccessfulReassignments, r.FailedReassignments,
				r.AvgProcessingTimeMs, r.MostCommonReason, r.SkillsBasedReassignmentCount, r.AvgReassignmentNumber,
				r.MaxReassignmentNumber, r.UniqueLeadsReassigned,
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_reassignment_analytics"}, summaryColumns, pgx.CopyFromRows(data)); err != nil {
			return eris.Wrap(err, "db: copy daily analytics")
		}
		return nil
	})
}

func (s *Store) ListDailySummaries(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT date, sdr_id, consultant_id, total_reassignments, successful_reassignments, failed_reassignments,
			avg_processing_time_ms, most_common_reason, skills_based_reassignment_count, avg_reassignment_number,
			max_reassignment_number, unique_leads_reassigned
		FROM daily_reassignment_analytics
		WHERE date = $1
		ORDER BY sdr_id ASC, consultant_id ASC
	`, dateOnly(day))
	if err != nil {
		return nil, eris.Wrap(err, "db: list daily analytics")
	}
	defer rows.Close()

	out := []models.DailyAnalyticsSummary{}
	for rows.Next() {
		var r models.DailyAnalyticsSummary
		if err := rows.Scan(&r.Date, &r.SDRID, &r.ConsultantID, &r.TotalReassignments, &r.SuccessfulReassignments, &r.FailedReassignments,
			&r.AvgProcessingTimeMs, &r.MostCommonReason, &r.SkillsBasedReassignmentCount, &r.AvgReassignmentNumber,
			&r.MaxReassignmentNumber, &r.UniqueLeadsReassigned); err != nil {
			return nil, eris.Wrap(err, "db: scan daily analytics")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: iterate daily analytics")
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
