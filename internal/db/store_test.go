package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Store{Pool: mock}, mock
}

var consultantCols = []string{"id", "name", "is_active", "current_assignment_count", "max_assignment_count", "last_assigned_at", "skill_ids"}

func TestCreateAssignment_ReservesCapacityThenInserts(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE consultants").
		WithArgs("c1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	a, err := store.CreateAssignment(ctx, models.Assignment{
		LeadIdentifier:   "lead-1",
		ConsultantID:     "c1",
		Status:           models.StatusAssigned,
		AssignmentMethod: models.MethodRoundRobin,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.AssignedAt.IsZero())
	assert.Equal(t, 0, a.ReassignmentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignment_FullConsultant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE consultants").
		WithArgs("c1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := store.CreateAssignment(context.Background(), models.Assignment{ConsultantID: "c1", AssignmentMethod: models.MethodSkillsBased})
	assert.ErrorIs(t, err, models.ErrConsultantUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssignment_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM assignments WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetAssignment(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssignment_DecodesSnapshots(t *testing.T) {
	store, mock := newMockStore(t)
	assignedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	skills := models.MarshalSkillsData(models.SkillsData{
		Requirements: []models.SkillRequirement{{SkillID: "sql", SkillName: "SQL", Priority: models.PriorityCritical}},
		MatchScore:   1,
		IsExactMatch: true,
	})
	delta := 0.25
	history, err := json.Marshal([]models.HistoryEntry{{ReassignmentNumber: 1, FromConsultantID: "c1", ToConsultantID: "c2", Success: true, SkillsMatchDelta: &delta}})
	require.NoError(t, err)
	original := "a1"

	mock.ExpectQuery("FROM assignments WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "lead_identifier", "lead_name", "consultant_id", "sdr_id", "status", "assigned_at",
			"reassignment_count", "original_assignment_id", "assignment_method", "skills_data", "reassignment_history",
		}).AddRow("a1", "lead-1", "Acme", "c2", "sdr-1", models.StatusReassigned, assignedAt, 1, &original, "skills_based", skills, history))

	a, err := store.GetAssignment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.MethodSkillsBased, a.AssignmentMethod)
	require.Len(t, a.SkillsData.Requirements, 1)
	assert.Equal(t, models.PriorityCritical, a.SkillsData.Requirements[0].Priority)
	require.Len(t, a.History, 1)
	assert.InDelta(t, 0.25, *a.History[0].SkillsMatchDelta, 1e-9)
	require.NotNil(t, a.OriginalAssignmentID)
	assert.Equal(t, "a1", *a.OriginalAssignmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEligible_PassesNormalizedExclusions(t *testing.T) {
	store, mock := newMockStore(t)
	excluded := models.NewExclusionSet(models.RefByID("C1"), models.RefByName("Bob   Smith"))

	mock.ExpectQuery("FROM consultants c").
		WithArgs([]string{"c1"}, []string{"bob smith"}).
		WillReturnRows(pgxmock.NewRows(consultantCols).
			AddRow("c2", "Ann Lee", true, 1, 5, nil, []string{"go"}).
			AddRow("c3", "BOB SMITH", true, 0, 5, nil, []string{}))

	out, err := store.ListEligible(context.Background(), excluded)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].ID)
	assert.Equal(t, []string{"go"}, out[0].SkillIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInLedgerTx_LocksRowAndCommits(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM assignments WHERE id = \\$1 FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectQuery("COALESCE\\(MAX\\(reassignment_number\\), 0\\)").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec("INSERT INTO reassignment_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE assignments").
		WithArgs("a1", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	var id string
	err := store.InLedgerTx(ctx, "a1", func(tx service.LedgerTx) error {
		max, err := tx.MaxReassignmentNumber(ctx, "a1")
		if err != nil {
			return err
		}
		ev := models.ReassignmentEvent{
			AssignmentID:         "a1",
			ReassignmentNumber:   max + 1,
			OriginalConsultantID: "c1",
			NewConsultantID:      "c2",
			Source:               models.SourceUserRequest,
			Timestamp:            now,
			Success:              true,
		}
		id, err = tx.AppendEvent(ctx, ev)
		if err != nil {
			return err
		}
		return tx.IncrementReassignmentCount(ctx, "a1", 1, ev.HistoryEntry())
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInLedgerTx_MissingAssignment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	called := false
	err := store.InLedgerTx(context.Background(), "nope", func(service.LedgerTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferConsultant_LocksInIDOrder(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	// c1 < c2, so the release of c1 runs first.
	mock.ExpectExec("GREATEST\\(current_assignment_count - 1, 0\\)").
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("current_assignment_count \\+ 1").
		WithArgs("c2", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE assignments SET consultant_id").
		WithArgs("a1", "c2", models.StatusReassigned, "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InLedgerTx(ctx, "a1", func(tx service.LedgerTx) error {
		return tx.TransferConsultant(ctx, "a1", "c1", "c2", at)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferConsultant_TargetFull(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectExec("current_assignment_count \\+ 1").
		WithArgs("c1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InLedgerTx(ctx, "a1", func(tx service.LedgerTx) error {
		return tx.TransferConsultant(ctx, "a1", "c9", "c1", at)
	})
	assert.ErrorIs(t, err, models.ErrConsultantUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferConsultant_HolderChanged(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("a1").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectExec("GREATEST\\(current_assignment_count - 1, 0\\)").
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("current_assignment_count \\+ 1").
		WithArgs("c3", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE assignments SET consultant_id").
		WithArgs("a1", "c3", models.StatusReassigned, "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InLedgerTx(ctx, "a1", func(tx service.LedgerTx) error {
		return tx.TransferConsultant(ctx, "a1", "c1", "c3", at)
	})
	assert.ErrorIs(t, err, models.ErrHolderChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsBetween(t *testing.T) {
	store, mock := newMockStore(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	score := 0.5
	reason := "client request"
	errMsg := "consultant is no longer eligible"

	mock.ExpectQuery("FROM reassignment_events WHERE created_at >= \\$1 AND created_at < \\$2").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "assignment_id", "reassignment_number", "sdr_id", "original_consultant_id", "new_consultant_id",
			"lead_identifier", "lead_name", "reason", "previous_skills_match_score", "new_skills_match_score",
			"skills_requirements", "exclusion_list", "source", "created_at", "processing_time_ms", "success", "error_message",
		}).
			AddRow("e1", "a1", 1, "sdr-1", "c1", "c2", "lead-1", "Acme", &reason, &score, &score,
				[]byte(`[{"skill_id":"go","priority":"high"}]`), []string{"c1"}, "user_request", from.Add(time.Hour), int64(12), true, nil).
			AddRow("e2", "a1", 2, "sdr-1", "c2", "c3", "lead-1", "Acme", nil, nil, nil,
				[]byte(`[]`), []string{"c2"}, "system_automatic", from.Add(2*time.Hour), int64(30), false, &errMsg))

	events, err := store.ListEventsBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "client request", events[0].Reason)
	assert.Equal(t, models.PriorityHigh, events[0].SkillsRequirements[0].Priority)
	assert.Equal(t, models.SourceSystemAutomatic, events[1].Source)
	assert.Empty(t, events[1].Reason)
	require.NotNil(t, events[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceDailySummaries_DeletesThenCopies(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_reassignment_analytics").
		WithArgs(day).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"daily_reassignment_analytics"}, summaryColumns).
		WillReturnResult(2)
	mock.ExpectCommit()

	err := store.ReplaceDailySummaries(context.Background(), day, []models.DailyAnalyticsSummary{
		{Date: day, SDRID: "sdr-1", ConsultantID: "c1", TotalReassignments: 2, SuccessfulReassignments: 2},
		{Date: day, SDRID: "sdr-1", ConsultantID: "c2", TotalReassignments: 1, FailedReassignments: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceDailySummaries_RejectsFailedAboveTotal(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.ReplaceDailySummaries(context.Background(), time.Now(), []models.DailyAnalyticsSummary{
		{SDRID: "sdr-1", ConsultantID: "c1", TotalReassignments: 1, FailedReassignments: 2},
	})
	assert.True(t, errors.Is(err, models.ErrConstraint))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AppliesPendingFiles(t *testing.T) {
	_, mock := newMockStore(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS skills").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_init.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock, zerolog.Nop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	_, mock := newMockStore(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock, zerolog.Nop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
