package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadflow/backend/internal/models"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	Pool Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse database url")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "db: open pool")
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}

func (s *Store) UpsertSkill(ctx context.Context, sk models.Skill) (models.Skill, error) {
	if sk.ID == "" {
		sk.ID = uuid.NewString()
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO skills (id, name, category) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category
	`, sk.ID, sk.Name, sk.Category)
	if err != nil {
		return models.Skill{}, eris.Wrap(err, "db: upsert skill")
	}
	return sk, nil
}

func (s *Store) ListSkills(ctx context.Context) ([]models.Skill, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, category FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "db: list skills")
	}
	defer rows.Close()

	out := []models.Skill{}
	for rows.Next() {
		var sk models.Skill
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.Category); err != nil {
			return nil, eris.Wrap(err, "db: scan skill")
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// UpsertConsultant writes the consultant row and replaces its skill set.
func (s *Store) UpsertConsultant(ctx context.Context, c models.Consultant) (models.Consultant, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO consultants (id, name, is_active, current_assignment_count, max_assignment_count, last_assigned_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				is_active = EXCLUDED.is_active,
				current_assignment_count = EXCLUDED.current_assignment_count,
				max_assignment_count = EXCLUDED.max_assignment_count,
				last_assigned_at = EXCLUDED.last_assigned_at,
				updated_at = NOW()
		`, c.ID, c.Name, c.IsActive, c.CurrentAssignmentCount, c.MaxAssignmentCount, c.LastAssignedAt); err != nil {
			return eris.Wrap(err, "db: upsert consultant")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM consultant_skills WHERE consultant_id = $1`, c.ID); err != nil {
			return eris.Wrap(err, "db: clear consultant skills")
		}
		if len(c.SkillIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO consultant_skills (consultant_id, skill_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
		`, c.ID, c.SkillIDs); err != nil {
			return eris.Wrap(err, "db: insert consultant skills")
		}
		return nil
	})
	if err != nil {
		return models.Consultant{}, err
	}
	return c, nil
}

const consultantColumns = `
	SELECT c.id, c.name, c.is_active, c.current_assignment_count, c.max_assignment_count, c.last_assigned_at,
		COALESCE(array_agg(cs.skill_id ORDER BY cs.skill_id) FILTER (WHERE cs.skill_id IS NOT NULL), '{}') AS skill_ids
	FROM consultants c
	LEFT JOIN consultant_skills cs ON cs.consultant_id = c.id`

func (s *Store) ListConsultants(ctx context.Context) ([]models.Consultant, error) {
	return s.queryConsultants(ctx, consultantColumns+` GROUP BY c.id ORDER BY c.id ASC`)
}

func (s *Store) GetConsultant(ctx context.Context, id string) (models.Consultant, error) {
	out, err := s.queryConsultants(ctx, consultantColumns+` WHERE c.id = $1 GROUP BY c.id`, id)
	if err != nil {
		return models.Consultant{}, err
	}
	if len(out) == 0 {
		return models.Consultant{}, models.ErrNotFound
	}
	return out[0], nil
}

// ListEligible returns active consultants with spare capacity whose id or
// name is not excluded. Both sides are compared in normalized form.
func (s *Store) ListEligible(ctx context.Context, excluding *models.ExclusionSet) ([]models.Consultant, error) {
	query := consultantColumns + `
		WHERE c.is_active
			AND c.current_assignment_count < c.max_assignment_count
			AND NOT (lower(regexp_replace(btrim(c.id), '\s+', ' ', 'g')) = ANY($1::text[]))
			AND NOT (lower(regexp_replace(btrim(c.name), '\s+', ' ', 'g')) = ANY($2::text[]))
		GROUP BY c.id
		ORDER BY c.current_assignment_count ASC, c.id ASC`
	all, err := s.queryConsultants(ctx, query, excluding.IDKeys(), excluding.NameKeys())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if !excluding.Excludes(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) queryConsultants(ctx context.Context, query string, args ...any) ([]models.Consultant, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "db: query consultants")
	}
	defer rows.Close()

	out := []models.Consultant{}
	for rows.Next() {
		var c models.Consultant
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive, &c.CurrentAssignmentCount, &c.MaxAssignmentCount, &c.LastAssignedAt, &c.SkillIDs); err != nil {
			return nil, eris.Wrap(err, "db: scan consultant")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: iterate consultants")
	}
	return out, nil
}

// reserveCapacity takes one unit of load on an active consultant that still
// has room. Zero affected rows maps to ErrConsultantUnavailable.
func reserveCapacity(ctx context.Context, tx pgx.Tx, consultantID string, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE consultants
		SET current_assignment_count = current_assignment_count + 1, last_assigned_at = $2, updated_at = NOW()
		WHERE id = $1 AND is_active AND current_assignment_count < max_assignment_count
	`, consultantID, at)
	if err != nil {
		return eris.Wrap(err, "db: reserve consultant capacity")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConsultantUnavailable
	}
	return nil
}

func releaseCapacity(ctx context.Context, tx pgx.Tx, consultantID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE consultants
		SET current_assignment_count = GREATEST(current_assignment_count - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, consultantID)
	if err != nil {
		return eris.Wrap(err, "db: release consultant capacity")
	}
	return nil
}

func (s *Store) CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	a.ReassignmentCount = 0
	a.History = nil

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := reserveCapacity(ctx, tx, a.ConsultantID, a.AssignedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO assignments (id, lead_identifier, lead_name, consultant_id, sdr_id, status, assigned_at,
				reassignment_count, original_assignment_id, assignment_method, skills_data, reassignment_history)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, '[]'::jsonb)
		`, a.ID, a.LeadIdentifier, a.LeadName, a.ConsultantID, a.SDRID, a.Status, a.AssignedAt,
			a.OriginalAssignmentID, string(a.AssignmentMethod), models.MarshalSkillsData(a.SkillsData)); err != nil {
			return eris.Wrap(err, "db: insert assignment")
		}
		return nil
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	return getAssignment(ctx, s.Pool, id)
}

func getAssignment(ctx context.Context, q rowQuerier, id string) (models.Assignment, error) {
	var (
		a         models.Assignment
		method    string
		skillsRaw []byte
		histRaw   []byte
	)
	err := q.QueryRow(ctx, `
		SELECT id, lead_identifier, lead_name, consultant_id, sdr_id, status, assigned_at,
			reassignment_count, original_assignment_id, assignment_method, skills_data, reassignment_history
		FROM assignments WHERE id = $1
	`, id).Scan(&a.ID, &a.LeadIdentifier, &a.LeadName, &a.ConsultantID, &a.SDRID, &a.Status, &a.AssignedAt,
		&a.ReassignmentCount, &a.OriginalAssignmentID, &method, &skillsRaw, &histRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, models.ErrNotFound
		}
		return models.Assignment{}, eris.Wrap(err, "db: get assignment")
	}
	a.AssignmentMethod = models.AssignmentMethod(method)
	if len(skillsRaw) > 0 {
		if err := json.Unmarshal(skillsRaw, &a.SkillsData); err != nil {
			return models.Assignment{}, eris.Wrap(err, "db: decode skills data")
		}
	}
	if len(histRaw) > 0 {
		if err := json.Unmarshal(histRaw, &a.History); err != nil {
			return models.Assignment{}, eris.Wrap(err, "db: decode reassignment history")
		}
	}
	return a, nil
}

// DeleteAssignment removes the assignment; its events go with it through
// the foreign key cascade.
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "db: delete assignment")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
