// Package memstore keeps the engine's collaborator stores in process memory.
// It backs the "memory" store driver and the service and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/lock"
	"github.com/leadflow/backend/internal/models"
)

const dateKeyLayout = "2006-01-02"

type summaryKey struct {
	date       string
	sdr        string
	consultant string
}

type Store struct {
	mu          sync.RWMutex
	skills      map[string]models.Skill
	consultants map[string]models.Consultant
	assignments map[string]models.Assignment
	events      map[string][]models.ReassignmentEvent
	summaries   map[summaryKey]models.DailyAnalyticsSummary

	locks *lock.KeyedMutex
}

func New() *Store {
	return &Store{
		skills:      map[string]models.Skill{},
		consultants: map[string]models.Consultant{},
		assignments: map[string]models.Assignment{},
		events:      map[string][]models.ReassignmentEvent{},
		summaries:   map[summaryKey]models.DailyAnalyticsSummary{},
		locks:       lock.NewKeyedMutex(),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() {}

func (s *Store) UpsertSkill(ctx context.Context, sk models.Skill) (models.Skill, error) {
	if sk.ID == "" {
		sk.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[sk.ID] = sk
	return sk, nil
}

func (s *Store) ListSkills(ctx context.Context) ([]models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertConsultant(ctx context.Context, c models.Consultant) (models.Consultant, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c = cloneConsultant(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultants[c.ID] = c
	return cloneConsultant(c), nil
}

func (s *Store) GetConsultant(ctx context.Context, id string) (models.Consultant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consultants[id]
	if !ok {
		return models.Consultant{}, models.ErrNotFound
	}
	return cloneConsultant(c), nil
}

func (s *Store) ListConsultants(ctx context.Context) ([]models.Consultant, error) {
	return s.list(ctx, func(models.Consultant) bool { return true })
}

func (s *Store) ListEligible(ctx context.Context, excluding *models.ExclusionSet) ([]models.Consultant, error) {
	return s.list(ctx, func(c models.Consultant) bool {
		return c.HasCapacity() && !excluding.Excludes(c)
	})
}

func (s *Store) list(ctx context.Context, keep func(models.Consultant) bool) ([]models.Consultant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Consultant, 0, len(s.consultants))
	for _, c := range s.consultants {
		if keep(c) {
			out = append(out, cloneConsultant(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return models.Assignment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consultants[a.ConsultantID]
	if !ok || !c.HasCapacity() {
		return models.Assignment{}, models.ErrConsultantUnavailable
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	assignedAt := a.AssignedAt
	c.CurrentAssignmentCount++
	c.LastAssignedAt = &assignedAt
	s.consultants[c.ID] = c

	a.ReassignmentCount = 0
	a.History = nil
	s.assignments[a.ID] = a
	return cloneAssignment(a), nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return models.Assignment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.Assignment{}, models.ErrNotFound
	}
	return cloneAssignment(a), nil
}

// DeleteAssignment removes the assignment together with its events.
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.assignments, id)
	delete(s.events, id)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, assignmentID string) ([]models.ReassignmentEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.ReassignmentEvent(nil), s.events[assignmentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ReassignmentNumber < out[j].ReassignmentNumber })
	return out, nil
}

func (s *Store) ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.ReassignmentEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReassignmentEvent
	for _, evs := range s.events {
		for _, ev := range evs {
			if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
				out = append(out, ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ReplaceDailySummaries(ctx context.Context, day time.Time, rows []models.DailyAnalyticsSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	date := day.Format(dateKeyLayout)
	for _, r := range rows {
		if r.FailedReassignments > r.TotalReassignments {
			return models.ErrConstraint
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.summaries {
		if k.date == date {
			delete(s.summaries, k)
		}
	}
	for _, r := range rows {
		s.summaries[summaryKey{date: date, sdr: r.SDRID, consultant: r.ConsultantID}] = r
	}
	return nil
}

func (s *Store) ListDailySummaries(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error) {
	date := day.Format(dateKeyLayout)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.DailyAnalyticsSummary{}
	for k, r := range s.summaries {
		if k.date == date {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SDRID != out[j].SDRID {
			return out[i].SDRID < out[j].SDRID
		}
		return out[i].ConsultantID < out[j].ConsultantID
	})
	return out, nil
}

func cloneConsultant(c models.Consultant) models.Consultant {
	c.SkillIDs = append([]string(nil), c.SkillIDs...)
	if c.LastAssignedAt != nil {
		t := *c.LastAssignedAt
		c.LastAssignedAt = &t
	}
	return c
}

func cloneAssignment(a models.Assignment) models.Assignment {
	a.History = append([]models.HistoryEntry(nil), a.History...)
	return a
}
