package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/models"
)

type AssignRequest struct {
	LeadIdentifier string
	LeadName       string
	SDRID          string
	Requirements   []models.SkillRequirement
	Exclusions     []models.ConsultantRef
	// ConsultantID makes the assignment manual and skips selection.
	ConsultantID string
}

type AssignResult struct {
	Assignment models.Assignment `json:"assignment"`
	Selection  Selection         `json:"selection"`
}

type ReassignRequest struct {
	AssignmentID string
	Reason       string
	Source       models.ReassignmentSource
	// Requirements replaces the stored requirement set when non-nil.
	Requirements []models.SkillRequirement
	Exclusions   []models.ConsultantRef
	// TargetConsultantID skips selection and reassigns to that consultant.
	TargetConsultantID string
}

type ReassignResult struct {
	Assignment models.Assignment        `json:"assignment"`
	Event      models.ReassignmentEvent `json:"event"`
	Selection  Selection                `json:"selection"`
}

// AssignmentService runs selection and commits its outcome through the
// assignment store or the reassignment ledger.
type AssignmentService struct {
	Selector    *AssignmentSelector
	Ledger      *ReassignmentLedger
	Assignments AssignmentStore
	Events      EventReader
	Now         func() time.Time
	Logger      zerolog.Logger
}

func (s *AssignmentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AssignmentService) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	if strings.TrimSpace(req.LeadIdentifier) == "" {
		return AssignResult{}, newError(KindInvalidReassignment, "lead identifier is required")
	}
	excluded := models.NewExclusionSet(req.Exclusions...)

	var (
		sel Selection
		err error
	)
	if req.ConsultantID != "" {
		sel, err = s.pickTarget(ctx, req.ConsultantID, req.Requirements, excluded)
	} else {
		sel, err = s.Selector.Select(ctx, SelectionRequest{
			LeadIdentifier: req.LeadIdentifier,
			LeadName:       req.LeadName,
			Requirements:   req.Requirements,
			Excluded:       excluded,
		})
	}
	if err != nil {
		return AssignResult{}, err
	}

	a := models.Assignment{
		LeadIdentifier:   req.LeadIdentifier,
		LeadName:         req.LeadName,
		ConsultantID:     sel.Consultant.ID,
		SDRID:            req.SDRID,
		Status:           models.StatusAssigned,
		AssignedAt:       s.now(),
		AssignmentMethod: sel.Method,
		SkillsData:       sel.SkillsData(),
	}
	created, err := s.Assignments.CreateAssignment(ctx, a)
	if err != nil {
		return AssignResult{}, storeError("create assignment", err)
	}

	s.Logger.Info().
		Str("assignment_id", created.ID).
		Str("lead", created.LeadIdentifier).
		Str("consultant_id", created.ConsultantID).
		Str("method", string(created.AssignmentMethod)).
		Msg("lead assigned")
	return AssignResult{Assignment: created, Selection: sel}, nil
}

// Reassign moves an assignment to a new consultant. The current consultant
// is always excluded. Commit-time races are recorded as failed events and
// returned as CONSULTANT_NO_LONGER_ELIGIBLE together with the result.
func (s *AssignmentService) Reassign(ctx context.Context, req ReassignRequest) (ReassignResult, error) {
	start := time.Now()
	if req.Source == "" {
		req.Source = models.SourceUserRequest
	}

	current, err := s.Assignments.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return ReassignResult{}, storeError("get assignment", err)
	}

	reqs := req.Requirements
	if reqs == nil {
		reqs = current.SkillsData.Requirements
	}
	excluded := models.NewExclusionSet(req.Exclusions...)
	excluded.Add(models.RefByID(current.ConsultantID))

	var sel Selection
	if req.TargetConsultantID != "" {
		if req.TargetConsultantID == current.ConsultantID {
			return ReassignResult{}, newError(KindInvalidReassignment, "new consultant must differ from the original consultant")
		}
		sel, err = s.pickTarget(ctx, req.TargetConsultantID, reqs, excluded)
	} else {
		sel, err = s.Selector.Select(ctx, SelectionRequest{
			LeadIdentifier: current.LeadIdentifier,
			LeadName:       current.LeadName,
			Requirements:   reqs,
			Excluded:       excluded,
			Reassignment:   &ReassignmentContext{Assignment: current, Reason: req.Reason},
		})
	}
	if err != nil {
		return ReassignResult{}, err
	}

	prevScore, err := s.currentScore(ctx, current)
	if err != nil {
		return ReassignResult{}, err
	}
	var newScore *float64
	if len(sel.Requirements) > 0 {
		v := sel.MatchScore
		newScore = &v
	}

	ev, recErr := s.Ledger.RecordReassignment(ctx, ReassignmentRecord{
		AssignmentID:         current.ID,
		OriginalConsultantID: current.ConsultantID,
		NewConsultantID:      sel.Consultant.ID,
		LeadIdentifier:       current.LeadIdentifier,
		LeadName:             current.LeadName,
		Reason:               req.Reason,
		Source:               req.Source,
		PreviousScore:        prevScore,
		NewScore:             newScore,
		Requirements:         sel.Requirements,
		Exclusions:           excluded.Snapshot(),
		ProcessingTimeMs:     time.Since(start).Milliseconds(),
		Success:              true,
	})
	if recErr != nil && !IsKind(recErr, KindConsultantNoLongerEligible) {
		return ReassignResult{}, recErr
	}

	updated, err := s.Assignments.GetAssignment(ctx, current.ID)
	if err != nil {
		return ReassignResult{}, storeError("get assignment", err)
	}
	return ReassignResult{Assignment: updated, Event: ev, Selection: sel}, recErr
}

// History rebuilds the reassignment history of an assignment from the ledger.
func (s *AssignmentService) History(ctx context.Context, assignmentID string) ([]models.HistoryEntry, error) {
	events, err := s.ListEvents(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	out := make([]models.HistoryEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.HistoryEntry())
	}
	return out, nil
}

func (s *AssignmentService) ListEvents(ctx context.Context, assignmentID string) ([]models.ReassignmentEvent, error) {
	if _, err := s.Assignments.GetAssignment(ctx, assignmentID); err != nil {
		return nil, storeError("get assignment", err)
	}
	events, err := s.Events.ListEvents(ctx, assignmentID)
	if err != nil {
		return nil, storeError("list reassignment events", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ReassignmentNumber < events[j].ReassignmentNumber })
	return events, nil
}

// currentScore is the match score of the consultant currently holding the
// assignment: the latest successful event's new score, or the initial one.
func (s *AssignmentService) currentScore(ctx context.Context, a models.Assignment) (*float64, error) {
	events, err := s.Events.ListEvents(ctx, a.ID)
	if err != nil {
		return nil, storeError("list reassignment events", err)
	}
	latest := 0
	var score *float64
	for _, ev := range events {
		if ev.Success && ev.ReassignmentNumber > latest {
			latest = ev.ReassignmentNumber
			score = ev.NewSkillsMatchScore
		}
	}
	if latest > 0 {
		return score, nil
	}
	if len(a.SkillsData.Requirements) == 0 {
		return nil, nil
	}
	v := a.SkillsData.MatchScore
	return &v, nil
}

// pickTarget scores an explicitly chosen consultant, who must be eligible.
func (s *AssignmentService) pickTarget(ctx context.Context, consultantID string, reqs []models.SkillRequirement, excluded *models.ExclusionSet) (Selection, error) {
	required := NormalizeRequirements(reqs)
	matches, err := s.Selector.Matcher.FindMatches(ctx, required, excluded)
	if err != nil {
		return Selection{}, err
	}
	for _, m := range matches {
		if m.Consultant.ID != consultantID {
			continue
		}
		return Selection{
			Consultant:     m.Consultant,
			MatchScore:     m.MatchScore,
			IsExactMatch:   m.IsExactMatch,
			MatchingSkills: m.MatchingSkills,
			Method:         models.MethodManual,
			Requirements:   required,
			Alternatives:   []models.Alternative{},
		}, nil
	}
	return Selection{}, newError(KindNoEligibleConsultants, fmt.Sprintf("consultant %s is not eligible", consultantID))
}

func (s *AssignmentService) Get(ctx context.Context, id string) (models.Assignment, error) {
	a, err := s.Assignments.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, storeError("get assignment", err)
	}
	return a, nil
}

type PreviewResult struct {
	Stages    map[string][]string `json:"stages"`
	Matches   []MatchResult       `json:"matches"`
	Selection *Selection          `json:"selection,omitempty"`
	Decision  *Error              `json:"-"`
}

// Preview shows how a lead would be placed among all consultants without
// committing anything. A selection failure is reported in Decision, not
// returned as an error.
func (s *AssignmentService) Preview(ctx context.Context, all []models.Consultant, req SelectionRequest) (PreviewResult, error) {
	elig := FilterEligibleConsultants(all, req.Excluded)
	out := PreviewResult{Stages: map[string][]string{}}
	for _, stage := range elig.Stages {
		ids := make([]string, 0, len(stage.Candidates))
		for _, c := range stage.Candidates {
			ids = append(ids, c.ID)
		}
		out.Stages[stage.Name] = ids
	}
	out.Matches = RankConsultants(NormalizeRequirements(req.Requirements), elig.Eligible)

	sel, err := s.Selector.Select(ctx, req)
	if err != nil {
		var typed *Error
		if !errors.As(err, &typed) || typed.Retryable() {
			return PreviewResult{}, err
		}
		out.Decision = typed
		return out, nil
	}
	out.Selection = &sel
	return out, nil
}
