package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/utils"
)

const (
	DefaultPartialMatchThreshold = 0.5
	DefaultMaxAlternatives       = 3
)

type SelectionRequest struct {
	LeadIdentifier string
	LeadName       string
	Requirements   []models.SkillRequirement
	Excluded       *models.ExclusionSet
	// Reassignment is set when the selection replaces the consultant of an
	// existing assignment.
	Reassignment *ReassignmentContext
}

type ReassignmentContext struct {
	Assignment models.Assignment
	Reason     string
}

type Selection struct {
	Consultant      models.Consultant         `json:"consultant"`
	MatchScore      float64                   `json:"match_score"`
	IsExactMatch    bool                      `json:"is_exact_match"`
	MatchingSkills  []models.SkillRequirement `json:"matching_skills"`
	Method          models.AssignmentMethod   `json:"assignment_method"`
	FallbackUsed    bool                      `json:"fallback_used"`
	FallbackMessage string                    `json:"fallback_message,omitempty"`
	Alternatives    []models.Alternative      `json:"alternatives"`
	Requirements    []models.SkillRequirement `json:"requirements"`
}

// SkillsData is the snapshot persisted with the assignment.
func (s Selection) SkillsData() models.SkillsData {
	return models.SkillsData{
		Requirements:    s.Requirements,
		MatchScore:      s.MatchScore,
		IsExactMatch:    s.IsExactMatch,
		FallbackUsed:    s.FallbackUsed,
		FallbackMessage: s.FallbackMessage,
		MatchingSkills:  requirementLabels(s.MatchingSkills),
		Alternatives:    s.Alternatives,
	}
}

// AssignmentSelector decides which consultant gets a lead. It reads through
// the matcher and never writes; calling Select again with the same input is
// safe.
type AssignmentSelector struct {
	Matcher          *ConsultantMatcher
	PartialThreshold float64
	MaxAlternatives  int
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

func (s *AssignmentSelector) threshold() float64 {
	if s.PartialThreshold <= 0 {
		return DefaultPartialMatchThreshold
	}
	return s.PartialThreshold
}

func (s *AssignmentSelector) maxAlternatives() int {
	if s.MaxAlternatives <= 0 {
		return DefaultMaxAlternatives
	}
	return s.MaxAlternatives
}

func (s *AssignmentSelector) Select(ctx context.Context, req SelectionRequest) (Selection, error) {
	required := NormalizeRequirements(req.Requirements)
	matches, err := s.Matcher.FindMatches(ctx, required, req.Excluded)
	if err != nil {
		s.Metrics.ObserveSelection("", string(KindOf(err)))
		return Selection{}, err
	}

	var sel Selection
	if len(required) == 0 {
		sel, err = s.pickLeastLoaded(req.LeadIdentifier, matches)
	} else {
		sel, err = s.pickBySkills(required, matches)
	}
	if err != nil {
		s.Metrics.ObserveSelection("", string(KindOf(err)))
		s.Logger.Info().
			Str("lead", req.LeadIdentifier).
			Int("candidates", len(matches)).
			Bool("reassignment", req.Reassignment != nil).
			Str("reason_code", string(KindOf(err))).
			Msg("selection failed")
		return Selection{}, err
	}
	sel.Requirements = required

	outcome := "exact"
	if sel.FallbackUsed {
		outcome = "fallback"
	}
	s.Metrics.ObserveSelection(string(sel.Method), outcome)
	s.Logger.Info().
		Str("lead", req.LeadIdentifier).
		Str("consultant_id", sel.Consultant.ID).
		Str("method", string(sel.Method)).
		Float64("match_score", sel.MatchScore).
		Bool("fallback", sel.FallbackUsed).
		Int("candidates", len(matches)).
		Bool("reassignment", req.Reassignment != nil).
		Msg("consultant selected")
	return sel, nil
}

// pickLeastLoaded orders by load, then by oldest last assignment, and rotates
// among fully tied consultants by a hash of the lead.
func (s *AssignmentSelector) pickLeastLoaded(leadID string, matches []MatchResult) (Selection, error) {
	if len(matches) == 0 {
		return Selection{}, newError(KindNoEligibleConsultants, "no eligible consultants available")
	}
	ordered := make([]MatchResult, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Consultant, ordered[j].Consultant
		if a.CurrentAssignmentCount != b.CurrentAssignmentCount {
			return a.CurrentAssignmentCount < b.CurrentAssignmentCount
		}
		if !sameTime(a, b) {
			return assignedBefore(a, b)
		}
		return a.ID < b.ID
	})

	tied := 1
	for tied < len(ordered) &&
		ordered[tied].Consultant.CurrentAssignmentCount == ordered[0].Consultant.CurrentAssignmentCount &&
		sameTime(ordered[tied].Consultant, ordered[0].Consultant) {
		tied++
	}
	idx := 0
	if tied > 1 {
		idx = int(utils.HashStringToUint64(leadID) % uint64(tied))
	}
	picked := ordered[idx]
	rest := make([]MatchResult, 0, len(ordered)-1)
	rest = append(rest, ordered[:idx]...)
	rest = append(rest, ordered[idx+1:]...)

	return Selection{
		Consultant:     picked.Consultant,
		MatchScore:     picked.MatchScore,
		IsExactMatch:   true,
		MatchingSkills: picked.MatchingSkills,
		Method:         models.MethodRoundRobin,
		Alternatives:   s.alternatives(rest),
	}, nil
}

func (s *AssignmentSelector) pickBySkills(required []models.SkillRequirement, matches []MatchResult) (Selection, error) {
	for i, m := range matches {
		if !m.IsExactMatch {
			continue
		}
		return Selection{
			Consultant:     m.Consultant,
			MatchScore:     m.MatchScore,
			IsExactMatch:   true,
			MatchingSkills: m.MatchingSkills,
			Method:         models.MethodSkillsBased,
			Alternatives:   s.alternatives(without(matches, i)),
		}, nil
	}

	if len(matches) == 0 || matches[0].MatchScore <= s.threshold() {
		return Selection{}, &Error{
			Kind:    KindNoSkillMatch,
			Message: "no consultant matches the required skills",
			Skills:  requirementLabels(required),
		}
	}

	top := matches[0]
	if len(top.MissingCriticalSkills) > 0 {
		return Selection{}, &Error{
			Kind:    KindCriticalSkillsUnavailable,
			Message: "critical skills unavailable",
			Skills:  top.MissingCriticalNames(),
		}
	}

	pct := int(math.Round(top.MatchScore * 100))
	return Selection{
		Consultant:      top.Consultant,
		MatchScore:      top.MatchScore,
		MatchingSkills:  top.MatchingSkills,
		Method:          models.MethodSkillsBased,
		FallbackUsed:    true,
		FallbackMessage: fmt.Sprintf("No exact skills match found. Assigned to %s with %d%% skills match.", top.Consultant.Name, pct),
		Alternatives:    s.alternatives(matches[1:]),
	}, nil
}

func (s *AssignmentSelector) alternatives(rest []MatchResult) []models.Alternative {
	n := s.maxAlternatives()
	if len(rest) < n {
		n = len(rest)
	}
	out := make([]models.Alternative, 0, n)
	for _, m := range rest[:n] {
		out = append(out, models.Alternative{
			ConsultantID:   m.Consultant.ID,
			ConsultantName: m.Consultant.Name,
			MatchingSkills: m.MatchingSkillNames(),
			MatchScore:     m.MatchScore,
		})
	}
	return out
}

func without(matches []MatchResult, i int) []MatchResult {
	out := make([]MatchResult, 0, len(matches)-1)
	out = append(out, matches[:i]...)
	return append(out, matches[i+1:]...)
}

func sameTime(a, b models.Consultant) bool {
	if a.LastAssignedAt == nil || b.LastAssignedAt == nil {
		return a.LastAssignedAt == nil && b.LastAssignedAt == nil
	}
	return a.LastAssignedAt.Equal(*b.LastAssignedAt)
}

// assignedBefore treats never-assigned consultants as the oldest.
func assignedBefore(a, b models.Consultant) bool {
	if a.LastAssignedAt == nil {
		return b.LastAssignedAt != nil
	}
	if b.LastAssignedAt == nil {
		return false
	}
	return a.LastAssignedAt.Before(*b.LastAssignedAt)
}
