package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/leadflow/backend/internal/models"
)

type MatchResult struct {
	Consultant            models.Consultant         `json:"consultant"`
	MatchScore            float64                   `json:"match_score"`
	MatchingSkills        []models.SkillRequirement `json:"matching_skills"`
	MissingCriticalSkills []models.SkillRequirement `json:"missing_critical_skills"`
	IsExactMatch          bool                      `json:"is_exact_match"`
}

func (m MatchResult) MatchingSkillNames() []string {
	return requirementLabels(m.MatchingSkills)
}

func (m MatchResult) MissingCriticalNames() []string {
	return requirementLabels(m.MissingCriticalSkills)
}

type EligibilityResult struct {
	Eligible []models.Consultant
	Stages   []EligibilityStage
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Consultant
}

// FilterEligibleConsultants keeps consultants that are active, under capacity
// and not excluded, recording the survivors of each stage.
func FilterEligibleConsultants(consultants []models.Consultant, excluded *models.ExclusionSet) EligibilityResult {
	result := EligibilityResult{}
	result.Stages = append(result.Stages, EligibilityStage{Name: "candidates", Candidates: consultants})

	active := filterConsultants(consultants, func(c models.Consultant) bool { return c.IsActive })
	result.Stages = append(result.Stages, EligibilityStage{Name: "active_rule", Candidates: active})

	underCapacity := filterConsultants(active, func(c models.Consultant) bool {
		return c.CurrentAssignmentCount < c.MaxAssignmentCount
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "capacity_rule", Candidates: underCapacity})

	notExcluded := filterConsultants(underCapacity, func(c models.Consultant) bool { return !excluded.Excludes(c) })
	result.Stages = append(result.Stages, EligibilityStage{Name: "exclusion_rule", Candidates: notExcluded})

	result.Eligible = notExcluded
	return result
}

// RankConsultants scores every consultant and orders by score descending,
// then current load ascending, then id.
func RankConsultants(required []models.SkillRequirement, consultants []models.Consultant) []MatchResult {
	out := make([]MatchResult, 0, len(consultants))
	for _, c := range consultants {
		possessed := c.SkillSet()
		res := MatchResult{
			Consultant:            c,
			MatchScore:            Score(required, possessed),
			MatchingSkills:        []models.SkillRequirement{},
			MissingCriticalSkills: []models.SkillRequirement{},
			IsExactMatch:          true,
		}
		for _, r := range required {
			if _, ok := possessed[r.SkillID]; ok {
				res.MatchingSkills = append(res.MatchingSkills, r)
				continue
			}
			res.IsExactMatch = false
			if r.Priority == models.PriorityCritical {
				res.MissingCriticalSkills = append(res.MissingCriticalSkills, r)
			}
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return rankLess(out[i], out[j]) })
	return out
}

func rankLess(a, b MatchResult) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if a.Consultant.CurrentAssignmentCount != b.Consultant.CurrentAssignmentCount {
		return a.Consultant.CurrentAssignmentCount < b.Consultant.CurrentAssignmentCount
	}
	return a.Consultant.ID < b.Consultant.ID
}

type ConsultantMatcher struct {
	Consultants   ConsultantRepository
	LookupTimeout time.Duration
}

// FindMatches ranks the eligible consultants against required. No eligible
// consultants yields an empty slice, not an error.
func (m *ConsultantMatcher) FindMatches(ctx context.Context, required []models.SkillRequirement, excluded *models.ExclusionSet) ([]MatchResult, error) {
	eligible, err := m.eligible(ctx, excluded)
	if err != nil {
		return nil, err
	}
	return RankConsultants(NormalizeRequirements(required), eligible), nil
}

func (m *ConsultantMatcher) eligible(ctx context.Context, excluded *models.ExclusionSet) ([]models.Consultant, error) {
	lookupCtx := ctx
	if m.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, m.LookupTimeout)
		defer cancel()
	}
	consultants, err := m.Consultants.ListEligible(lookupCtx, excluded)
	if err != nil {
		if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Message: "consultant lookup timed out", Err: err}
		}
		return nil, storeError("consultant lookup", err)
	}
	if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
		return nil, &Error{Kind: KindTimeout, Message: "consultant lookup timed out", Err: lookupCtx.Err()}
	}
	return FilterEligibleConsultants(consultants, excluded).Eligible, nil
}

func filterConsultants(consultants []models.Consultant, keep func(models.Consultant) bool) []models.Consultant {
	out := make([]models.Consultant, 0, len(consultants))
	for _, c := range consultants {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
