package service

import (
	"strings"

	"github.com/leadflow/backend/internal/models"
)

// Score is the weighted share of required skills present in possessed. An
// empty requirement set is a perfect match.
func Score(required []models.SkillRequirement, possessed map[string]struct{}) float64 {
	if len(required) == 0 {
		return 1.0
	}
	var total, matched float64
	for _, r := range required {
		w := r.Priority.Weight()
		total += w
		if _, ok := possessed[r.SkillID]; ok {
			matched += w
		}
	}
	if total == 0 {
		return 1.0
	}
	return matched / total
}

// NormalizeRequirements drops blank skill ids and collapses duplicates,
// keeping the heavier priority. Order of first appearance is preserved.
func NormalizeRequirements(reqs []models.SkillRequirement) []models.SkillRequirement {
	out := make([]models.SkillRequirement, 0, len(reqs))
	pos := map[string]int{}
	for _, r := range reqs {
		r.SkillID = strings.TrimSpace(r.SkillID)
		if r.SkillID == "" {
			continue
		}
		if !r.Priority.Valid() {
			r.Priority = models.PriorityLow
		}
		if i, ok := pos[r.SkillID]; ok {
			if r.Priority.Weight() > out[i].Priority.Weight() {
				out[i].Priority = r.Priority
			}
			if out[i].SkillName == "" {
				out[i].SkillName = r.SkillName
			}
			continue
		}
		pos[r.SkillID] = len(out)
		out = append(out, r)
	}
	return out
}

func requirementLabels(reqs []models.SkillRequirement) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Label())
	}
	return out
}
