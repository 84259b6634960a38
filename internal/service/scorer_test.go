package service

import (
	"math"
	"testing"

	"github.com/leadflow/backend/internal/models"
)

func req(id string, p models.Priority) models.SkillRequirement {
	return models.SkillRequirement{SkillID: id, SkillName: id, Priority: p}
}

func skillSet(ids ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestScore(t *testing.T) {
	cases := []struct {
		name      string
		required  []models.SkillRequirement
		possessed map[string]struct{}
		want      float64
	}{
		{"no requirements", nil, skillSet(), 1},
		{"all present", []models.SkillRequirement{req("sql", models.PriorityHigh), req("go", models.PriorityLow)}, skillSet("sql", "go", "excel"), 1},
		{"none present", []models.SkillRequirement{req("sql", models.PriorityHigh)}, skillSet("go"), 0},
		{"weighted partial", []models.SkillRequirement{req("sql", models.PriorityCritical), req("python", models.PriorityHigh), req("go", models.PriorityHigh), req("excel", models.PriorityLow)}, skillSet("python", "go", "excel"), 7.0 / 12.0},
		{"medium and high", []models.SkillRequirement{req("python", models.PriorityMedium), req("stats", models.PriorityHigh)}, skillSet("stats"), 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.required, tc.possessed)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Score() = %v, want %v", got, tc.want)
			}
			if got < 0 || got > 1 {
				t.Fatalf("score out of range: %v", got)
			}
		})
	}
}

func TestScoreIsMonotonicInPossessedSkills(t *testing.T) {
	required := []models.SkillRequirement{req("a", models.PriorityLow), req("b", models.PriorityMedium), req("c", models.PriorityCritical)}
	prev := -1.0
	for _, possessed := range []map[string]struct{}{skillSet(), skillSet("a"), skillSet("a", "b"), skillSet("a", "b", "c")} {
		got := Score(required, possessed)
		if got < prev {
			t.Fatalf("score decreased when adding a skill: %v < %v", got, prev)
		}
		prev = got
	}
	if prev != 1 {
		t.Fatalf("expected full match to score 1, got %v", prev)
	}
}

func TestNormalizeRequirements(t *testing.T) {
	got := NormalizeRequirements([]models.SkillRequirement{
		{SkillID: " sql ", Priority: models.PriorityLow},
		{SkillID: "", Priority: models.PriorityHigh},
		{SkillID: "go", Priority: "urgent"},
		{SkillID: "sql", SkillName: "SQL", Priority: models.PriorityCritical},
		{SkillID: "go", Priority: models.PriorityLow},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 requirements, got %d: %+v", len(got), got)
	}
	if got[0].SkillID != "sql" || got[0].Priority != models.PriorityCritical || got[0].SkillName != "SQL" {
		t.Fatalf("unexpected sql requirement: %+v", got[0])
	}
	if got[1].SkillID != "go" || got[1].Priority != models.PriorityLow {
		t.Fatalf("unknown priority should fall back to low: %+v", got[1])
	}
}
