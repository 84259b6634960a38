package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionSet_MatchesByIDOrName(t *testing.T) {
	s := NewExclusionSet(RefByID(" C-1 "), RefByName("Bob   Stone"), RefFromString("carol"))

	assert.True(t, s.Excludes(Consultant{ID: "c-1", Name: "Someone"}))
	assert.True(t, s.Excludes(Consultant{ID: "c-2", Name: "bob stone"}))
	assert.True(t, s.Excludes(Consultant{ID: "CAROL", Name: "x"}))
	assert.True(t, s.Excludes(Consultant{ID: "c-9", Name: "Carol"}))
	assert.False(t, s.Excludes(Consultant{ID: "c-3", Name: "Bob"}))
}

func TestExclusionSet_NilIsEmpty(t *testing.T) {
	var s *ExclusionSet
	assert.False(t, s.Excludes(Consultant{ID: "c-1"}))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{}, s.Snapshot())
	assert.Equal(t, []string{}, s.IDKeys())
	assert.Nil(t, s.Refs())
}

func TestExclusionSet_DeduplicatesNormalizedRefs(t *testing.T) {
	s := NewExclusionSet(RefByID("c1"), RefByID(" C1"), RefByName("Alice"), RefByName("alice"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"Alice", "c1"}, s.Snapshot())
	assert.Equal(t, []string{"c1"}, s.IDKeys())
	assert.Equal(t, []string{"alice"}, s.NameKeys())
}

func TestConsultantRef_String(t *testing.T) {
	assert.Equal(t, "c1", RefByID("c1").String())
	assert.Equal(t, "Alice", RefByName("Alice").String())
	assert.Equal(t, "x", RefFromString("x").String())
	assert.Equal(t, "c1", ConsultantRef{ID: "c1", Name: "Alice"}.String())
}

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "mary ann lee", NormalizeIdentity("  Mary\tAnn   LEE "))
	assert.Equal(t, "", NormalizeIdentity("   "))
}
