package models

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConsultantUnavailable = errors.New("consultant unavailable")
	ErrConstraint            = errors.New("constraint violation")

	// ErrHolderChanged means the assignment is no longer held by the
	// consultant a transfer was computed against.
	ErrHolderChanged = errors.New("assignment holder changed")
)

// ConsultantRef identifies a consultant by id, by name, or by either. A ref
// built from a bare caller string matches on both.
type ConsultantRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func RefByID(id string) ConsultantRef     { return ConsultantRef{ID: id} }
func RefByName(name string) ConsultantRef { return ConsultantRef{Name: name} }

// RefFromString builds a ref that matches either the id or the name.
func RefFromString(v string) ConsultantRef { return ConsultantRef{ID: v, Name: v} }

func (r ConsultantRef) String() string {
	switch {
	case r.ID != "" && r.Name != "" && r.ID == r.Name:
		return r.ID
	case r.ID != "":
		return r.ID
	default:
		return r.Name
	}
}

func normalizeIdentity(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

// ExclusionSet holds normalized consultant identities.
type ExclusionSet struct {
	ids   map[string]struct{}
	names map[string]struct{}
	refs  []ConsultantRef
}

func NewExclusionSet(refs ...ConsultantRef) *ExclusionSet {
	s := &ExclusionSet{ids: map[string]struct{}{}, names: map[string]struct{}{}}
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

func (s *ExclusionSet) Add(r ConsultantRef) {
	added := false
	if id := normalizeIdentity(r.ID); id != "" {
		if _, ok := s.ids[id]; !ok {
			s.ids[id] = struct{}{}
			added = true
		}
	}
	if name := normalizeIdentity(r.Name); name != "" {
		if _, ok := s.names[name]; !ok {
			s.names[name] = struct{}{}
			added = true
		}
	}
	if added {
		s.refs = append(s.refs, r)
	}
}

// Excludes reports whether the consultant matches any ref by id or by name.
func (s *ExclusionSet) Excludes(c Consultant) bool {
	if s == nil {
		return false
	}
	if _, ok := s.ids[normalizeIdentity(c.ID)]; ok {
		return true
	}
	_, ok := s.names[normalizeIdentity(c.Name)]
	return ok
}

func (s *ExclusionSet) Refs() []ConsultantRef {
	if s == nil {
		return nil
	}
	out := make([]ConsultantRef, len(s.refs))
	copy(out, s.refs)
	return out
}

// Snapshot returns the sorted, de-duplicated identities for persistence.
func (s *ExclusionSet) Snapshot() []string {
	out := []string{}
	if s == nil {
		return out
	}
	seen := map[string]struct{}{}
	for _, r := range s.refs {
		v := r.String()
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s *ExclusionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// NormalizeIdentity lowercases and collapses whitespace, the form in which
// ids and names are compared.
func NormalizeIdentity(v string) string {
	return normalizeIdentity(v)
}

// IDKeys returns the normalized excluded ids.
func (s *ExclusionSet) IDKeys() []string {
	return sortedKeys(s, func(s *ExclusionSet) map[string]struct{} { return s.ids })
}

// NameKeys returns the normalized excluded names.
func (s *ExclusionSet) NameKeys() []string {
	return sortedKeys(s, func(s *ExclusionSet) map[string]struct{} { return s.names })
}

func sortedKeys(s *ExclusionSet, pick func(*ExclusionSet) map[string]struct{}) []string {
	out := []string{}
	if s == nil {
		return out
	}
	for k := range pick(s) {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
