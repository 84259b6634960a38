package models

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns the scoring weight for the priority. Unknown priorities weigh
// the same as low.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 5
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type AssignmentMethod string

const (
	MethodRoundRobin  AssignmentMethod = "round_robin"
	MethodSkillsBased AssignmentMethod = "skills_based"
	MethodVIP         AssignmentMethod = "vip"
	MethodManual      AssignmentMethod = "manual"
)

type ReassignmentSource string

const (
	SourceUserRequest     ReassignmentSource = "user_request"
	SourceSystemAutomatic ReassignmentSource = "system_automatic"
	SourceAdminOverride   ReassignmentSource = "admin_override"
)

func (s ReassignmentSource) Valid() bool {
	switch s {
	case SourceUserRequest, SourceSystemAutomatic, SourceAdminOverride:
		return true
	}
	return false
}

const (
	StatusAssigned   = "ASSIGNED"
	StatusReassigned = "REASSIGNED"
)

type Skill struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type SkillRequirement struct {
	SkillID   string   `json:"skill_id"`
	SkillName string   `json:"skill_name,omitempty"`
	Priority  Priority `json:"priority"`
}

// Label is the human readable name of the required skill.
func (r SkillRequirement) Label() string {
	if r.SkillName != "" {
		return r.SkillName
	}
	return r.SkillID
}

type Consultant struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	IsActive               bool       `json:"is_active"`
	SkillIDs               []string   `json:"skill_ids"`
	CurrentAssignmentCount int        `json:"current_assignment_count"`
	MaxAssignmentCount     int        `json:"max_assignment_count"`
	LastAssignedAt         *time.Time `json:"last_assigned_at,omitempty"`
}

// HasCapacity reports whether the consultant can take another assignment.
func (c Consultant) HasCapacity() bool {
	return c.IsActive && c.CurrentAssignmentCount < c.MaxAssignmentCount
}

// SkillSet returns the possessed skill ids as a set.
func (c Consultant) SkillSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.SkillIDs))
	for _, id := range c.SkillIDs {
		set[id] = struct{}{}
	}
	return set
}

// SkillsData is the snapshot stored on an assignment of what the selection saw.
type SkillsData struct {
	Requirements    []SkillRequirement `json:"requirements"`
	MatchScore      float64            `json:"match_score"`
	IsExactMatch    bool               `json:"is_exact_match"`
	FallbackUsed    bool               `json:"fallback_used"`
	FallbackMessage string             `json:"fallback_message,omitempty"`
	MatchingSkills  []string           `json:"matching_skills,omitempty"`
	Alternatives    []Alternative      `json:"alternatives,omitempty"`
}

type Alternative struct {
	ConsultantID   string   `json:"consultant_id"`
	ConsultantName string   `json:"consultant_name"`
	MatchingSkills []string `json:"matching_skills"`
	MatchScore     float64  `json:"match_score"`
}

type Assignment struct {
	ID                   string           `json:"id"`
	LeadIdentifier       string           `json:"lead_identifier"`
	LeadName             string           `json:"lead_name"`
	ConsultantID         string           `json:"consultant_id"`
	SDRID                string           `json:"sdr_id"`
	Status               string           `json:"status"`
	AssignedAt           time.Time        `json:"assigned_at"`
	ReassignmentCount    int              `json:"reassignment_count"`
	OriginalAssignmentID *string          `json:"original_assignment_id,omitempty"`
	AssignmentMethod     AssignmentMethod `json:"assignment_method"`
	SkillsData           SkillsData       `json:"skills_data"`
	History              []HistoryEntry   `json:"reassignment_history,omitempty"`
}

// HistoryEntry is one step in an assignment's reassignment history.
type HistoryEntry struct {
	ReassignmentNumber int       `json:"reassignment_number"`
	FromConsultantID   string    `json:"from_consultant_id"`
	ToConsultantID     string    `json:"to_consultant_id"`
	Timestamp          time.Time `json:"timestamp"`
	Reason             string    `json:"reason,omitempty"`
	Success            bool      `json:"success"`
	SkillsMatchDelta   *float64  `json:"skills_match_delta,omitempty"`
}

type ReassignmentEvent struct {
	ID                       string             `json:"id"`
	AssignmentID             string             `json:"assignment_id"`
	ReassignmentNumber       int                `json:"reassignment_number"`
	SDRID                    string             `json:"sdr_id"`
	OriginalConsultantID     string             `json:"original_consultant_id"`
	NewConsultantID          string             `json:"new_consultant_id"`
	LeadIdentifier           string             `json:"lead_identifier"`
	LeadName                 string             `json:"lead_name"`
	Reason                   string             `json:"reason,omitempty"`
	PreviousSkillsMatchScore *float64           `json:"previous_skills_match_score,omitempty"`
	NewSkillsMatchScore      *float64           `json:"new_skills_match_score,omitempty"`
	SkillsRequirements       []SkillRequirement `json:"skills_requirements"`
	ExclusionList            []string           `json:"exclusion_list"`
	Source                   ReassignmentSource `json:"source"`
	Timestamp                time.Time          `json:"timestamp"`
	ProcessingTimeMs         int64              `json:"processing_time_ms"`
	Success                  bool               `json:"success"`
	ErrorMessage             *string            `json:"error_message,omitempty"`
}

// HistoryEntry derives the assignment history entry for the event.
func (e ReassignmentEvent) HistoryEntry() HistoryEntry {
	entry := HistoryEntry{
		ReassignmentNumber: e.ReassignmentNumber,
		FromConsultantID:   e.OriginalConsultantID,
		ToConsultantID:     e.NewConsultantID,
		Timestamp:          e.Timestamp,
		Reason:             e.Reason,
		Success:            e.Success,
	}
	if e.PreviousSkillsMatchScore != nil && e.NewSkillsMatchScore != nil {
		delta := *e.NewSkillsMatchScore - *e.PreviousSkillsMatchScore
		entry.SkillsMatchDelta = &delta
	}
	return entry
}

type DailyAnalyticsSummary struct {
	Date                         time.Time `json:"date"`
	SDRID                        string    `json:"sdr_id"`
	ConsultantID                 string    `json:"consultant_id"`
	TotalReassignments           int       `json:"total_reassignments"`
	SuccessfulReassignments      int       `json:"successful_reassignments"`
	FailedReassignments          int       `json:"failed_reassignments"`
	AvgProcessingTimeMs          float64   `json:"avg_processing_time_ms"`
	MostCommonReason             *string   `json:"most_common_reason,omitempty"`
	SkillsBasedReassignmentCount int       `json:"skills_based_reassignment_count"`
	AvgReassignmentNumber        float64   `json:"avg_reassignment_number"`
	MaxReassignmentNumber        int       `json:"max_reassignment_number"`
	UniqueLeadsReassigned        int       `json:"unique_leads_reassigned"`
}

// MarshalSkillsData encodes the snapshot for a jsonb column.
func MarshalSkillsData(d SkillsData) []byte {
	if d.Requirements == nil {
		d.Requirements = []SkillRequirement{}
	}
	b, _ := json.Marshal(d)
	return b
}
