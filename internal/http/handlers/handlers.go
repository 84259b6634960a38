package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

// Catalog is the read side of the consultant and skill tables.
type Catalog interface {
	Ping(ctx context.Context) error
	ListSkills(ctx context.Context) ([]models.Skill, error)
	ListConsultants(ctx context.Context) ([]models.Consultant, error)
}

type Handler struct {
	Store      Catalog
	Service    *service.AssignmentService
	Aggregator *service.AnalyticsAggregator
	Validator  *validator.Validate
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type SkillRequirementRequest struct {
	SkillID   string `json:"skill_id" validate:"required"`
	SkillName string `json:"skill_name"`
	Priority  string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
}

type AssignRequest struct {
	LeadIdentifier     string                    `json:"lead_identifier" validate:"required,max=255"`
	LeadName           string                    `json:"lead_name" validate:"max=255"`
	SDRID              string                    `json:"sdr_id"`
	SkillsRequirements []SkillRequirementRequest `json:"skills_requirements" validate:"dive"`
	ExcludeConsultants []string                  `json:"exclude_consultants"`
	ConsultantID       string                    `json:"consultant_id"`
}

type ReassignRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Source string `json:"source" validate:"omitempty,oneof=user_request system_automatic admin_override"`
	// SkillsRequirements replaces the stored requirements when present.
	SkillsRequirements *[]SkillRequirementRequest `json:"skills_requirements" validate:"omitempty,dive"`
	ExcludeConsultants []string                   `json:"exclude_consultants"`
	ConsultantID       string                     `json:"consultant_id"`
}

type PreviewRequest struct {
	LeadIdentifier     string                    `json:"lead_identifier"`
	SkillsRequirements []SkillRequirementRequest `json:"skills_requirements" validate:"dive"`
	ExcludeConsultants []string                  `json:"exclude_consultants"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List skills
// @Tags catalog
// @Produce json
// @Success 200 {array} models.Skill
// @Router /api/skills [get]
func (h *Handler) SkillsList(c *gin.Context) {
	skills, err := h.Store.ListSkills(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Failed to list skills", err.Error())
		return
	}
	c.JSON(http.StatusOK, skills)
}

// @Summary List consultants
// @Tags catalog
// @Produce json
// @Param active query bool false "Only active consultants"
// @Success 200 {array} models.Consultant
// @Router /api/consultants [get]
func (h *Handler) ConsultantsList(c *gin.Context) {
	consultants, err := h.Store.ListConsultants(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Failed to list consultants", err.Error())
		return
	}
	if c.Query("active") == "true" {
		active := consultants[:0]
		for _, co := range consultants {
			if co.IsActive {
				active = append(active, co)
			}
		}
		consultants = active
	}
	c.JSON(http.StatusOK, consultants)
}

// @Summary Assign a lead
// @Description Selects a consultant for the lead and records the assignment
// @Tags assignments
// @Accept json
// @Produce json
// @Param body body AssignRequest true "Lead and requirements"
// @Success 201 {object} service.AssignResult
// @Failure 422 {object} map[string]any
// @Router /api/assignments [post]
func (h *Handler) Assign(c *gin.Context) {
	var req AssignRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Service.Assign(c.Request.Context(), service.AssignRequest{
		LeadIdentifier: strings.TrimSpace(req.LeadIdentifier),
		LeadName:       req.LeadName,
		SDRID:          req.SDRID,
		Requirements:   toRequirements(req.SkillsRequirements),
		Exclusions:     toRefs(req.ExcludeConsultants),
		ConsultantID:   req.ConsultantID,
	})
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary Get an assignment
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} models.Assignment
// @Failure 404 {object} map[string]any
// @Router /api/assignments/{id} [get]
func (h *Handler) AssignmentDetails(c *gin.Context) {
	a, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Reassign an assignment
// @Description Moves the assignment to another consultant and appends a ledger event.
// @Description A consultant_id makes it a manual override.
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param body body ReassignRequest true "Reassignment"
// @Success 200 {object} service.ReassignResult
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Router /api/assignments/{id}/reassign [post]
func (h *Handler) Reassign(c *gin.Context) {
	var req ReassignRequest
	if !h.bind(c, &req) {
		return
	}
	source := models.ReassignmentSource(req.Source)
	if source == "" && req.ConsultantID != "" {
		source = models.SourceAdminOverride
	}
	sreq := service.ReassignRequest{
		AssignmentID:       c.Param("id"),
		Reason:             strings.TrimSpace(req.Reason),
		Source:             source,
		Exclusions:         toRefs(req.ExcludeConsultants),
		TargetConsultantID: req.ConsultantID,
	}
	if req.SkillsRequirements != nil {
		sreq.Requirements = toRequirements(*req.SkillsRequirements)
	}

	res, err := h.Service.Reassign(c.Request.Context(), sreq)
	if err != nil {
		var details any
		if service.IsKind(err, service.KindConsultantNoLongerEligible) {
			details = gin.H{"event": res.Event, "assignment": res.Assignment}
		}
		writeServiceError(c, err, details)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Assignment reassignment history
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} map[string]any
// @Router /api/assignments/{id}/history [get]
func (h *Handler) AssignmentHistory(c *gin.Context) {
	id := c.Param("id")
	history, err := h.Service.History(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment_id": id, "history": history})
}

// @Summary Assignment ledger events
// @Tags assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {array} models.ReassignmentEvent
// @Router /api/assignments/{id}/events [get]
func (h *Handler) AssignmentEvents(c *gin.Context) {
	events, err := h.Service.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, events)
}

// @Summary Preview matches
// @Description Ranks eligible consultants for the requirements without assigning
// @Tags debug
// @Accept json
// @Produce json
// @Param body body PreviewRequest true "Requirements"
// @Success 200 {object} map[string]any
// @Router /api/debug/matches [post]
func (h *Handler) DebugMatches(c *gin.Context) {
	var req PreviewRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	all, err := h.Store.ListConsultants(ctx)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Failed to list consultants", err.Error())
		return
	}
	preview, err := h.Service.Preview(ctx, all, service.SelectionRequest{
		LeadIdentifier: req.LeadIdentifier,
		Requirements:   toRequirements(req.SkillsRequirements),
		Excluded:       models.NewExclusionSet(toRefs(req.ExcludeConsultants)...),
	})
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}

	resp := gin.H{
		"stages":    preview.Stages,
		"matches":   preview.Matches,
		"selection": preview.Selection,
	}
	if d := preview.Decision; d != nil {
		resp["final"] = gin.H{"reason_code": d.Kind, "reason_text": d.Error(), "skills": d.Skills}
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Aggregate daily analytics
// @Description Recomputes the per SDR and consultant rows of one day. Defaults to yesterday.
// @Tags analytics
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} map[string]any
// @Router /api/analytics/aggregate [post]
func (h *Handler) AnalyticsAggregate(c *gin.Context) {
	day := h.Aggregator.PreviousDay(h.now())
	if v := c.Query("date"); v != "" {
		parsed, err := h.Aggregator.ParseDay(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date", err.Error())
			return
		}
		day = parsed
	}
	rows, err := h.Aggregator.Aggregate(c.Request.Context(), day)
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format(time.DateOnly), "rows": rows})
}

// @Summary Daily analytics
// @Tags analytics
// @Produce json
// @Param date query string true "YYYY-MM-DD"
// @Success 200 {object} map[string]any
// @Router /api/analytics/daily [get]
func (h *Handler) AnalyticsDaily(c *gin.Context) {
	v := c.Query("date")
	if v == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "date is required", nil)
		return
	}
	day, err := h.Aggregator.ParseDay(v)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date", err.Error())
		return
	}
	rows, err := h.Aggregator.Daily(c.Request.Context(), day)
	if err != nil {
		writeServiceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": v, "rows": rows})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func toRequirements(in []SkillRequirementRequest) []models.SkillRequirement {
	out := make([]models.SkillRequirement, 0, len(in))
	for _, r := range in {
		p := models.Priority(strings.ToLower(r.Priority))
		if p == "" {
			p = models.PriorityMedium
		}
		out = append(out, models.SkillRequirement{SkillID: strings.TrimSpace(r.SkillID), SkillName: r.SkillName, Priority: p})
	}
	return out
}

func toRefs(in []string) []models.ConsultantRef {
	out := make([]models.ConsultantRef, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.RefFromString(v))
		}
	}
	return out
}

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindNoEligibleConsultants, service.KindNoSkillMatch, service.KindCriticalSkillsUnavailable:
		return http.StatusUnprocessableEntity
	case service.KindConsultantNoLongerEligible:
		return http.StatusConflict
	case service.KindInvalidReassignment:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindTimeout:
		return http.StatusGatewayTimeout
	case service.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error, details any) {
	var typed *service.Error
	if !errors.As(err, &typed) {
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Internal error", err.Error())
		return
	}
	if details == nil && len(typed.Skills) > 0 {
		details = gin.H{"skills": typed.Skills}
	}
	if typed.Retryable() {
		c.Header("Retry-After", "1")
	}
	writeError(c, statusFor(typed.Kind), string(typed.Kind), typed.Error(), details)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
