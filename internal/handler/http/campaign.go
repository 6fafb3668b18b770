package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/repository"
	"github.com/utafrali/discounts/internal/service"
	"github.com/utafrali/discounts/pkg/httputil"
	"github.com/utafrali/discounts/pkg/validator"
)

// CampaignHandler handles HTTP requests for campaign administration.
type CampaignHandler struct {
	service *service.CampaignService
	logger  *slog.Logger
}

// NewCampaignHandler creates a new campaign HTTP handler.
func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ConditionRequest is the JSON representation of one campaign condition.
type ConditionRequest struct {
	Type          string                `json:"condition_type" validate:"required,max=50"`
	Operator      string                `json:"operator" validate:"omitempty,oneof=>= > <= < == != in not_in"`
	Value         domain.ConditionValue `json:"value"`
	LogicOperator string                `json:"logic_operator" validate:"omitempty,oneof=and or"`
	Priority      int                   `json:"priority"`
}

// TargetRequest is the JSON representation of one campaign target.
type TargetRequest struct {
	Type         string         `json:"targetable_type" validate:"required,oneof=product category shipment shopcart"`
	TargetableID *int64         `json:"targetable_id" validate:"omitempty,gt=0"`
	Action       string         `json:"target_action" validate:"omitempty,oneof=apply_to requires excludes"`
	Metadata     map[string]any `json:"metadata"`
}

// CreateCampaignRequest is the JSON request body for creating a campaign.
type CreateCampaignRequest struct {
	Name               string             `json:"name" validate:"required,min=1,max=255"`
	Description        string             `json:"description"`
	DiscountType       string             `json:"discount_type" validate:"required,oneof=percentage fixed_amount bogo"`
	DiscountValue      int64              `json:"discount_value" validate:"required,gt=0"`
	Code               string             `json:"code" validate:"max=50"`
	GenerateCode       bool               `json:"generate_code"`
	StartDate          string             `json:"start_date" validate:"required"`
	EndDate            string             `json:"end_date" validate:"required"`
	IsActive           *bool              `json:"is_active"`
	Priority           int                `json:"priority" validate:"gte=0"`
	IsStackable        bool               `json:"is_stackable"`
	MaxUsesTotal       *int               `json:"max_uses_total" validate:"omitempty,gte=1"`
	MaxUsesPerCustomer *int               `json:"max_uses_per_customer" validate:"omitempty,gte=1"`
	Metadata           map[string]any     `json:"metadata"`
	Conditions         []ConditionRequest `json:"conditions" validate:"dive"`
	Targets            []TargetRequest    `json:"targets" validate:"dive"`
}

// UpdateCampaignRequest is the JSON request body for updating a campaign.
// Nil fields are left unchanged.
type UpdateCampaignRequest struct {
	Name               *string            `json:"name" validate:"omitempty,min=1,max=255"`
	Description        *string            `json:"description"`
	DiscountType       *string            `json:"discount_type" validate:"omitempty,oneof=percentage fixed_amount bogo"`
	DiscountValue      *int64             `json:"discount_value" validate:"omitempty,gt=0"`
	Code               *string            `json:"code" validate:"omitempty,max=50"`
	StartDate          *string            `json:"start_date"`
	EndDate            *string            `json:"end_date"`
	IsActive           *bool              `json:"is_active"`
	Priority           *int               `json:"priority" validate:"omitempty,gte=0"`
	IsStackable        *bool              `json:"is_stackable"`
	MaxUsesTotal       *int               `json:"max_uses_total" validate:"omitempty,gte=1"`
	MaxUsesPerCustomer *int               `json:"max_uses_per_customer" validate:"omitempty,gte=1"`
	Metadata           map[string]any     `json:"metadata"`
	Conditions         []ConditionRequest `json:"conditions" validate:"omitempty,dive"`
	Targets            []TargetRequest    `json:"targets" validate:"omitempty,dive"`
}

func (r *ConditionRequest) toDomain() domain.Condition {
	return domain.Condition{
		Type:          domain.ConditionType(r.Type),
		Operator:      domain.Operator(r.Operator),
		Value:         r.Value,
		LogicOperator: domain.LogicOperator(r.LogicOperator),
		Priority:      r.Priority,
	}
}

func (r *TargetRequest) toDomain() domain.Target {
	action := domain.TargetAction(r.Action)
	if action == "" {
		action = domain.ActionApplyTo
	}
	return domain.Target{
		Type:         domain.TargetType(r.Type),
		TargetableID: r.TargetableID,
		Action:       action,
		Metadata:     r.Metadata,
	}
}

func conditionsToDomain(reqs []ConditionRequest) []domain.Condition {
	if reqs == nil {
		return nil
	}
	out := make([]domain.Condition, len(reqs))
	for i := range reqs {
		out[i] = reqs[i].toDomain()
	}
	return out
}

func targetsToDomain(reqs []TargetRequest) []domain.Target {
	if reqs == nil {
		return nil
	}
	out := make([]domain.Target, len(reqs))
	for i := range reqs {
		out[i] = reqs[i].toDomain()
	}
	return out
}

// --- Handlers ---

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		writeBadRequest(w, "start_date must be in RFC3339 format")
		return
	}

	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		writeBadRequest(w, "end_date must be in RFC3339 format")
		return
	}

	input := &service.CreateCampaignInput{
		Name:               req.Name,
		Description:        req.Description,
		DiscountType:       req.DiscountType,
		DiscountValue:      req.DiscountValue,
		Code:               req.Code,
		GenerateCode:       req.GenerateCode,
		StartDate:          startDate,
		EndDate:            endDate,
		IsActive:           req.IsActive,
		Priority:           req.Priority,
		IsStackable:        req.IsStackable,
		MaxUsesTotal:       req.MaxUsesTotal,
		MaxUsesPerCustomer: req.MaxUsesPerCustomer,
		Metadata:           req.Metadata,
		Conditions:         conditionsToDomain(req.Conditions),
		Targets:            targetsToDomain(req.Targets),
	}

	campaign, err := h.service.CreateCampaign(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: campaign})
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := repository.CampaignFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if perPage, err := strconv.Atoi(v); err == nil && perPage > 0 && perPage <= 100 {
			filter.PerPage = perPage
		}
	}
	if v := r.URL.Query().Get("is_active"); v != "" {
		if isActive, err := strconv.ParseBool(v); err == nil {
			filter.IsActive = &isActive
		}
	}
	if v := r.URL.Query().Get("discount_type"); v != "" {
		filter.DiscountType = &v
	}

	campaigns, total, err := h.service.ListCampaigns(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(campaigns, total, filter.Page, filter.PerPage))
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "campaign id is required")
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: campaign})
}

// GetCampaignByCode handles GET /api/v1/campaigns/code/{code}
func (h *CampaignHandler) GetCampaignByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeBadRequest(w, "campaign code is required")
		return
	}

	campaign, err := h.service.GetCampaignByCode(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: campaign})
}

// UpdateCampaign handles PUT /api/v1/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "campaign id is required")
		return
	}

	var req UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.UpdateCampaignInput{
		Name:               req.Name,
		Description:        req.Description,
		DiscountType:       req.DiscountType,
		DiscountValue:      req.DiscountValue,
		Code:               req.Code,
		IsActive:           req.IsActive,
		Priority:           req.Priority,
		IsStackable:        req.IsStackable,
		MaxUsesTotal:       req.MaxUsesTotal,
		MaxUsesPerCustomer: req.MaxUsesPerCustomer,
		Metadata:           req.Metadata,
		Conditions:         conditionsToDomain(req.Conditions),
		Targets:            targetsToDomain(req.Targets),
	}

	if req.StartDate != nil {
		startDate, err := time.Parse(time.RFC3339, *req.StartDate)
		if err != nil {
			writeBadRequest(w, "start_date must be in RFC3339 format")
			return
		}
		input.StartDate = &startDate
	}

	if req.EndDate != nil {
		endDate, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			writeBadRequest(w, "end_date must be in RFC3339 format")
			return
		}
		input.EndDate = &endDate
	}

	campaign, err := h.service.UpdateCampaign(r.Context(), id, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: campaign})
}

// DeactivateCampaign handles POST /api/v1/campaigns/{id}/deactivate
func (h *CampaignHandler) DeactivateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "campaign id is required")
		return
	}

	campaign, err := h.service.DeactivateCampaign(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: campaign})
}

// DeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "campaign id is required")
		return
	}

	if err := h.service.DeleteCampaign(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: message},
	})
}
