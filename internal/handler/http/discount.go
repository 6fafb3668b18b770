package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/service"
	"github.com/utafrali/discounts/pkg/httputil"
	"github.com/utafrali/discounts/pkg/validator"
)

// DiscountHandler handles HTTP requests for discount evaluation, order
// finalization, and pricing display.
type DiscountHandler struct {
	discounts *service.DiscountService
	campaigns *service.CampaignService
	logger    *slog.Logger
}

// NewDiscountHandler creates a new discount HTTP handler.
func NewDiscountHandler(discounts *service.DiscountService, campaigns *service.CampaignService, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{
		discounts: discounts,
		campaigns: campaigns,
		logger:    logger,
	}
}

// --- Request DTOs ---

// LineItemRequest is one cart line in a discount context payload.
type LineItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	ProductType string `json:"product_type"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
	LineTotal   int64  `json:"line_total" validate:"gte=0"`
}

// DiscountContextRequest is the JSON representation of the cart or order
// snapshot being evaluated. All amounts are integer cents.
type DiscountContextRequest struct {
	CartTotal    int64             `json:"cart_total" validate:"gte=0"`
	Items        []LineItemRequest `json:"items" validate:"dive"`
	CustomerID   string            `json:"customer_id"`
	CustomerType string            `json:"customer_type"`
	RequestData  map[string]any    `json:"request_data"`
}

// ApplyDiscountsRequest is the JSON request body for a discount application
// pass. Scope defaults to "all".
type ApplyDiscountsRequest struct {
	Scope   string                 `json:"scope" validate:"omitempty,oneof=products cart shipping all"`
	Context DiscountContextRequest `json:"context" validate:"required"`
}

// ProbeCampaignRequest is the JSON request body for the single-campaign probe.
type ProbeCampaignRequest struct {
	Context DiscountContextRequest `json:"context" validate:"required"`
}

// ProbeCampaignResponse reports whether a campaign applies and its isolated
// effect when it does.
type ProbeCampaignResponse struct {
	Applicable bool                   `json:"applicable"`
	Result     *domain.DiscountResult `json:"result,omitempty"`
}

// FinalizeOrderRequest is the JSON request body for recording an order's
// discounts. Results carries the discount results computed at cart time.
type FinalizeOrderRequest struct {
	Context DiscountContextRequest  `json:"context" validate:"required"`
	Results []domain.DiscountResult `json:"results"`
}

func (r *DiscountContextRequest) toDomain(order *domain.OrderableRef) *domain.DiscountContext {
	items := make([]domain.LineItem, len(r.Items))
	for i, it := range r.Items {
		lineTotal := it.LineTotal
		if lineTotal == 0 {
			lineTotal = it.UnitPrice * int64(it.Quantity)
		}
		items[i] = domain.LineItem{
			ProductID:   it.ProductID,
			ProductType: it.ProductType,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   lineTotal,
		}
	}
	return &domain.DiscountContext{
		CartTotal:    r.CartTotal,
		Items:        items,
		CustomerID:   r.CustomerID,
		CustomerType: r.CustomerType,
		RequestData:  r.RequestData,
		Order:        order,
	}
}

// --- Handlers ---

// ApplyDiscounts handles POST /api/v1/discounts/apply
func (h *DiscountHandler) ApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req ApplyDiscountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	scope := domain.Scope(req.Scope)
	if scope == "" {
		scope = domain.ScopeAll
	}

	app, err := h.discounts.ApplyDiscounts(r.Context(), req.Context.toDomain(nil), scope)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: app})
}

// ProbeCampaign handles POST /api/v1/campaigns/{id}/apply
func (h *DiscountHandler) ProbeCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "campaign id is required")
		return
	}

	var req ProbeCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	campaign, err := h.campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result := h.discounts.ApplyCampaign(r.Context(), campaign, req.Context.toDomain(nil))

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ProbeCampaignResponse{
		Applicable: result != nil,
		Result:     result,
	}})
}

// FinalizeOrder handles POST /api/v1/orders/{orderableType}/{orderableId}/finalize
func (h *DiscountHandler) FinalizeOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	orderableType := chi.URLParam(r, "orderableType")
	orderableID := chi.URLParam(r, "orderableId")
	if orderableType == "" || orderableID == "" {
		writeBadRequest(w, "orderable type and id are required")
		return
	}

	var req FinalizeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order := &domain.OrderableRef{Type: orderableType, ID: orderableID}
	input := &service.FinalizeOrderInput{
		Context: req.Context.toDomain(order),
		Results: req.Results,
	}

	out, err := h.discounts.FinalizeOrder(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: out})
}

// ListOrderDiscounts handles GET /api/v1/orders/{orderableType}/{orderableId}/discounts
func (h *DiscountHandler) ListOrderDiscounts(w http.ResponseWriter, r *http.Request) {
	orderableType := chi.URLParam(r, "orderableType")
	orderableID := chi.URLParam(r, "orderableId")
	if orderableType == "" || orderableID == "" {
		writeBadRequest(w, "orderable type and id are required")
		return
	}

	usages, err := h.discounts.ListOrderDiscounts(r.Context(), orderableType, orderableID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: usages})
}

// ProductPricing handles GET /api/v1/products/{productId}/pricing
func (h *DiscountHandler) ProductPricing(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		writeBadRequest(w, "product id must be a positive integer")
		return
	}

	price, err := strconv.ParseInt(r.URL.Query().Get("price"), 10, 64)
	if err != nil {
		writeBadRequest(w, "price query parameter must be an integer amount in cents")
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	customerType := r.URL.Query().Get("customer_type")

	pricing, err := h.discounts.BestPrice(r.Context(), productID, price, customerID, customerType)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pricing})
}
