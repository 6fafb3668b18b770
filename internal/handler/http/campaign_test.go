package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/discounts/internal/domain"
	"github.com/utafrali/discounts/internal/engine"
	"github.com/utafrali/discounts/internal/event"
	"github.com/utafrali/discounts/internal/repository"
	"github.com/utafrali/discounts/internal/service"
	apperrors "github.com/utafrali/discounts/pkg/errors"
	"github.com/utafrali/discounts/pkg/health"
	"github.com/utafrali/discounts/pkg/httputil"
	pkgkafka "github.com/utafrali/discounts/pkg/kafka"
)

// --- Mock Repositories ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) GetByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Campaign), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCampaignRepository) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCampaignRepository) FindActiveInRange(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

type mockUsageRepository struct {
	mock.Mock
}

func (m *mockUsageRepository) Record(ctx context.Context, usage *domain.Usage) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

func (m *mockUsageRepository) CountByCustomer(ctx context.Context, campaignID, customerID string) (int, error) {
	args := m.Called(ctx, campaignID, customerID)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageRepository) ListByOrderable(ctx context.Context, orderableType, orderableID string) ([]domain.Usage, error) {
	args := m.Called(ctx, orderableType, orderableID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Usage), args.Error(1)
}

// --- Collaborator Stubs ---

type stubCatalog struct{}

func (stubCatalog) ProductIDsInCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	return nil, nil
}

type stubOrderHistory struct{}

func (stubOrderHistory) HasPriorOrders(ctx context.Context, customerID, customerType string) (bool, error) {
	return false, nil
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer(logger *slog.Logger) *event.Producer {
	// Kafka producer pointed at an address with no broker; publishes fail
	// silently and the services treat that as non-fatal.
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

// setupRouter wires the full production route table over mocked persistence.
func setupRouter(repo *mockCampaignRepository, usages *mockUsageRepository) http.Handler {
	logger := testLogger()
	producer := testEventProducer(logger)

	campaignService := service.NewCampaignService(repo, producer, logger)

	matcher := engine.NewMatcher(stubOrderHistory{}, logger)
	resolver := engine.NewResolver(stubCatalog{}, logger)
	registry := engine.NewRegistry(resolver, logger)
	evaluator := engine.NewEvaluator(repo, usages, matcher, resolver, logger)
	discountService := service.NewDiscountService(evaluator, registry, usages, producer, logger)

	return NewRouter(campaignService, discountService, health.NewHandler(), logger)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()

	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func dataMap(t *testing.T, resp httputil.Response) map[string]any {
	t.Helper()

	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "response data should be a JSON object")
	return m
}

var (
	testStart = time.Now().UTC().Add(-time.Hour)
	testEnd   = time.Now().UTC().Add(24 * time.Hour)
)

func activeCampaign(id string) *domain.Campaign {
	return &domain.Campaign{
		ID:            id,
		Name:          "Summer Sale",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: 10,
		StartDate:     testStart,
		EndDate:       testEnd,
		IsActive:      true,
		Priority:      50,
		Targets: []domain.Target{
			{Type: domain.TargetProduct, Action: domain.ActionApplyTo},
		},
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}
}

// --- Campaign CRUD ---

func TestCreateCampaignEndpoint_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	body := map[string]any{
		"name":           "Summer Sale",
		"discount_type":  "percentage",
		"discount_value": 20,
		"code":           "SUMMER20",
		"start_date":     testStart.Format(time.RFC3339),
		"end_date":       testEnd.Format(time.RFC3339),
		"priority":       50,
		"targets": []map[string]any{
			{"targetable_type": "product", "targetable_id": 42},
		},
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "Summer Sale", data["name"])
	assert.Equal(t, "SUMMER20", data["code"])
	assert.NotEmpty(t, data["id"])

	repo.AssertExpectations(t)
}

func TestCreateCampaignEndpoint_ValidationError(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	body := map[string]any{
		"name":           "",
		"discount_type":  "percentage",
		"discount_value": 20,
		"start_date":     testStart.Format(time.RFC3339),
		"end_date":       testEnd.Format(time.RFC3339),
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "name")
}

func TestCreateCampaignEndpoint_BadDiscountType(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	body := map[string]any{
		"name":           "Broken",
		"discount_type":  "raffle",
		"discount_value": 20,
		"start_date":     testStart.Format(time.RFC3339),
		"end_date":       testEnd.Format(time.RFC3339),
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateCampaignEndpoint_BadDate(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	body := map[string]any{
		"name":           "Summer Sale",
		"discount_type":  "percentage",
		"discount_value": 20,
		"start_date":     "2026-06-01", // not RFC3339
		"end_date":       testEnd.Format(time.RFC3339),
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "start_date")
}

func TestCreateCampaignEndpoint_UnsupportedMediaType(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", bytes.NewBufferString("name=foo"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetCampaignEndpoint_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("GetByID", mock.Anything, "camp-1").Return(activeCampaign("camp-1"), nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/campaigns/camp-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "camp-1", data["id"])
	assert.Equal(t, "Summer Sale", data["name"])
}

func TestGetCampaignEndpoint_NotFound(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.NotFound("campaign", "missing"))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/campaigns/missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetCampaignByCodeEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	c := activeCampaign("camp-1")
	code := "SAVE10"
	c.Code = &code
	repo.On("GetByCode", mock.Anything, "SAVE10").Return(c, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/campaigns/code/save10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "SAVE10", data["code"])
}

func TestListCampaignsEndpoint_Pagination(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	campaigns := []domain.Campaign{*activeCampaign("camp-1"), *activeCampaign("camp-2")}
	repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.CampaignFilter) bool {
		return f.Page == 2 && f.PerPage == 10 && f.IsActive != nil && *f.IsActive
	})).Return(campaigns, 25, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/campaigns?page=2&per_page=10&is_active=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httputil.PaginatedResponse[domain.Campaign]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 25, resp.TotalCount)
	assert.Equal(t, 3, resp.TotalPages)
	assert.True(t, resp.HasNext)

	repo.AssertExpectations(t)
}

func TestUpdateCampaignEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("GetByID", mock.Anything, "camp-1").Return(activeCampaign("camp-1"), nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	body := map[string]any{"name": "Winter Sale", "priority": 70}

	rec := doRequest(t, router, http.MethodPut, "/api/v1/campaigns/camp-1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "Winter Sale", data["name"])
	assert.Equal(t, float64(70), data["priority"])

	repo.AssertExpectations(t)
}

func TestDeactivateCampaignEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	deactivated := activeCampaign("camp-1")
	deactivated.IsActive = false
	repo.On("Deactivate", mock.Anything, "camp-1").Return(nil)
	repo.On("GetByID", mock.Anything, "camp-1").Return(deactivated, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns/camp-1/deactivate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, false, data["is_active"])

	repo.AssertExpectations(t)
}

func TestDeleteCampaignEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("GetByID", mock.Anything, "camp-1").Return(activeCampaign("camp-1"), nil)
	repo.On("Delete", mock.Anything, "camp-1").Return(nil)

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/campaigns/camp-1", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	repo.AssertExpectations(t)
}

// --- Discount Evaluation ---

func applyBody(scope string) map[string]any {
	return map[string]any{
		"scope": scope,
		"context": map[string]any{
			"cart_total": 10000,
			"items": []map[string]any{
				{"product_id": 1, "quantity": 1, "unit_price": 6000},
				{"product_id": 2, "quantity": 1, "unit_price": 4000},
			},
			"customer_id": "cust-1",
		},
	}
}

func TestApplyDiscountsEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("FindActiveInRange", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]domain.Campaign{*activeCampaign("camp-1")}, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/discounts/apply", applyBody("all"))

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	// 10% off every product: 600 + 400 = 1000 cents saved.
	assert.Equal(t, float64(1000), data["total_savings"])
	assert.Equal(t, float64(10000), data["original_total"])
	assert.Equal(t, float64(9000), data["final_total"])
}

func TestApplyDiscountsEndpoint_BadScope(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/discounts/apply", applyBody("sideways"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestProbeCampaignEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("GetByID", mock.Anything, "camp-1").Return(activeCampaign("camp-1"), nil)

	body := map[string]any{"context": applyBody("")["context"]}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns/camp-1/apply", body)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, true, data["applicable"])
	require.NotNil(t, data["result"])
}

func TestProbeCampaignEndpoint_Inactive(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	inactive := activeCampaign("camp-1")
	inactive.IsActive = false
	repo.On("GetByID", mock.Anything, "camp-1").Return(inactive, nil)

	body := map[string]any{"context": applyBody("")["context"]}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/campaigns/camp-1/apply", body)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, false, data["applicable"])
	assert.Nil(t, data["result"])
}

// --- Order Finalization ---

func TestFinalizeOrderEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	usages := new(mockUsageRepository)
	router := setupRouter(repo, usages)

	repo.On("FindActiveInRange", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]domain.Campaign{}, nil)
	usages.On("Record", mock.Anything, mock.AnythingOfType("*domain.Usage")).Return(nil)

	body := map[string]any{
		"context": applyBody("")["context"],
		"results": []map[string]any{
			{
				"campaign_id":   "camp-1",
				"campaign_name": "Summer Sale",
				"discount_type": "percentage",
				"amount_saved":  1000,
			},
		},
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/orders/order/ord-77/finalize", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, float64(9000), data["final_total"])

	usages.AssertExpectations(t)
}

func TestListOrderDiscountsEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	usages := new(mockUsageRepository)
	router := setupRouter(repo, usages)

	records := []domain.Usage{
		{ID: "use-1", CampaignID: "camp-1", OrderableType: "order", OrderableID: "ord-77", AmountApplied: 1000},
	}
	usages.On("ListByOrderable", mock.Anything, "order", "ord-77").Return(records, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/orders/order/ord-77/discounts", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	usages.AssertExpectations(t)
}

// --- Pricing Display ---

func TestProductPricingEndpoint(t *testing.T) {
	repo := new(mockCampaignRepository)
	router := setupRouter(repo, new(mockUsageRepository))

	repo.On("FindActiveInRange", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]domain.Campaign{*activeCampaign("camp-1")}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/products/1/pricing?price=5000&customer_id=cust-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, float64(1), data["product_id"])
	assert.Equal(t, float64(5000), data["original_price"])
	assert.Equal(t, float64(4500), data["final_price"])
}

func TestProductPricingEndpoint_MissingPrice(t *testing.T) {
	router := setupRouter(new(mockCampaignRepository), new(mockUsageRepository))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/products/1/pricing", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "price")
}
