package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/discounts/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(httpclient.New(httpclient.DefaultConfig()), srv.URL, nil, testLogger())
	return client, srv
}

func TestClient_ProductIDsInCategory(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/categories/7/product-ids", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"product_ids":[1,33]}}`))
	})

	ids, err := client.ProductIDsInCategory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 33}, ids)
}

func TestClient_CategoryIDsForProduct(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/1/category-ids", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"category_ids":[3,7]}}`))
	})

	ids, err := client.CategoryIDsForProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, ids)
}

func TestClient_StructuredDownstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"category not found"}}`))
	})

	ids, err := client.ProductIDsInCategory(context.Background(), 99)
	assert.Nil(t, ids)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "category 99")
}

func TestOrderHistoryClient_HasPriorOrders(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"count":3}}`))
	}))
	defer srv.Close()

	client := NewOrderHistoryClient(httpclient.New(httpclient.DefaultConfig()), srv.URL)
	has, err := client.HasPriorOrders(context.Background(), "cust-1", "customer")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, "/api/v1/customers/cust-1/order-count", gotPath)
	assert.Equal(t, "customer_type=customer", gotQuery)
}

func TestOrderHistoryClient_NoPriorOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"count":0}}`))
	}))
	defer srv.Close()

	client := NewOrderHistoryClient(httpclient.New(httpclient.DefaultConfig()), srv.URL)
	has, err := client.HasPriorOrders(context.Background(), "cust-1", "")
	require.NoError(t, err)
	assert.False(t, has)
}
