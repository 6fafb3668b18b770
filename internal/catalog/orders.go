package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utafrali/discounts/pkg/httpclient"
)

// OrderHistoryClient answers prior-order lookups against the order service,
// used by the first_order condition.
type OrderHistoryClient struct {
	http    Doer
	baseURL string
}

// NewOrderHistoryClient creates an order history client.
func NewOrderHistoryClient(http Doer, baseURL string) *OrderHistoryClient {
	return &OrderHistoryClient{http: http, baseURL: baseURL}
}

type orderCountPayload struct {
	Data struct {
		Count int `json:"count"`
	} `json:"data"`
}

// HasPriorOrders reports whether the customer has placed at least one order.
// customerType qualifies the customer reference for multi-model callers and
// is passed through as a query parameter when set.
func (c *OrderHistoryClient) HasPriorOrders(ctx context.Context, customerID, customerType string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/customers/%s/order-count", c.baseURL, customerID)
	if customerType != "" {
		url += "?customer_type=" + customerType
	}

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return false, fmt.Errorf("order count for customer %s: %w", customerID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, httpclient.ParseResponseError(resp, "order service")
	}

	var payload orderCountPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode order count response: %w", err)
	}
	return payload.Data.Count > 0, nil
}
