// Package catalog holds the read-only collaborator clients the discount
// engine consults: category membership from the product service and prior
// order counts from the order service. Both go through the resilient HTTP
// client with a circuit breaker; category membership is additionally cached
// in Redis since it changes rarely and is read on every category-targeted
// evaluation.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/discounts/pkg/httpclient"
)

const defaultCacheTTL = 5 * time.Minute

// Doer is the HTTP transport the clients issue requests through. Satisfied
// by httpclient.Client and httpclient.CircuitBreakerClient.
type Doer interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Client resolves category membership against the product catalog service.
type Client struct {
	http    Doer
	baseURL string
	cache   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// NewClient creates a catalog client. cache may be nil, in which case every
// lookup hits the catalog service.
func NewClient(http Doer, baseURL string, cache *redis.Client, logger *slog.Logger) *Client {
	return &Client{
		http:    http,
		baseURL: baseURL,
		cache:   cache,
		ttl:     defaultCacheTTL,
		logger:  logger,
	}
}

type productIDsPayload struct {
	Data struct {
		ProductIDs []int64 `json:"product_ids"`
	} `json:"data"`
}

type categoryIDsPayload struct {
	Data struct {
		CategoryIDs []int64 `json:"category_ids"`
	} `json:"data"`
}

// ProductIDsInCategory returns the product ids belonging to a category,
// read through the Redis cache.
func (c *Client) ProductIDsInCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	key := fmt.Sprintf("catalog:category:%d:products", categoryID)
	if ids, ok := c.cachedIDs(ctx, key); ok {
		return ids, nil
	}

	url := fmt.Sprintf("%s/api/v1/categories/%d/product-ids", c.baseURL, categoryID)
	var payload productIDsPayload
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("category %d product ids: %w", categoryID, err)
	}

	c.storeIDs(ctx, key, payload.Data.ProductIDs)
	return payload.Data.ProductIDs, nil
}

// CategoryIDsForProduct returns the category ids a product belongs to,
// read through the Redis cache.
func (c *Client) CategoryIDsForProduct(ctx context.Context, productID int64) ([]int64, error) {
	key := fmt.Sprintf("catalog:product:%d:categories", productID)
	if ids, ok := c.cachedIDs(ctx, key); ok {
		return ids, nil
	}

	url := fmt.Sprintf("%s/api/v1/products/%d/category-ids", c.baseURL, productID)
	var payload categoryIDsPayload
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("product %d category ids: %w", productID, err)
	}

	c.storeIDs(ctx, key, payload.Data.CategoryIDs)
	return payload.Data.CategoryIDs, nil
}

// cachedIDs reads an id list from Redis. Cache failures are logged and
// treated as misses.
func (c *Client) cachedIDs(ctx context.Context, key string) ([]int64, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "catalog cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		c.logger.WarnContext(ctx, "catalog cache entry corrupt, ignoring",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return ids, true
}

// storeIDs writes an id list to Redis. Failures are logged, never returned:
// the lookup already succeeded.
func (c *Client) storeIDs(ctx context.Context, key string, ids []int64) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "catalog service")
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
