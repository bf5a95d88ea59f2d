// Package retrieval adapts the product catalog search service. An
// unconfigured or unreachable backend degrades to empty results so that
// callers proceed with generic prompts instead of failing.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/pkg/logger"
)

// Product is one catalog document at the adapter boundary. Monthly
// subscription prices are per contract term in years.
type Product struct {
	ID                   string `json:"id"`
	Name                 string `json:"product_name"`
	Description          string `json:"description"`
	PurchasePrice        int    `json:"purchase_price"`
	SubscriptionPrice3Y  int    `json:"subscription_price_3y"`
	SubscriptionPrice4Y  int    `json:"subscription_price_4y"`
	SubscriptionPrice5Y  int    `json:"subscription_price_5y"`
	SubscriptionPrice6Y  int    `json:"subscription_price_6y"`
	SubscriptionBenefits string `json:"subscription_benefits"`
	CareServiceDesc      string `json:"care_service_description"`
	CareServiceFrequency string `json:"care_service_frequency"`
}

// Match is one search hit.
type Match struct {
	Score    float64 `json:"score"`
	Document Product `json:"document"`
}

// Client is the retrieval adapter contract.
type Client interface {
	// Search returns matching documents. Missing configuration or transport
	// failures yield an empty slice, never an error.
	Search(ctx context.Context, query string, filters map[string]string) ([]Match, error)

	// GetProduct returns the document for id, or nil when not found. Lookup
	// failures distinct from not-found propagate as errors.
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// HTTPClient talks to the catalog search service.
type HTTPClient struct {
	rest    *resty.Client
	enabled bool
	log     *logger.Logger
}

// NewHTTPClient builds a retrieval client. An empty baseURL produces a
// disabled client that satisfies the degraded contract.
func NewHTTPClient(baseURL, apiKey string, log *logger.Logger) *HTTPClient {
	if baseURL == "" {
		log.Warn("catalog search not configured, retrieval disabled")
		return &HTTPClient{enabled: false, log: log}
	}

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(1)
	if apiKey != "" {
		rest.SetHeader("api-key", apiKey)
	}

	return &HTTPClient{rest: rest, enabled: true, log: log}
}

type searchResponse struct {
	Results []Match `json:"results"`
	Count   int     `json:"count"`
}

// Search queries the catalog index.
func (c *HTTPClient) Search(ctx context.Context, query string, filters map[string]string) ([]Match, error) {
	if !c.enabled {
		return []Match{}, nil
	}

	var out searchResponse
	req := c.rest.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&out)
	for k, v := range filters {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Get("/search")
	if err != nil || resp.StatusCode() != http.StatusOK {
		// Degrade to generic persona behavior rather than failing the turn.
		c.log.Warn("catalog search failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return []Match{}, nil
	}

	return out.Results, nil
}

// GetProduct looks a document up by id.
func (c *HTTPClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	if !c.enabled {
		return nil, nil
	}

	var doc Product
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&doc).
		Get("/products/" + id)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("catalog lookup failed: status %d", resp.StatusCode())
	}

	return &doc, nil
}
