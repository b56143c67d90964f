package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OrderRef identifies an order either by its numeric admin id or by its
// GraphQL gid. The gid wins when both are set.
type OrderRef struct {
	OrderID  int64
	OrderGID string
}

// GID resolves the reference to a GraphQL order id.
func (r OrderRef) GID() string {
	if strings.TrimSpace(r.OrderGID) != "" {
		return r.OrderGID
	}
	return fmt.Sprintf("gid://shopify/Order/%d", r.OrderID)
}

// OrderFulfillmentStatus is the canonical shipment state of an order as
// reported by Shopify.
type OrderFulfillmentStatus struct {
	GID                      string
	Name                     string
	DisplayFulfillmentStatus string
}

// OrderStatusProvider answers fulfillment status queries. The live client and
// the mock are interchangeable; the variant is chosen once at startup and
// call sites never branch on which one they got.
type OrderStatusProvider interface {
	GetOrderFulfillmentStatus(ctx context.Context, ref OrderRef) (*OrderFulfillmentStatus, error)
}

const fulfillmentStatusQuery = `query ($id: ID!) {
  order(id: $id) {
    id
    name
    displayFulfillmentStatus
  }
}`

// Client queries the Shopify Admin GraphQL API.
type Client struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string

	// BaseURL overrides the https://{shop}/admin/api/{version} default,
	// used by tests.
	BaseURL string

	HTTPClient *http.Client
}

// NewClient creates a live Shopify Admin API client.
func NewClient(shopDomain, accessToken, apiVersion string) *Client {
	return &Client{
		ShopDomain:  shopDomain,
		AccessToken: accessToken,
		APIVersion:  apiVersion,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) endpoint() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/") + "/graphql.json"
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.ShopDomain, c.APIVersion)
}

func (c *Client) graphql(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("shopify graphql returned non-JSON (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		return fmt.Errorf("shopify graphql HTTP %d: %s", resp.StatusCode, msg)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("shopify graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// GetOrderFulfillmentStatus returns the display fulfillment status for an
// order. An unknown order yields an empty status rather than an error.
func (c *Client) GetOrderFulfillmentStatus(ctx context.Context, ref OrderRef) (*OrderFulfillmentStatus, error) {
	gid := ref.GID()

	var data struct {
		Order *struct {
			ID                       string `json:"id"`
			Name                     string `json:"name"`
			DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
		} `json:"order"`
	}
	if err := c.graphql(ctx, fulfillmentStatusQuery, map[string]interface{}{"id": gid}, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return &OrderFulfillmentStatus{GID: gid}, nil
	}
	return &OrderFulfillmentStatus{
		GID:                      data.Order.ID,
		Name:                     data.Order.Name,
		DisplayFulfillmentStatus: data.Order.DisplayFulfillmentStatus,
	}, nil
}

var _ OrderStatusProvider = (*Client)(nil)

// MockClient answers fulfillment status queries with a configured status
// without calling Shopify. Used for demos and local testing where the
// webhook itself is trusted.
type MockClient struct {
	DefaultFulfillmentStatus string
}

// NewMockClient creates a mock provider; an empty status defaults to FULFILLED.
func NewMockClient(defaultFulfillmentStatus string) *MockClient {
	if defaultFulfillmentStatus == "" {
		defaultFulfillmentStatus = "FULFILLED"
	}
	return &MockClient{DefaultFulfillmentStatus: defaultFulfillmentStatus}
}

func (m *MockClient) GetOrderFulfillmentStatus(ctx context.Context, ref OrderRef) (*OrderFulfillmentStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := &OrderFulfillmentStatus{
		GID:                      ref.GID(),
		DisplayFulfillmentStatus: m.DefaultFulfillmentStatus,
	}
	if ref.OrderID > 0 {
		status.Name = fmt.Sprintf("#%d", ref.OrderID)
	}
	return status, nil
}

var _ OrderStatusProvider = (*MockClient)(nil)
