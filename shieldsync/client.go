package shieldsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// shieldClient talks to the Shield protection/tracking API. It reports
// HTTP-level outcomes as Result values and reserves errors for transport
// failures, so callers can drive their state machines off raw status codes.
type shieldClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func NewClient() (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("SHIELD_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.shieldprotect.io"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("SHIELD_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	apiKey := strings.TrimSpace(os.Getenv("SHIELD_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("shield api key is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("SHIELD_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &shieldClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *shieldClient) do(ctx context.Context, method string, path string, params url.Values, payload interface{}) (Result, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Result{}, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: body}, nil
}

func (c *shieldClient) GetOrder(ctx context.Context, orderID uint) (Result, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/orders/%d", orderID), nil, nil)
}

func (c *shieldClient) CreateOrder(ctx context.Context, payload OrderPayload) (Result, error) {
	return c.do(ctx, http.MethodPost, "/v1/orders", nil, payload)
}

func (c *shieldClient) GetShipment(ctx context.Context, trackingNumber string, orderID uint) (Result, error) {
	params := url.Values{}
	params.Set("source_order_id", strconv.FormatUint(uint64(orderID), 10))
	return c.do(ctx, http.MethodGet, "/v1/shipments/"+url.PathEscape(trackingNumber), params, nil)
}

func (c *shieldClient) CreateShipment(ctx context.Context, trackingNumber string, payload ShipmentTracking) (Result, error) {
	return c.do(ctx, http.MethodPost, "/v1/shipments/"+url.PathEscape(trackingNumber), nil, payload)
}

func (c *shieldClient) CancelShipment(ctx context.Context, trackingNumber string, payload CancelPayload) (Result, error) {
	return c.do(ctx, http.MethodPost, "/v1/shipments/"+url.PathEscape(trackingNumber)+"/cancel", nil, payload)
}

func (c *shieldClient) ListWebhooks(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodGet, "/v1/webhooks", nil, nil)
}

func (c *shieldClient) CreateWebhook(ctx context.Context, webhook RemoteWebhook) (Result, error) {
	return c.do(ctx, http.MethodPost, "/v1/webhooks", nil, webhook)
}

func (c *shieldClient) UpdateWebhook(ctx context.Context, webhook RemoteWebhook) (Result, error) {
	return c.do(ctx, http.MethodPut, "/v1/webhooks/"+url.PathEscape(webhook.ID), nil, webhook)
}
