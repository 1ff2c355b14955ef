package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	applog "github.com/manmanrai/limerime-vercel-api/internal/platform/logging"
)

const (
	defaultAPIVersion = "2025-04"
	tokenHeader       = "X-Shopify-Access-Token"
	userAgent         = "limerime-vercel-api"
	metafieldPageSize = 250
	// maxMetafieldPages bounds pagination against a misbehaving Link header.
	maxMetafieldPages = 40
	maxErrorBodyBytes = 64 << 10
)

// Client implements Service using the Shopify Admin REST API.
type Client struct {
	httpClient *http.Client
	shopDomain string
	apiVersion string
	baseURL    string
	token      string
	observer   RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL including the /admin/api/{version} path (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIVersion selects the Admin API version, e.g. "2025-04".
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithObserver reports every upstream call's status and latency.
func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a new Shopify Admin API client for shopDomain
// (e.g. "example.myshopify.com") authenticated with an Admin API access token.
func NewClient(httpClient *http.Client, shopDomain, token string, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		shopDomain: shopDomain,
		apiVersion: defaultAPIVersion,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = "https://" + c.shopDomain + "/admin/api/" + c.apiVersion
	}
	return c
}

// Shopify API payloads (snake_case JSON matching the Admin REST API).

type shopifyCustomer struct {
	ID   json.Number `json:"id"`
	Tags string      `json:"tags"`
}

type customerEnvelope struct {
	Customer *shopifyCustomer `json:"customer"`
}

type customerTagsEnvelope struct {
	Customer struct {
		ID   any    `json:"id"`
		Tags string `json:"tags"`
	} `json:"customer"`
}

type shopifyMetafield struct {
	ID        json.Number     `json:"id"`
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Type      string          `json:"type"`
	UpdatedAt string          `json:"updated_at"`
}

type metafieldEnvelope struct {
	Metafield *shopifyMetafield `json:"metafield"`
}

type metafieldsEnvelope struct {
	Metafields []shopifyMetafield `json:"metafields"`
}

type metafieldPayload struct {
	Metafield struct {
		Namespace string `json:"namespace"`
		Key       string `json:"key"`
		Value     string `json:"value"`
		Type      string `json:"type"`
	} `json:"metafield"`
}

type errorEnvelope struct {
	Errors json.RawMessage `json:"errors"`
}

func (c *Client) doRequest(
	ctx context.Context, operation, method, path string, query url.Values, body any,
) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(tokenHeader, c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if c.observer != nil {
		c.observer.ObserveUpstream(operation, status, elapsed)
	}
	applog.LogDebug(ctx, "shopify request",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	)
	return resp, err
}

func (c *Client) decodeResponse(ctx context.Context, resp *http.Response, target any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if target == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decoding shopify response: %w", err)
		}
		return nil
	}

	detail := errorDetail(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return upstreamErrorFromResponse(resp, UpstreamErrorKindNotFound, detail, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		applog.LogWarn(ctx, "shopify api rate limit exceeded",
			zap.Int("status", resp.StatusCode),
			zap.String("Retry-After", resp.Header.Get("Retry-After")),
		)
		return upstreamErrorFromResponse(resp, UpstreamErrorKindRateLimited, detail, ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		applog.LogWarn(ctx, "shopify api access denied", zap.Int("status", resp.StatusCode))
		return upstreamErrorFromResponse(resp, UpstreamErrorKindUnauthorized, detail, ErrUnauthorized)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return upstreamErrorFromResponse(resp, UpstreamErrorKindInvalid, detail, ErrInvalid)
	default:
		return upstreamErrorFromResponse(resp, UpstreamErrorKindUpstream, detail, ErrUpstream)
	}
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	resp, err := c.doRequest(ctx, "get_customer", http.MethodGet, customerBase(customerID)+".json", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching customer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env customerEnvelope
	if err := c.decodeResponse(ctx, resp, &env); err != nil {
		return nil, err
	}
	if env.Customer == nil {
		return nil, fmt.Errorf("decoding customer: missing customer object: %w", ErrUpstream)
	}

	id := env.Customer.ID.String()
	if id == "" {
		id = customerID
	}
	return &Customer{ID: id, Tags: env.Customer.Tags}, nil
}

func (c *Client) PutCustomerTags(ctx context.Context, customerID, tags string) error {
	var body customerTagsEnvelope
	body.Customer.ID = customerIDValue(customerID)
	body.Customer.Tags = tags

	resp, err := c.doRequest(ctx, "put_customer_tags", http.MethodPut, customerBase(customerID)+".json", nil, body)
	if err != nil {
		return fmt.Errorf("updating customer tags: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeResponse(ctx, resp, nil)
}

// ListMetafields returns every metafield of the customer, following Shopify's
// cursor pagination until the last page.
func (c *Client) ListMetafields(ctx context.Context, customerID string) ([]Metafield, error) {
	var all []Metafield
	pageInfo := ""
	for page := 0; page < maxMetafieldPages; page++ {
		q := url.Values{"limit": {strconv.Itoa(metafieldPageSize)}}
		if pageInfo != "" {
			q.Set("page_info", pageInfo)
		}

		next, items, err := c.listMetafieldsPage(ctx, customerID, q)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		pageInfo = next
	}
	applog.LogWarn(ctx, "shopify metafield pagination truncated",
		zap.String("customerId", customerID),
		zap.Int("pages", maxMetafieldPages),
	)
	return all, nil
}

func (c *Client) listMetafieldsPage(ctx context.Context, customerID string, q url.Values) (string, []Metafield, error) {
	resp, err := c.doRequest(ctx, "list_metafields", http.MethodGet, customerBase(customerID)+"/metafields.json", q, nil)
	if err != nil {
		return "", nil, fmt.Errorf("fetching metafields: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	linkHeader := resp.Header.Get("Link")

	var env metafieldsEnvelope
	if err := c.decodeResponse(ctx, resp, &env); err != nil {
		return "", nil, err
	}

	items := make([]Metafield, len(env.Metafields))
	for i, m := range env.Metafields {
		mf, err := toMetafield(m)
		if err != nil {
			return "", nil, fmt.Errorf("decoding metafield %d: %w", i, err)
		}
		items[i] = mf
	}
	return parseLinkHeader(linkHeader), items, nil
}

func (c *Client) CreateMetafield(ctx context.Context, customerID string, in MetafieldInput) (*Metafield, error) {
	resp, err := c.doRequest(ctx, "create_metafield", http.MethodPost,
		customerBase(customerID)+"/metafields.json", nil, toPayload(in))
	if err != nil {
		return nil, fmt.Errorf("creating metafield: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeMetafield(ctx, resp)
}

func (c *Client) UpdateMetafield(ctx context.Context, metafieldID string, in MetafieldInput) (*Metafield, error) {
	resp, err := c.doRequest(ctx, "update_metafield", http.MethodPut,
		"/metafields/"+url.PathEscape(metafieldID)+".json", nil, toPayload(in))
	if err != nil {
		return nil, fmt.Errorf("updating metafield: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeMetafield(ctx, resp)
}

func (c *Client) decodeMetafield(ctx context.Context, resp *http.Response) (*Metafield, error) {
	var env metafieldEnvelope
	if err := c.decodeResponse(ctx, resp, &env); err != nil {
		return nil, err
	}
	if env.Metafield == nil {
		return nil, fmt.Errorf("decoding metafield: missing metafield object: %w", ErrUpstream)
	}
	mf, err := toMetafield(*env.Metafield)
	if err != nil {
		return nil, fmt.Errorf("decoding metafield: %w", err)
	}
	return &mf, nil
}

// customerBase is the customer resource path without a format suffix.
func customerBase(customerID string) string {
	return "/customers/" + url.PathEscape(customerID)
}

// customerIDValue sends numeric IDs as JSON numbers, which is what Shopify
// returns and expects.
func customerIDValue(id string) any {
	if _, err := strconv.ParseUint(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

func toPayload(in MetafieldInput) metafieldPayload {
	var p metafieldPayload
	p.Metafield.Namespace = in.Namespace
	p.Metafield.Key = in.Key
	p.Metafield.Value = in.Value
	p.Metafield.Type = string(in.Type)
	return p
}

func toMetafield(m shopifyMetafield) (Metafield, error) {
	value, err := metafieldValue(m.Value)
	if err != nil {
		return Metafield{}, err
	}
	var updatedAt time.Time
	if m.UpdatedAt != "" {
		if updatedAt, err = time.Parse(time.RFC3339, m.UpdatedAt); err != nil {
			return Metafield{}, fmt.Errorf("parsing time %q: %w", m.UpdatedAt, err)
		}
	}
	return Metafield{
		ID:        m.ID.String(),
		Namespace: m.Namespace,
		Key:       m.Key,
		Value:     value,
		Type:      MetafieldType(m.Type),
		UpdatedAt: updatedAt,
	}, nil
}

// metafieldValue normalizes the value member: Shopify returns strings for
// most types but bare numbers and booleans for some.
func metafieldValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decoding value: %w", err)
		}
		return s, nil
	}
	return string(trimmed), nil
}

// parseLinkHeader extracts the page_info cursor of the rel="next" link.
func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}

	for raw := range strings.SplitSeq(header, ",") {
		part := strings.TrimSpace(raw)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}

		linkURL, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		if pageInfo := linkURL.Query().Get("page_info"); pageInfo != "" {
			return pageInfo
		}
	}
	return ""
}

// errorDetail renders the "errors" member of a failed response. Shopify uses
// a string, a list or a field→messages object there.
func errorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return ""
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Errors) == 0 {
		return strings.TrimSpace(string(data))
	}
	var s string
	if err := json.Unmarshal(env.Errors, &s); err == nil {
		return s
	}
	return string(env.Errors)
}

func upstreamErrorFromResponse(resp *http.Response, kind UpstreamErrorKind, detail string, cause error) *UpstreamError {
	return &UpstreamError{
		Kind:       kind,
		Status:     resp.StatusCode,
		RetryAfter: strings.TrimSpace(resp.Header.Get("Retry-After")),
		Detail:     detail,
		cause:      cause,
	}
}

// Compile-time interface check
var _ Service = (*Client)(nil)
