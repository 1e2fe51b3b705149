package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// ProxyClient routes every call through a single server-side function that
// holds the bearer key. The request body carries the upstream URL and method;
// the proxy returns the upstream JSON verbatim, or {error, status} with an
// HTTP status >= 400.
type ProxyClient struct {
	httpClient *resty.Client
	proxyURL   string
	baseID     string
}

type proxyRequest struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Body   any    `json:"body,omitempty"`
}

type proxyError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// NewProxyClient creates a ProxyClient posting to proxyURL. baseID names the
// upstream base the proxy forwards to.
func NewProxyClient(proxyURL, baseID string) *ProxyClient {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	return &ProxyClient{
		httpClient: client,
		proxyURL:   proxyURL,
		baseID:     baseID,
	}
}

func (c *ProxyClient) List(ctx context.Context, table string, opts ListOptions) (ListResult, error) {
	var result ListResult
	body, err := c.forward(ctx, proxyRequest{
		URL:    requestURL(DefaultBaseURL, c.baseID, table, "", listQuery(opts)),
		Method: "GET",
	})
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("json.Unmarshal(list response) > %w", err)
	}
	return result, nil
}

func (c *ProxyClient) Get(ctx context.Context, table, id string) (Record, error) {
	return c.record(ctx, proxyRequest{
		URL:    requestURL(DefaultBaseURL, c.baseID, table, id, nil),
		Method: "GET",
	})
}

func (c *ProxyClient) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	return c.record(ctx, proxyRequest{
		URL:    requestURL(DefaultBaseURL, c.baseID, table, "", nil),
		Method: "POST",
		Body:   map[string]any{"fields": fields},
	})
}

func (c *ProxyClient) Update(ctx context.Context, table, id string, fields map[string]any) (Record, error) {
	return c.record(ctx, proxyRequest{
		URL:    requestURL(DefaultBaseURL, c.baseID, table, id, nil),
		Method: "PATCH",
		Body:   map[string]any{"fields": fields},
	})
}

func (c *ProxyClient) record(ctx context.Context, req proxyRequest) (Record, error) {
	var record Record
	body, err := c.forward(ctx, req)
	if err != nil {
		return record, err
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return record, fmt.Errorf("json.Unmarshal(record) > %w", err)
	}
	return record, nil
}

func (c *ProxyClient) forward(ctx context.Context, req proxyRequest) ([]byte, error) {
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.proxyURL)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("client.R().Post(proxy) > %w", err)}
	}

	if res.StatusCode() >= 400 {
		// The proxy wraps upstream failures as {error, status}; prefer the
		// upstream status when present so auth failures classify correctly.
		var wrapped proxyError
		status := res.StatusCode()
		message := string(res.Body())
		if err := json.Unmarshal(res.Body(), &wrapped); err == nil && wrapped.Status != 0 {
			status = wrapped.Status
			message = wrapped.Error
		}
		return nil, classifyStatus(status, message)
	}
	return res.Body(), nil
}

// ProxyPath is the conventional mount point of the server-side function.
const ProxyPath = "/functions/airtable-proxy"

// JoinProxyURL resolves the proxy function URL under base.
func JoinProxyURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("url.Parse(%q) > %w", base, err)
	}
	return u.JoinPath(ProxyPath).String(), nil
}
