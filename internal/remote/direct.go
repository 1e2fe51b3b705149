package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the remote table's REST surface.
const DefaultBaseURL = "https://api.airtable.com/v0"

// DirectClient talks to the remote table with a caller-held bearer key. The
// key is read once at construction; rotation requires a restart.
type DirectClient struct {
	httpClient *resty.Client
	baseURL    string
	baseID     string
}

// NewDirectClient creates a DirectClient for one base. baseURL falls back to
// the public REST surface when empty.
func NewDirectClient(baseURL, baseID, apiKey string) *DirectClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")

	return &DirectClient{
		httpClient: client,
		baseURL:    baseURL,
		baseID:     baseID,
	}
}

func (c *DirectClient) List(ctx context.Context, table string, opts ListOptions) (ListResult, error) {
	var result ListResult
	res, err := c.httpClient.R().
		SetContext(ctx).
		Get(requestURL(c.baseURL, c.baseID, table, "", listQuery(opts)))
	if err != nil {
		return result, &TransientError{Err: fmt.Errorf("client.R().Get > %w", err)}
	}
	if err := classifyStatus(res.StatusCode(), string(res.Body())); err != nil {
		return result, err
	}
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return result, fmt.Errorf("json.Unmarshal(list response) > %w", err)
	}
	return result, nil
}

func (c *DirectClient) Get(ctx context.Context, table, id string) (Record, error) {
	var record Record
	res, err := c.httpClient.R().
		SetContext(ctx).
		Get(requestURL(c.baseURL, c.baseID, table, id, nil))
	if err != nil {
		return record, &TransientError{Err: fmt.Errorf("client.R().Get > %w", err)}
	}
	if err := classifyStatus(res.StatusCode(), string(res.Body())); err != nil {
		return record, err
	}
	if err := json.Unmarshal(res.Body(), &record); err != nil {
		return record, fmt.Errorf("json.Unmarshal(record) > %w", err)
	}
	return record, nil
}

func (c *DirectClient) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	return c.write(ctx, "POST", requestURL(c.baseURL, c.baseID, table, "", nil), fields)
}

func (c *DirectClient) Update(ctx context.Context, table, id string, fields map[string]any) (Record, error) {
	return c.write(ctx, "PATCH", requestURL(c.baseURL, c.baseID, table, id, nil), fields)
}

func (c *DirectClient) write(ctx context.Context, method, fullURL string, fields map[string]any) (Record, error) {
	var record Record
	request := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"fields": fields})

	var res *resty.Response
	var err error
	switch method {
	case "POST":
		res, err = request.Post(fullURL)
	default:
		res, err = request.Patch(fullURL)
	}
	if err != nil {
		return record, &TransientError{Err: fmt.Errorf("client.R().%s > %w", method, err)}
	}
	if err := classifyStatus(res.StatusCode(), string(res.Body())); err != nil {
		return record, err
	}
	if err := json.Unmarshal(res.Body(), &record); err != nil {
		return record, fmt.Errorf("json.Unmarshal(record) > %w", err)
	}
	return record, nil
}

// requestURL builds <base>/<baseID>/<table>[/<id>][?query]. Both transports
// address rows by the same URL; the proxy simply receives it in the body.
func requestURL(baseURL, baseID, table, id string, query url.Values) string {
	u := baseURL + "/" + url.PathEscape(baseID) + "/" + url.PathEscape(table)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func listQuery(opts ListOptions) url.Values {
	query := url.Values{}
	if opts.FilterFormula != "" {
		query.Set("filterByFormula", opts.FilterFormula)
	}
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.Offset != "" {
		query.Set("offset", opts.Offset)
	}
	if opts.SortField != "" {
		query.Set("sort[0][field]", opts.SortField)
		direction := "asc"
		if opts.SortDesc {
			direction = "desc"
		}
		query.Set("sort[0][direction]", direction)
	}
	return query
}
