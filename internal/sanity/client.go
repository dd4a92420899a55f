// Package sanity reads documents from the hosted content store over its
// HTTP query API.
package sanity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/standupsite/site/internal/content"
)

const (
	defaultAPIVersion  = "2024-01-01"
	defaultPerspective = "published"
)

// Options configures a Client
type Options struct {
	ProjectID   string
	Dataset     string
	APIVersion  string // date-based, e.g. 2024-01-01
	Token       string // optional, required for private datasets
	UseCDN      bool
	Perspective string // defaults to published; older API versions show drafts to token holders otherwise
	BaseURL     string // overrides the derived host, used by tests
	HTTPClient  *http.Client
}

// Client is a content store query client
type Client struct {
	queryURL    string
	token       string
	perspective string
	httpClient  *http.Client
}

// NewClient creates a new content store client
func NewClient(opts Options) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if opts.Dataset == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = defaultAPIVersion
	}
	if opts.Perspective == "" {
		opts.Perspective = defaultPerspective
	}

	base := opts.BaseURL
	if base == "" {
		host := "api.sanity.io"
		if opts.UseCDN {
			host = "apicdn.sanity.io"
		}
		base = fmt.Sprintf("https://%s.%s", opts.ProjectID, host)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		queryURL:    fmt.Sprintf("%s/v%s/data/query/%s", base, opts.APIVersion, url.PathEscape(opts.Dataset)),
		token:       opts.Token,
		perspective: opts.Perspective,
		httpClient:  httpClient,
	}, nil
}

// queryResponse is the envelope returned by the query endpoint
type queryResponse struct {
	Ms     int             `json:"ms"`
	Query  string          `json:"query"`
	Result json.RawMessage `json:"result"`
}

// errorResponse is the body returned with non-2xx statuses
type errorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"error"`
}

// APIError is returned when the content store rejects a query
type APIError struct {
	StatusCode  int
	Type        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("content store returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("content store returned %d: %s (%s)", e.StatusCode, e.Description, e.Type)
}

// Fetch runs a query and decodes its result into target. Parameters are
// sent as JSON-encoded $name query values.
func (c *Client) Fetch(ctx context.Context, q content.Query, target any) error {
	values := url.Values{}
	values.Set("query", q.GROQ())
	values.Set("perspective", c.perspective)
	for name, v := range q.Params() {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil {
			apiErr.Type = errResp.Error.Type
			apiErr.Description = errResp.Error.Description
		}
		return apiErr
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	log.Debug().
		Str("kind", q.Type).
		Int("server_ms", qr.Ms).
		Dur("duration", time.Since(start)).
		Msg("content query")

	if target == nil {
		return nil
	}
	if len(qr.Result) == 0 {
		qr.Result = json.RawMessage("null")
	}
	if err := json.Unmarshal(qr.Result, target); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
