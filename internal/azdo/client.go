// Package azdo provides a minimal Azure DevOps REST client for test plans and work items.
package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAPIVersion is sent when no api-version is configured.
	DefaultAPIVersion = "5.0"

	continuationHeader = "x-ms-continuationtoken"
)

// ErrMalformedResponse is returned for 2xx responses missing the data the gate counts.
var ErrMalformedResponse = errors.New("malformed response")

// APIError wraps non-2xx responses.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure devops api error: %s %s: status=%d body=%s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to a single Azure DevOps project.
type Client struct {
	collectionURL string
	project       string
	token         string
	apiVersion    string
	client        *http.Client
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithAPIVersion sets the api-version query parameter.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client rooted at collectionURL (e.g. https://dev.azure.com/contoso).
// The token is sent as the password of HTTP Basic authentication with an empty user.
func NewClient(collectionURL, project, token string, opts ...Option) *Client {
	c := &Client{
		collectionURL: strings.TrimRight(collectionURL, "/"),
		project:       project,
		token:         token,
		apiVersion:    DefaultAPIVersion,
		client:        &http.Client{Timeout: 60 * time.Second},
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListSuites returns every suite of a test plan.
func (c *Client) ListSuites(ctx context.Context, planID int) ([]Suite, error) {
	path := fmt.Sprintf("test/Plans/%d/suites", planID)

	suites, err := listAll[Suite](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list suites of plan %d: %w", planID, err)
	}

	return suites, nil
}

// ListPoints returns every test point of a suite.
func (c *Client) ListPoints(ctx context.Context, planID, suiteID int) ([]TestPoint, error) {
	path := fmt.Sprintf("test/Plans/%d/Suites/%d/points", planID, suiteID)

	points, err := listAll[TestPoint](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list points of plan %d suite %d: %w", planID, suiteID, err)
	}

	return points, nil
}

// QueryWorkItems runs a WIQL query and returns the matching work item references.
func (c *Client) QueryWorkItems(ctx context.Context, query string) ([]WorkItemReference, error) {
	var resp wiqlResult
	if _, err := c.doJSON(ctx, http.MethodPost, "wit/wiql", nil, WiqlRequest{Query: query}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}

	// Link queries return workItemRelations instead of workItems.
	if resp.QueryResultType != "" && resp.QueryResultType != QueryResultWorkItem {
		return nil, fmt.Errorf("failed to query work items: %w: unsupported query result type %q (want a flat %s query)",
			ErrMalformedResponse, resp.QueryResultType, QueryResultWorkItem)
	}

	if resp.WorkItems == nil {
		return nil, fmt.Errorf("failed to query work items: %w: response has no workItems", ErrMalformedResponse)
	}

	return *resp.WorkItems, nil
}

// listAll follows continuation tokens until the service stops returning one.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var (
		items []T
		token string
		seen  = map[string]struct{}{}
	)

	for {
		query := url.Values{}
		if token != "" {
			query.Set("continuationToken", token)
		}

		var page listResponse[T]

		header, err := c.doJSON(ctx, http.MethodGet, path, query, nil, &page)
		if err != nil {
			return nil, err
		}

		if page.Value == nil {
			return nil, fmt.Errorf("%w: response has no value", ErrMalformedResponse)
		}

		items = append(items, *page.Value...)

		token = header.Get(continuationHeader)
		if token == "" {
			return items, nil
		}

		if _, ok := seen[token]; ok {
			return nil, fmt.Errorf("%w: continuation token %q repeated", ErrMalformedResponse, token)
		}

		seen[token] = struct{}{}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	if query == nil {
		query = url.Values{}
	}

	query.Set("api-version", c.apiVersion)
	endpoint := c.endpoint(path) + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth("", c.token)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("azure devops request",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)

		return nil, &APIError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
		}
	}

	return resp.Header, nil
}

func (c *Client) endpoint(path string) string {
	return c.collectionURL + "/" + url.PathEscape(c.project) + "/_apis/" + strings.TrimLeft(path, "/")
}
