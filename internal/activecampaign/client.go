package activecampaign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hri/contact-sync/internal/pkg/httpretry"
)

// Client is the ActiveCampaign API v3 client
type Client struct {
	baseURL        string
	apiToken       string
	bulkImportPath string
	httpClient     httpretry.HTTPDoer
}

// NewClient creates a new ActiveCampaign API client. Every attempt, including
// retries, waits on cfg.Limiter when one is set.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	path := cfg.BulkImportPath
	if path == "" {
		path = "/import/bulk_import"
	}

	var opts []httpretry.Option
	if cfg.Limiter != nil {
		opts = append(opts, httpretry.WithLimiter(cfg.Limiter))
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:       cfg.APIToken,
		bulkImportPath: path,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: timeout,
		}, cfg.MaxRetries, opts...),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request and returns the body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Token", c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if outcome := httpretry.Classify(resp.StatusCode); outcome != httpretry.OutcomeSuccess {
		return respBody, &APIError{
			Method:     method,
			Path:       endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 512),
			Outcome:    outcome,
		}
	}

	return respBody, nil
}

// ========== Contact Methods ==========

// ListContacts retrieves one page of contacts with the given status
func (c *Client) ListContacts(ctx context.Context, status Status, limit, offset int) (*ContactListResponse, error) {
	params := url.Values{}
	params.Set("status", strconv.Itoa(int(status)))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	respBody, err := c.doRequest(ctx, http.MethodGet, "/contacts?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var response ContactListResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse contact list: %w", err)
	}
	return &response, nil
}

// CountContacts returns meta.total for the given status using a one-row page
func (c *Client) CountContacts(ctx context.Context, status Status) (int, error) {
	resp, err := c.ListContacts(ctx, status, 1, 0)
	if err != nil {
		return 0, err
	}
	return int(resp.Meta.Total), nil
}

// GetContact retrieves a single contact with its custom field values
func (c *Client) GetContact(ctx context.Context, contactID string) (*ContactDetailResponse, error) {
	endpoint := "/contacts/" + url.PathEscape(contactID)

	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var response ContactDetailResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse contact %s: %w", contactID, err)
	}
	return &response, nil
}

// ========== Import Methods ==========

// BulkImport posts pre-encoded contacts (a JSON array) to the bulk import endpoint.
// The call mutates remote state and is not idempotent, so it is only
// retried when throttled.
func (c *Client) BulkImport(ctx context.Context, contacts json.RawMessage) (*BulkImportResponse, error) {
	body, err := json.Marshal(BulkImportRequest{Contacts: contacts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bulk import body: %w", err)
	}

	respBody, err := c.doRequest(httpretry.AtMostOnce(ctx), http.MethodPost, c.bulkImportPath, body)
	if err != nil {
		return nil, err
	}

	var response BulkImportResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse bulk import response: %w", err)
	}
	if response.Success != 1 {
		return &response, fmt.Errorf("bulk import rejected: %s", response.Message)
	}
	return &response, nil
}

// IsRetryable reports whether err is a transient failure: a network error,
// a timeout or a retryable HTTP status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Outcome == httpretry.OutcomeRetryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
