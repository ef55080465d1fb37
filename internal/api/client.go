package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "DUPEGRAPH_HTTP_TIMEOUT"
	apiTokenEnvKey     = "DUPEGRAPH_API_TOKEN"
)

// Client is a simple HTTP client for the dupegraph API.
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken: strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) RegisterFiles(ctx context.Context, hashes []string) (RegisterFilesResponse, error) {
	var resp RegisterFilesResponse
	err := c.do(ctx, http.MethodPost, "/v1/files", nil, RegisterFilesRequest{Hashes: hashes}, &resp)
	return resp, err
}

func (c *Client) GetFile(ctx context.Context, hash string) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(hash), nil, nil, &resp)
	return resp, err
}

// PendingSearch lists up to limit files flagged needs-search.
func (c *Client) PendingSearch(ctx context.Context, limit int) (PendingSearchResponse, error) {
	var resp PendingSearchResponse
	err := c.do(ctx, http.MethodGet, "/v1/search/pending", limitQuery(limit), nil, &resp)
	return resp, err
}

func (c *Client) CompleteSearch(ctx context.Context, hashes []string) (SearchCompleteResponse, error) {
	var resp SearchCompleteResponse
	err := c.do(ctx, http.MethodPost, "/v1/search/complete", nil, SearchCompleteRequest{Hashes: hashes}, &resp)
	return resp, err
}

// ApplyDecision sends one decision. Destructive actions are refused by the
// server unless confirm is set.
func (c *Client) ApplyDecision(ctx context.Context, req DecisionRequest, confirm bool) (DecisionResponse, error) {
	var resp DecisionResponse
	header := http.Header{}
	if confirm {
		header.Set("X-Confirm", "true")
	}
	err := c.doWithHeader(ctx, http.MethodPost, "/v1/decisions", nil, req, &resp, header)
	return resp, err
}

func (c *Client) ListDecisions(ctx context.Context, limit int) ([]DecisionLogEntry, error) {
	var resp []DecisionLogEntry
	err := c.do(ctx, http.MethodGet, "/v1/decisions", limitQuery(limit), nil, &resp)
	return resp, err
}

func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/v1/potentials", nil, req, &resp)
	return resp, err
}

func (c *Client) NextPotentials(ctx context.Context, limit int) ([]PotentialPair, error) {
	var resp []PotentialPair
	err := c.do(ctx, http.MethodGet, "/v1/potentials/next", limitQuery(limit), nil, &resp)
	return resp, err
}

func (c *Client) DecidePair(ctx context.Context, req PairDecisionRequest) (DecisionResponse, error) {
	var resp DecisionResponse
	err := c.do(ctx, http.MethodPost, "/v1/potentials/decide", nil, req, &resp)
	return resp, err
}

// PurgePotentials drops every queued pair that involves hash.
func (c *Client) PurgePotentials(ctx context.Context, hash string) (DecisionResponse, error) {
	var resp DecisionResponse
	header := http.Header{}
	header.Set("X-Confirm", "true")
	err := c.doWithHeader(ctx, http.MethodDelete, "/v1/potentials/"+url.PathEscape(hash), nil, nil, &resp, header)
	return resp, err
}

func (c *Client) ResetSearch(ctx context.Context, hash string) (DecisionResponse, error) {
	var resp DecisionResponse
	err := c.do(ctx, http.MethodPost, "/v1/potentials/"+url.PathEscape(hash)+"/reset", nil, nil, &resp)
	return resp, err
}

// Export streams NDJSON export to a writer.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/export", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.doWithHeader(ctx, method, path, query, body, out, nil)
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, query url.Values, body any, out any, header http.Header) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
