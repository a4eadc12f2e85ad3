package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"satellite/logger"
	"satellite/models"
)

// maxErrorBody bounds how much of a failure response is read for decoding.
const maxErrorBody = 1 << 20

const genericErrorMessage = "An error occurred."

// request describes one API call.
type request struct {
	method      string
	path        string
	query       url.Values
	authToken   string
	body        io.Reader
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do executes req and returns the response for a 2xx status. Any other
// status is read, decoded and returned as *APIError with the body closed.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	target := c.endpoint(req.path, req.query)
	log := c.log.WithComponent("api_client").WithFields(logger.Fields{
		"method": req.method,
		"path":   req.path,
	})

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			closeBody(req.body)
			return nil, fmt.Errorf("rate limit wait for %s %s: %w", req.method, req.path, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		closeBody(req.body)
		return nil, fmt.Errorf("build %s %s request: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.authToken != "" {
		httpReq.Header.Set(authTokenHeader, req.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.WithError(err).Warn("api request failed")
		return nil, fmt.Errorf("%s %s: %w", req.method, target, err)
	}
	logger.LogPerformanceEntry(log, "api_client", "api_request", time.Since(start), logger.Fields{
		"status": resp.StatusCode,
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := newAPIError(req.method, target, resp)

	fields := logger.Fields{"status": resp.StatusCode, "url": target}
	// Cancel and bump have been seen answering 500 intermittently; flag it
	// without retrying.
	if resp.StatusCode == http.StatusInternalServerError && (req.method == http.MethodDelete || req.method == http.MethodPost) {
		fields["possible_server_quirk"] = true
	}
	log.WithFields(fields).Warn(apiErr.Message)
	logger.IncrementAPIError()
	c.log.LogMetric("api_client", "api_errors", int64(1), "counter", logger.Fields{"path": req.path})

	return nil, apiErr
}

// closeBody releases a request body that never reached the transport.
func closeBody(body io.Reader) {
	if rc, ok := body.(io.Closer); ok {
		rc.Close()
	}
}

func newAPIError(method, target string, resp *http.Response) *APIError {
	apiErr := &APIError{
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Message:    genericErrorMessage,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return apiErr
	}

	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}
	if body.Message != "" {
		apiErr.Message = body.Message
	}
	for _, e := range body.Errors {
		apiErr.Errors = append(apiErr.Errors, ErrorDetail{Title: e.Title, Detail: e.Detail, Code: e.Code})
	}
	return apiErr
}

// doJSON executes req and decodes a 2xx JSON body into T.
func doJSON[T any](ctx context.Context, c *Client, req request) (T, error) {
	var out T

	resp, err := c.do(ctx, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return out, nil
}
