package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeForm   = "application/x-www-form-urlencoded"
)

// Config holds HTTP client configuration
type Config struct {
	Timeout        time.Duration
	DefaultHeaders map[string]string
}

// DefaultConfig returns a default HTTP client configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		DefaultHeaders: make(map[string]string),
	}
}

// Client wraps http.Client with common functionality. Every request is a single
// attempt; callers that want a retry must issue a new request.
type Client struct {
	httpClient *http.Client
	config     *Config
}

// New creates a new HTTP client with the given configuration
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// HTTPClient exposes the underlying *http.Client for oauth2, which drives its own requests
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
}

// Response represents an HTTP response with its body already read
type Response struct {
	*http.Response
	BodyBytes []byte
}

// JSON unmarshals the response body into the provided interface
func (r *Response) JSON(v interface{}) error {
	if len(r.BodyBytes) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.BodyBytes, v)
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.BodyBytes)
}

// StatusError is returned alongside the Response when the server answers with a 4xx or 5xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d - %s", e.StatusCode, e.Body)
}

// Do performs a single HTTP request. The body is read and closed before returning.
// A non-nil Response is returned together with a *StatusError for 4xx/5xx answers.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		switch body := req.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			jsonBytes, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(jsonBytes)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		Response:  httpResp,
		BodyBytes: bodyBytes,
	}

	if httpResp.StatusCode >= 400 {
		return resp, &StatusError{StatusCode: httpResp.StatusCode, Body: string(bodyBytes)}
	}

	return resp, nil
}

// PostForm performs a POST request with an application/x-www-form-urlencoded body
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) (*Response, error) {
	if headers == nil {
		headers = make(map[string]string)
	}
	headers[contentTypeHeader] = contentTypeForm

	return c.Do(ctx, &Request{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: headers,
		Body:    form.Encode(),
	})
}
