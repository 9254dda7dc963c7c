package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"forms2xml/internal/api"
	"forms2xml/internal/codec"
	"forms2xml/internal/gateway"
	"forms2xml/internal/logging"
)

const (
	defaultRetryMax = 3
	sniffLen        = 1024
	maxErrorBody    = 4096
)

// Client talks to a running gateway.
type Client struct {
	base   *url.URL
	token  string
	http   *retryablehttp.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates /api requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithRetryMax bounds transport retries.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.http.RetryMax = max(n, 0)
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a client for the gateway at baseURL. A bare host:port is
// treated as http.
func New(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("gateway address required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse gateway address: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.CheckRetry = retryTransportErrors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{base: base, http: rc, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "client")
	c.http.Logger = c.logger
	return c, nil
}

// retryTransportErrors retries only when no response arrived. Gateway
// failures are deterministic, so a 500 is returned as is.
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// ResponseError is a non-success gateway answer.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("gateway returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, body)
}

// Result describes a completed conversion.
type Result struct {
	Status      int
	ContentType string
	// Location is set when the gateway wrote the output to a server-side
	// destination.
	Location  string
	RequestID string
	Bytes     int64
}

// SniffMediaType reports the content type a module body should be posted
// with: XML when it starts with an XML declaration, binary otherwise.
func SniffMediaType(head []byte) string {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	if bytes.HasPrefix(bytes.TrimSpace(head), []byte("<?xml")) {
		return codec.MediaTypeXML
	}
	return codec.MediaTypeBinary
}

// Submit posts body inline and copies the converted module to w. When dst is
// set the gateway writes the result there instead and w receives nothing.
func (c *Client) Submit(ctx context.Context, body []byte, dst string, w io.Writer) (Result, error) {
	if len(body) == 0 {
		return Result{}, errors.New("empty module")
	}
	mediaType := SniffMediaType(body)
	query := url.Values{}
	if dst != "" {
		query.Set("dst", dst)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/", query), body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Accept", "*/*")

	c.logger.Debug("submitting module",
		logging.String("content_type", mediaType),
		logging.Int("bytes", len(body)),
	)
	return c.convert(req, w)
}

// ConvertPath asks the gateway to convert a file it can read directly.
func (c *Client) ConvertPath(ctx context.Context, src, dst string, w io.Writer) (Result, error) {
	if strings.TrimSpace(src) == "" {
		return Result{}, errors.New("source path required")
	}
	query := url.Values{}
	query.Set("src", src)
	if dst != "" {
		query.Set("dst", dst)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/", query), nil)
	if err != nil {
		return Result{}, err
	}
	return c.convert(req, w)
}

func (c *Client) convert(req *retryablehttp.Request, w io.Writer) (Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	result := Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Location:    resp.Header.Get("Location"),
		RequestID:   resp.Header.Get(gateway.RequestIDHeader),
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result, readResponseError(resp)
	}
	if resp.StatusCode == http.StatusCreated || w == nil {
		return result, nil
	}
	n, err := io.Copy(w, resp.Body)
	result.Bytes = n
	if err != nil {
		return result, fmt.Errorf("read converted module: %w", err)
	}
	return result, nil
}

// Status fetches the gateway status report.
func (c *Client) Status(ctx context.Context) (api.GatewayStatus, error) {
	var status api.GatewayStatus
	err := c.getJSON(ctx, "/api/status", nil, &status)
	return status, err
}

// Conversions fetches the most recent journaled conversions.
func (c *Client) Conversions(ctx context.Context, limit int) ([]api.Conversion, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp api.ConversionListResponse
	if err := c.getJSON(ctx, "/api/conversions", query, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readResponseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func readResponseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := string(body)
	var payload struct {
		Error string `json:"error"`
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	return &ResponseError{Status: resp.StatusCode, Body: message}
}
