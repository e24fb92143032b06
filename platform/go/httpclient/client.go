// Package httpclient wraps a retrying HTTP client with logging and body size
// limits for calls made by source plugins and the auth client.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single attempt when the caller sets no deadline.
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum response body size (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout            time.Duration
	RetryMax           int
	RetryWaitMin       time.Duration
	RetryWaitMax       time.Duration
	InsecureSkipVerify bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		RetryMax:     1,
		RetryWaitMin: 50 * time.Millisecond,
		RetryWaitMax: 500 * time.Millisecond,
	}
}

// Client is a retrying HTTP client.
type Client struct {
	client    *retryablehttp.Client
	transport *http.Transport
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // per-source opt-out
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = zapLeveled{logger: logger.Named("httpclient")}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{client: rc, transport: transport}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into out.
func (r Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do executes req and reads the body with a size limit.
func (c *Client) Do(ctx context.Context, req *http.Request) (Response, error) {
	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(rreq)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxResponseSize {
		return Response{}, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return Response{}, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Get issues a GET with the provided headers.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return c.Do(ctx, req)
}

// PostJSON sends in as JSON and returns the raw response.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in any) (Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}

// StandardClient returns an *http.Client backed by the retrying transport.
func (c *Client) StandardClient() *http.Client {
	return c.client.StandardClient()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

type zapLeveled struct {
	logger *zap.Logger
}

func (z zapLeveled) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Errorw(msg, keysAndValues...)
}

func (z zapLeveled) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (z zapLeveled) Debug(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (z zapLeveled) Warn(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Warnw(msg, keysAndValues...)
}

// Pair holds one client that verifies TLS certificates and one that does not.
type Pair struct {
	Secure   *Client
	Insecure *Client
}

// NewPair builds both clients from cfg.
func NewPair(cfg Config, logger *zap.Logger) *Pair {
	insecure := cfg
	insecure.InsecureSkipVerify = true
	cfg.InsecureSkipVerify = false
	return &Pair{Secure: New(cfg, logger), Insecure: New(insecure, logger)}
}

// For returns the client matching the TLS verification policy.
func (p *Pair) For(verify bool) *Client {
	if verify {
		return p.Secure
	}
	return p.Insecure
}

// Close releases idle connections of both clients.
func (p *Pair) Close() {
	p.Secure.Close()
	p.Insecure.Close()
}
