package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxAttempts     = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second

	// DivergenceHeader is set by the differential proxy when fan-out
	// targets disagreed on a response.
	DivergenceHeader = "X-Fanout-Divergence"
)

// RetryPolicy bounds transport-level retries. A well-formed JSON-RPC error
// response is a valid result and is never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

// Client issues JSON-RPC 2.0 calls over HTTP(S). It is stateless between
// calls except for connection pooling and monotonic request id assignment.
// Safe for concurrent use.
type Client struct {
	log     logrus.FieldLogger
	timeout time.Duration
	retry   RetryPolicy
	nextID  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewClient creates a new JSON-RPC client.
func NewClient(log logrus.FieldLogger, timeout time.Duration, retry RetryPolicy) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}

	if retry.InitialInterval <= 0 {
		retry.InitialInterval = defaultInitialInterval
	}

	if retry.MaxInterval <= 0 {
		retry.MaxInterval = defaultMaxInterval
	}

	return &Client{
		log:     log.WithField("component", "rpc_client"),
		timeout: timeout,
		retry:   retry,
		clients: make(map[string]*http.Client),
	}
}

// Call invokes method with params against endpoint. Transport failures are
// retried with exponential backoff and jitter up to the configured attempt
// bound; a response carrying a JSON-RPC error object is returned as a valid,
// non-retryable result.
func (c *Client) Call(ctx context.Context, endpoint *Endpoint, method string, params any) (*Response, error) {
	id := c.nextID.Add(1)

	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(&Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpClient, err := c.clientFor(endpoint)
	if err != nil {
		return nil, fmt.Errorf("building http client for %s: %w", endpoint.Name, err)
	}

	var (
		resp    *Response
		attempt int
	)

	policy := backoff.WithContext(c.newBackOff(), ctx)

	err = backoff.Retry(func() error {
		attempt++

		r, callErr := c.doCall(ctx, httpClient, endpoint, body)
		if callErr != nil {
			if IsTransportError(callErr) {
				c.log.WithFields(logrus.Fields{
					"endpoint": endpoint.Name,
					"method":   method,
					"attempt":  attempt,
				}).WithError(callErr).Debug("transport failure, will retry")

				return callErr
			}

			return backoff.Permanent(callErr)
		}

		resp = r

		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint.Name,
		"method":   method,
		"id":       id,
		"attempts": attempt,
	}).Debug("call complete")

	return resp, nil
}

// doCall performs a single HTTP round trip.
func (c *Client) doCall(ctx context.Context, httpClient *http.Client, endpoint *Endpoint, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	httpResp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint.Name, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	// 5xx is a transport-level failure; the node never produced a JSON-RPC
	// response we can judge.
	if httpResp.StatusCode >= 500 {
		return nil, &TransportError{
			Endpoint: endpoint.Name,
			Err:      fmt.Errorf("http status %d", httpResp.StatusCode),
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d from %s", httpResp.StatusCode, endpoint.Name)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint.Name, Err: fmt.Errorf("reading body: %w", err)}
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &TransportError{Endpoint: endpoint.Name, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if resp.Result == nil && resp.Error == nil {
		return nil, &TransportError{Endpoint: endpoint.Name, Err: fmt.Errorf("response carries neither result nor error")}
	}

	resp.Divergence = httpResp.Header.Get(DivergenceHeader)

	return &resp, nil
}

// clientFor returns the pooled HTTP client for an endpoint, creating it on
// first use. Endpoints with TLS material get a dedicated transport.
func (c *Client) clientFor(endpoint *Endpoint) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[endpoint.Name]; ok {
		return client, nil
	}

	client := &http.Client{}

	if endpoint.TLS != nil {
		tlsConfig, err := buildTLSConfig(endpoint.TLS)
		if err != nil {
			return nil, err
		}

		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	c.clients[endpoint.Name] = client

	return client, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval

	return backoff.WithMaxRetries(bo, uint64(c.retry.MaxAttempts-1)) //nolint:gosec // attempt bound is a small positive int
}

// buildTLSConfig assembles client TLS material for an endpoint.
func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // G402: explicit opt-in for test backends with self-signed certs
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parsing CA certificate %s", cfg.CAFile)
		}

		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
