package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lightbitslabs/lightos-driver/pkg/config"
	"github.com/lightbitslabs/lightos-driver/pkg/log"
	"github.com/lightbitslabs/lightos-driver/pkg/metrics"
)

const apiBasePath = "/api/v2"

var (
	// ErrNoEndpoints is returned by New when the configuration carries no
	// cluster API addresses.
	ErrNoEndpoints = errors.New("no cluster API endpoints configured")

	// ErrUnauthorized is returned when the cluster rejects the configured
	// credentials.
	ErrUnauthorized = errors.New("cluster rejected the configured credentials")

	// ErrNotFound is returned by mutating calls whose target resource is
	// absent cluster-side. Read calls report absence as a boolean instead.
	ErrNotFound = errors.New("resource not found on cluster")

	// ErrStaleETag is returned when a conditional update carries a
	// fingerprint that no longer matches the cluster's current state.
	ErrStaleETag = errors.New("etag does not match current cluster state")
)

// APIError carries the raw status of a cluster response that maps to no
// domain outcome. Higher layers propagate it for diagnostics.
type APIError struct {
	Command string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cluster command %s failed with status %d", e.Command, e.Status)
	}
	return fmt.Sprintf("cluster command %s failed with status %d: %s", e.Command, e.Status, e.Message)
}

// Client is the command channel to the cluster API. Every call tries the
// configured endpoints in order until one responds; a single pass over
// the endpoint set, no retries beyond that. All calls are bounded by the
// configured API service timeout on top of the caller's context.
type Client struct {
	endpoints []string // host:port, tried in order
	token     string
	timeout   time.Duration
	httpc     *http.Client
	logger    zerolog.Logger
}

// New builds a client from configuration. An empty address list is
// rejected here, before any remote call is possible.
func New(cfg *config.Config) (*Client, error) {
	if len(cfg.APIAddresses) == 0 {
		return nil, ErrNoEndpoints
	}

	endpoints := make([]string, 0, len(cfg.APIAddresses))
	for _, addr := range cfg.APIAddresses {
		endpoints = append(endpoints, fmt.Sprintf("%s:%d", addr, cfg.APIPort))
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.SSLVerify, //nolint:gosec // governed by the ssl_verify config flag
		},
	}

	return &Client{
		endpoints: endpoints,
		token:     cfg.JWT,
		timeout:   cfg.APIServiceTimeout,
		httpc:     &http.Client{Transport: transport},
		logger:    log.WithComponent("cluster"),
	}, nil
}

// Endpoints returns the endpoint list in failover order.
func (c *Client) Endpoints() []string {
	out := make([]string, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// do sends one command to the first endpoint that answers and returns the
// raw status and body. Transport failures fall through to the next
// endpoint; HTTP responses of any status are returned as-is for the
// typed wrappers to interpret. do never interprets status codes itself.
func (c *Client) do(ctx context.Context, command, method, path string, query url.Values, body interface{}, etag string) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode %s request: %w", command, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.New().String()
	start := time.Now()

	var lastErr error
	for i, endpoint := range c.endpoints {
		u := url.URL{
			Scheme: "https",
			Host:   endpoint,
			Path:   apiBasePath + path,
		}
		if query != nil {
			u.RawQuery = query.Encode()
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to build %s request: %w", command, err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if etag != "" {
			req.Header.Set("If-Match", etag)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().
				Str("command", command).
				Str("endpoint", endpoint).
				Err(err).
				Msg("cluster API endpoint unreachable")
			if i < len(c.endpoints)-1 {
				metrics.EndpointFailovers.Inc()
			}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read %s response: %w", command, err)
		}

		metrics.APIRequestsTotal.WithLabelValues(command, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.APIRequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())

		c.logger.Debug().
			Str("command", command).
			Str("endpoint", endpoint).
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Msg("cluster command completed")

		return resp.StatusCode, respBody, nil
	}

	return 0, nil, fmt.Errorf("all %d cluster API endpoints unreachable for %s: %w",
		len(c.endpoints), command, lastErr)
}

// decode unmarshals a response payload into out.
func decode(command string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", command, err)
	}
	return nil
}

// unexpected maps a status the typed wrappers do not handle into an
// error, folding 401 into ErrUnauthorized.
func unexpected(command string, status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", command, ErrUnauthorized)
	}
	return &APIError{Command: command, Status: status, Message: string(body)}
}
