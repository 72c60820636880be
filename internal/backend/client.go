// Package backend is the HTTP client for the Safe Shield analysis API, which
// returns recipient and contract findings for a Safe transaction.
package backend

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
	"strings"
	"time"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/circuitbreaker"
	"github.com/mbd888/safeshield/internal/logging"
	"github.com/mbd888/safeshield/internal/metrics"
	"github.com/mbd888/safeshield/internal/retry"
	"github.com/mbd888/safeshield/internal/traces"
)

// Source is the metrics and breaker key for this client.
const Source = "backend"

const maxResponseBytes = 4 << 20

// Config holds the connection settings for the analysis API.
type Config struct {
	BaseURL string // e.g. "https://safe-client.safe.global"
	APIKey  string // optional bearer token
	Timeout time.Duration
	Retry   retry.Policy
}

// Client calls the analysis API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewClient creates a client. Zero timeouts and retry policies get defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CircuitState reports whether calls to the API are currently allowed.
func (c *Client) CircuitState() circuitbreaker.State {
	return c.breaker.State(Source)
}

// APIError is a non-2xx answer from the analysis API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// Temporary reports whether the request is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// ErrUnavailable is returned while the circuit to the API is open.
var ErrUnavailable = errors.New("backend: analysis API unavailable")

type recipientRequest struct {
	Recipients []string `json:"recipients"`
}

// AnalyzeRecipients returns per-recipient findings for a Safe.
func (c *Client) AnalyzeRecipients(ctx context.Context, chainID, safe string, recipients []string) (analysis.RecipientResults, error) {
	ctx, span := traces.StartSpan(ctx, "backend.AnalyzeRecipients",
		traces.ChainID(chainID), traces.SafeAddr(safe), traces.AddressCount(len(recipients)))
	defer span.End()

	body := recipientRequest{Recipients: analysis.ChecksumAll(recipients)}
	var out analysis.RecipientResults
	err := c.post(ctx, shieldPath(chainID, safe, "recipient"), body, &out)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	if out == nil {
		out = analysis.RecipientResults{}
	}
	return out, nil
}

// AnalyzeContract returns per-contract findings for the transaction target
// and any contracts it touches.
func (c *Client) AnalyzeContract(ctx context.Context, chainID, safe string, tx analysis.Transaction) (analysis.ContractResults, error) {
	ctx, span := traces.StartSpan(ctx, "backend.AnalyzeContract",
		traces.ChainID(chainID), traces.SafeAddr(safe))
	defer span.End()

	var out analysis.ContractResults
	err := c.post(ctx, shieldPath(chainID, safe, "contract"), tx, &out)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	if out == nil {
		out = analysis.ContractResults{}
	}
	return out, nil
}

func shieldPath(chainID, safe, kind string) string {
	return "/v1/chains/" + url.PathEscape(chainID) +
		"/safes/" + url.PathEscape(analysis.Checksum(safe)) +
		"/shield/" + kind
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: marshal request: %w", err)
	}

	done := metrics.ObserveSource(Source)
	var callErr error
	err = c.breaker.Execute(ctx, Source, func(ctx context.Context) error {
		callErr = c.cfg.Retry.Do(ctx, func() error {
			return c.once(ctx, path, payload, out)
		})
		// Client errors say nothing about the health of the API.
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && !apiErr.Temporary() {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	done(err)

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrUnavailable
	}
	if err != nil {
		logging.L(ctx).Warn("backend request failed", "path", path, "error", err)
	}
	return err
}

func (c *Client) once(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("backend: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if reqID := logging.RequestID(ctx); reqID != "" {
		req.Header.Set(logging.RequestIDHeader, reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := decodeAPIError(resp.StatusCode, respBody)
		if apiErr.Temporary() {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return retry.Permanent(fmt.Errorf("backend: decode response: %w", err))
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Error
		if apiErr.Code == "" {
			apiErr.Code = payload.Code
		}
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
