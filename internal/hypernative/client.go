package hypernative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/circuitbreaker"
	"github.com/mbd888/safeshield/internal/metrics"
	"github.com/mbd888/safeshield/internal/retry"
	"github.com/mbd888/safeshield/internal/traces"
)

// Source is the metrics and breaker key for the assessment API.
const Source = "hypernative"

const assessmentPath = "/safe/transaction/assessment"

// ErrUnavailable is returned while the circuit to the vendor is open.
var ErrUnavailable = errors.New("hypernative: assessment API unavailable")

// TxRequest describes the Safe transaction to assess.
type TxRequest struct {
	ChainID     string
	SafeAddress string
	Transaction analysis.Transaction
}

type assessmentRequest struct {
	Chain       string `json:"chain"`
	SafeAddress string `json:"safeAddress"`
	To          string `json:"toAddress"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	Operation   uint8  `json:"operation"`
}

// StatusError is an HTTP failure from the vendor.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hypernative: status %d: %s", e.Status, e.Body)
}

// Client calls the assessment API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	retry      retry.Policy
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		retry:      retry.Policy{MaxAttempts: 2, BaseDelay: 250 * time.Millisecond},
	}
}

// WithHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CircuitState reports whether calls to the vendor are currently allowed.
func (c *Client) CircuitState() circuitbreaker.State {
	return c.breaker.State(Source)
}

// Assess submits the transaction. Vendor failure envelopes come back as
// *Failure with a nil error; transport and HTTP failures are errors. A
// rejected token yields ErrNotAuthenticated.
func (c *Client) Assess(ctx context.Context, tok *Token, req TxRequest) (Assessment, error) {
	if !tok.Valid() {
		return nil, ErrNotAuthenticated
	}

	ctx, span := traces.StartSpan(ctx, "hypernative.Assess",
		traces.ChainID(req.ChainID), traces.SafeAddr(req.SafeAddress), traces.Source(Source))
	defer span.End()

	payload, err := json.Marshal(assessmentRequest{
		Chain:       req.ChainID,
		SafeAddress: analysis.Checksum(req.SafeAddress),
		To:          analysis.Checksum(req.Transaction.To),
		Value:       req.Transaction.Value,
		Input:       req.Transaction.Data,
		Operation:   uint8(req.Transaction.Operation),
	})
	if err != nil {
		return nil, fmt.Errorf("hypernative: marshal request: %w", err)
	}

	done := metrics.ObserveSource(Source)
	var result Assessment
	var callErr error
	err = c.breaker.Execute(ctx, Source, func(ctx context.Context) error {
		result, callErr = retry.Value(ctx, c.retry, func() (Assessment, error) {
			return c.once(ctx, tok, payload)
		})
		var statusErr *StatusError
		if errors.Is(callErr, ErrNotAuthenticated) ||
			(errors.As(callErr, &statusErr) && statusErr.Status < 500 && statusErr.Status != http.StatusTooManyRequests) {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	done(err)

	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = ErrUnavailable
	}
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	return result, nil
}

func (c *Client) once(ctx context.Context, tok *Token, payload []byte) (Assessment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+assessmentPath, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("hypernative: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", tok.Authorization())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("hypernative: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("hypernative: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.Permanent(ErrNotAuthenticated)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	case resp.StatusCode >= 400:
		// Validation errors usually arrive as a failure envelope.
		if a, derr := DecodeResponse(body); derr == nil {
			if f, ok := a.(*Failure); ok {
				return f, nil
			}
		}
		return nil, retry.Permanent(&StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	a, err := DecodeResponse(body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return a, nil
}
