package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/hypernative"
)

// Config holds the configuration for connecting to a Safe Shield API.
type Config struct {
	APIURL    string // Base URL, e.g. "http://localhost:8080"
	ChainID   string // Default chain when a tool call omits chain_id
	SessionID string // Optional Hypernative session, enables threat analysis
}

// ShieldClient is a pure HTTP client for the Safe Shield API.
type ShieldClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewShieldClient creates a new client for the Safe Shield API.
func NewShieldClient(cfg Config) *ShieldClient {
	if cfg.ChainID == "" {
		cfg.ChainID = "1"
	}
	return &ShieldClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *ShieldClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.SessionID != "" {
		req.Header.Set(hypernative.SessionHeader, c.cfg.SessionID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

func (c *ShieldClient) chain(chainID string) string {
	if chainID == "" {
		return c.cfg.ChainID
	}
	return chainID
}

func (c *ShieldClient) shieldPath(chainID, safe, op string) string {
	return "/v1/chains/" + url.PathEscape(c.chain(chainID)) + "/safes/" + url.PathEscape(safe) + "/shield/" + op
}

// AnalyzeRecipients runs recipient analysis for a Safe.
func (c *ShieldClient) AnalyzeRecipients(ctx context.Context, chainID, safe string, recipients, ownedSafes []string) (json.RawMessage, error) {
	body := map[string]any{"recipients": recipients}
	if len(ownedSafes) > 0 {
		body["ownedSafes"] = ownedSafes
	}
	return c.doRequest(ctx, http.MethodPost, c.shieldPath(chainID, safe, "recipients"), nil, body)
}

// AnalyzeContract runs contract analysis for one transaction.
func (c *ShieldClient) AnalyzeContract(ctx context.Context, chainID, safe string, tx analysis.Transaction) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, c.shieldPath(chainID, safe, "contract"), nil, tx)
}

// AnalyzeRequest is the body of a full analysis.
type AnalyzeRequest struct {
	Recipients       []string              `json:"recipients,omitempty"`
	OwnedSafes       []string              `json:"ownedSafes,omitempty"`
	Transaction      *analysis.Transaction `json:"transaction,omitempty"`
	SimulationFailed bool                  `json:"simulationFailed,omitempty"`
}

// Analyze runs every available source and returns the combined report.
func (c *ShieldClient) Analyze(ctx context.Context, chainID, safe string, req AnalyzeRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, c.shieldPath(chainID, safe, "analyze"), nil, req)
}

// VerdictHistory lists recorded overall verdicts for a Safe, newest first.
func (c *ShieldClient) VerdictHistory(ctx context.Context, chainID, safe string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, c.shieldPath(chainID, safe, "history"), q, nil)
}

// AddressBook lists address book entries for a chain.
func (c *ShieldClient) AddressBook(ctx context.Context, chainID string) (json.RawMessage, error) {
	path := "/v1/chains/" + url.PathEscape(c.chain(chainID)) + "/address-book"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// Descriptions returns the finding wording table.
func (c *ShieldClient) Descriptions(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/shield/descriptions", nil, nil)
}
