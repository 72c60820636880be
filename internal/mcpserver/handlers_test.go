package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSafe = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testTo   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewShieldClient(Config{APIURL: ts.URL, SessionID: "sess-1"})
	return NewHandlers(client), ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================
// Client tests
// ============================================================

func TestClient_SessionHeader(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Shield-Session")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL, SessionID: "abc"})
	_, err := client.Descriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestClient_NoSessionHeaderWhenUnset(t *testing.T) {
	var present bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Shield-Session"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	_, err := client.Descriptions(context.Background())
	require.NoError(t, err)
	assert.False(t, present)
}

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": "invalid_request", "message": "at least one recipient is required"})
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	_, err := client.AnalyzeRecipients(context.Background(), "", testSafe, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "at least one recipient is required")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	_, err := client.Descriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewShieldClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.Descriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Descriptions(ctx)
	require.Error(t, err)
}

func TestClient_DefaultChain(t *testing.T) {
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	_, err := client.AddressBook(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/v1/chains/1/address-book", path)

	_, err = client.AddressBook(context.Background(), "137")
	require.NoError(t, err)
	assert.Equal(t, "/v1/chains/137/address-book", path)
}

func TestClient_VerdictHistory_Limit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains/1/safes/"+testSafe+"/shield/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewShieldClient(Config{APIURL: ts.URL})
	_, err := client.VerdictHistory(context.Background(), "", testSafe, 5)
	require.NoError(t, err)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleAnalyzeRecipients(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chains/1/safes/"+testSafe+"/shield/recipients", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []any{testTo}, req["recipients"])
		assert.NotContains(t, req, "ownedSafes")

		writeJSON(w, map[string]any{
			"safe": testSafe,
			"visible": []map[string]any{{
				"severity":    "WARN",
				"type":        "LOW_ACTIVITY",
				"title":       "Low activity recipient",
				"description": "This address has few transactions.",
				"addresses":   []string{testTo},
			}},
			"loading": false,
		})
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeRecipients(context.Background(), makeRequest(map[string]any{
		"safe":       testSafe,
		"recipients": []any{testTo},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Recipient analysis for Safe "+testSafe)
	assert.Contains(t, text, "[WARN] Low activity recipient")
	assert.Contains(t, text, "Addresses: "+testTo)
}

func TestHandleAnalyzeRecipients_MissingArgs(t *testing.T) {
	h := NewHandlers(NewShieldClient(Config{APIURL: "http://unused"}))

	result, err := h.HandleAnalyzeRecipients(context.Background(), makeRequest(map[string]any{"recipients": []any{testTo}}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "safe is required")

	result, err = h.HandleAnalyzeRecipients(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "recipients is required")
}

func TestHandleAnalyzeRecipients_PartialError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"safe": testSafe, "visible": []any{}, "error": "backend unavailable"})
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeRecipients(context.Background(), makeRequest(map[string]any{
		"safe":       testSafe,
		"recipients": []any{testTo},
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Warning: backend unavailable")
	assert.Contains(t, text, "No findings.")
}

func TestHandleAnalyzeContract(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains/1/safes/"+testSafe+"/shield/contract", r.URL.Path)

		var tx map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
		assert.Equal(t, testTo, tx["to"])
		assert.Equal(t, "0", tx["value"])
		assert.Equal(t, "0x", tx["data"])
		assert.Equal(t, float64(1), tx["operation"])

		writeJSON(w, map[string]any{
			"safe": testSafe,
			"visible": []map[string]any{{
				"severity": "CRITICAL",
				"type":     "UNEXPECTED_DELEGATECALL",
				"title":    "Unexpected delegateCall",
			}},
		})
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeContract(context.Background(), makeRequest(map[string]any{
		"safe":      testSafe,
		"to":        testTo,
		"operation": float64(1),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "[CRITICAL] Unexpected delegateCall")
}

func TestHandleAnalyzeContract_MissingTo(t *testing.T) {
	h := NewHandlers(NewShieldClient(Config{APIURL: "http://unused"}))

	result, err := h.HandleAnalyzeContract(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "to is required")
}

func TestHandleGetOverallStatus(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains/1/safes/"+testSafe+"/shield/analyze", r.URL.Path)
		assert.Equal(t, "sess-1", r.Header.Get("X-Shield-Session"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["simulationFailed"])
		assert.NotNil(t, req["transaction"])

		writeJSON(w, map[string]any{
			"safe":      testSafe,
			"overall":   map[string]any{"severity": "WARN", "title": "Issues found"},
			"verdictId": "vrd_123",
			"recipient": map[string]any{"data": map[string]any{}, "loading": false},
			"threat":    map[string]any{"data": map[string]any{}, "error": "Hypernative login required", "loading": false},
			"visible": map[string]any{
				"recipient": []map[string]any{{"severity": "INFO", "type": "NEW_RECIPIENT", "title": "New recipient"}},
				"contract":  []any{},
				"threat":    []any{},
			},
		})
	}))
	defer cleanup()

	result, err := h.HandleGetOverallStatus(context.Background(), makeRequest(map[string]any{
		"safe":              testSafe,
		"to":                testTo,
		"simulation_failed": true,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Overall: Issues found (WARN)")
	assert.Contains(t, text, "Verdict ID: vrd_123")
	assert.Contains(t, text, "Recipient:")
	assert.Contains(t, text, "[INFO] New recipient")
	assert.Contains(t, text, "Threat:")
	assert.Contains(t, text, "Warning: Hypernative login required")
	assert.NotContains(t, text, "Contract:")
}

func TestHandleGetOverallStatus_NoFindings(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"safe": testSafe, "overall": nil})
	}))
	defer cleanup()

	result, err := h.HandleGetOverallStatus(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Overall: no findings")
}

func TestHandleGetOverallStatus_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]any{"error": "internal_error", "message": "boom"})
	}))
	defer cleanup()

	result, err := h.HandleGetOverallStatus(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Analysis failed")
	assert.Contains(t, resultText(t, result), "boom")
}

func TestHandleGetVerdictHistory(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		writeJSON(w, map[string]any{
			"safe": testSafe,
			"verdicts": []map[string]any{
				{"title": "Risk detected", "severity": "CRITICAL", "evaluatedAt": "2026-01-02T03:04:05Z"},
			},
			"count": 1,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetVerdictHistory(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 verdict(s)")
	assert.Contains(t, text, "Risk detected (CRITICAL) at 2026-01-02T03:04:05Z")
}

func TestHandleGetVerdictHistory_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"safe": testSafe, "verdicts": []any{}})
	}))
	defer cleanup()

	result, err := h.HandleGetVerdictHistory(context.Background(), makeRequest(map[string]any{"safe": testSafe}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No verdicts recorded")
}

func TestHandleListAddressBook(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"entries": []map[string]any{
				{"address": testTo, "name": "Treasury"},
				{"address": testSafe},
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleListAddressBook(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, testTo+" Treasury")
	assert.Contains(t, text, testSafe+" (unnamed)")
}

func TestHandleGetDescriptions(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"descriptions":[{"code":"LOW_ACTIVITY"}]}`))
	}))
	defer cleanup()

	result, err := h.HandleGetDescriptions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"code": "LOW_ACTIVITY"`)
}

// ============================================================
// Formatting tests
// ============================================================

func TestFormatReport_MalformedJSON(t *testing.T) {
	_, err := formatReport(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestFormatJSON_InvalidJSON(t *testing.T) {
	assert.Equal(t, "not json", formatJSON(json.RawMessage(`not json`)))
}

func TestGetString_NumericValue(t *testing.T) {
	assert.Equal(t, "42", getString(map[string]any{"n": float64(42)}, "missing", "n"))
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
