package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/safeshield/internal/analysis"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ShieldClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ShieldClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeRecipients checks the recipients of a transaction.
func (h *Handlers) HandleAnalyzeRecipients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	safe := req.GetString("safe", "")
	if safe == "" {
		return mcp.NewToolResultError("safe is required"), nil
	}
	recipients := req.GetStringSlice("recipients", nil)
	if len(recipients) == 0 {
		return mcp.NewToolResultError("recipients is required"), nil
	}
	owned := req.GetStringSlice("owned_safes", nil)

	raw, err := h.client.AnalyzeRecipients(ctx, req.GetString("chain_id", ""), safe, recipients, owned)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Recipient analysis failed: %v", err)), nil
	}

	text, err := formatSourceResponse("Recipient analysis", raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAnalyzeContract checks the contract a transaction calls.
func (h *Handlers) HandleAnalyzeContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	safe := req.GetString("safe", "")
	if safe == "" {
		return mcp.NewToolResultError("safe is required"), nil
	}
	tx, ok := transactionArg(req)
	if !ok {
		return mcp.NewToolResultError("to is required"), nil
	}

	raw, err := h.client.AnalyzeContract(ctx, req.GetString("chain_id", ""), safe, *tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Contract analysis failed: %v", err)), nil
	}

	text, err := formatSourceResponse("Contract analysis", raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetOverallStatus runs the full analysis and reports the overall verdict.
func (h *Handlers) HandleGetOverallStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	safe := req.GetString("safe", "")
	if safe == "" {
		return mcp.NewToolResultError("safe is required"), nil
	}

	body := AnalyzeRequest{
		Recipients:       req.GetStringSlice("recipients", nil),
		SimulationFailed: req.GetBool("simulation_failed", false),
	}
	if tx, ok := transactionArg(req); ok {
		body.Transaction = tx
	}

	raw, err := h.client.Analyze(ctx, req.GetString("chain_id", ""), safe, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatReport(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetVerdictHistory lists recorded verdicts for a Safe.
func (h *Handlers) HandleGetVerdictHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	safe := req.GetString("safe", "")
	if safe == "" {
		return mcp.NewToolResultError("safe is required"), nil
	}

	raw, err := h.client.VerdictHistory(ctx, req.GetString("chain_id", ""), safe, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListAddressBook lists address book entries.
func (h *Handlers) HandleListAddressBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.AddressBook(ctx, req.GetString("chain_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list address book: %v", err)), nil
	}

	text, err := formatAddressBook(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse address book: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetDescriptions returns the finding wording table.
func (h *Handlers) HandleGetDescriptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.Descriptions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get descriptions: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// transactionArg builds a transaction from tool arguments. The second
// return is false when no target address was given.
func transactionArg(req mcp.CallToolRequest) (*analysis.Transaction, bool) {
	to := req.GetString("to", "")
	if to == "" {
		return nil, false
	}
	return &analysis.Transaction{
		To:        to,
		Value:     req.GetString("value", "0"),
		Data:      req.GetString("data", "0x"),
		Operation: analysis.Operation(req.GetInt("operation", 0)),
	}, true
}

// --- Formatting helpers ---

type sourceResponse struct {
	Safe    string            `json:"safe"`
	Visible []analysis.Result `json:"visible"`
	Error   string            `json:"error"`
}

type reportResponse struct {
	Safe    string `json:"safe"`
	Visible struct {
		Recipient []analysis.Result `json:"recipient"`
		Contract  []analysis.Result `json:"contract"`
		Threat    []analysis.Result `json:"threat"`
	} `json:"visible"`
	Overall *struct {
		Severity string `json:"severity"`
		Title    string `json:"title"`
	} `json:"overall"`
	Recipient asyncError  `json:"recipient"`
	Contract  *asyncError `json:"contract"`
	Threat    *asyncError `json:"threat"`
	VerdictID string      `json:"verdictId"`
}

type asyncError struct {
	Error string `json:"error"`
}

func formatSourceResponse(title string, raw json.RawMessage) (string, error) {
	var resp sourceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s for Safe %s\n", title, resp.Safe)
	if resp.Error != "" {
		fmt.Fprintf(&sb, "Warning: %s\n", resp.Error)
	}
	writeFindings(&sb, resp.Visible)
	return sb.String(), nil
}

func formatReport(raw json.RawMessage) (string, error) {
	var resp reportResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Safe Shield report for %s\n", resp.Safe)
	if resp.Overall != nil {
		fmt.Fprintf(&sb, "Overall: %s (%s)\n", resp.Overall.Title, resp.Overall.Severity)
	} else {
		sb.WriteString("Overall: no findings\n")
	}
	if resp.VerdictID != "" {
		fmt.Fprintf(&sb, "Verdict ID: %s\n", resp.VerdictID)
	}

	sections := []struct {
		name     string
		findings []analysis.Result
		err      string
	}{
		{"Recipient", resp.Visible.Recipient, resp.Recipient.Error},
		{"Contract", resp.Visible.Contract, errorOf(resp.Contract)},
		{"Threat", resp.Visible.Threat, errorOf(resp.Threat)},
	}
	for _, s := range sections {
		if len(s.findings) == 0 && s.err == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s:\n", s.name)
		if s.err != "" {
			fmt.Fprintf(&sb, "Warning: %s\n", s.err)
		}
		writeFindings(&sb, s.findings)
	}
	return sb.String(), nil
}

func errorOf(a *asyncError) string {
	if a == nil {
		return ""
	}
	return a.Error
}

func writeFindings(sb *strings.Builder, findings []analysis.Result) {
	if len(findings) == 0 {
		sb.WriteString("No findings.\n")
		return
	}
	for i, f := range findings {
		fmt.Fprintf(sb, "%d. [%s] %s\n", i+1, f.Severity, f.Title)
		if f.Description != "" {
			fmt.Fprintf(sb, "   %s\n", f.Description)
		}
		if len(f.Addresses) > 0 {
			fmt.Fprintf(sb, "   Addresses: %s\n", strings.Join(f.Addresses, ", "))
		}
	}
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		Safe     string           `json:"safe"`
		Verdicts []map[string]any `json:"verdicts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Verdicts) == 0 {
		return fmt.Sprintf("No verdicts recorded for %s.", resp.Safe), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d verdict(s) for %s:\n\n", len(resp.Verdicts), resp.Safe)
	for i, v := range resp.Verdicts {
		fmt.Fprintf(&sb, "%d. %s (%s) at %s\n", i+1,
			getString(v, "title"), getString(v, "severity"), getString(v, "evaluatedAt"))
	}
	return sb.String(), nil
}

func formatAddressBook(raw json.RawMessage) (string, error) {
	var resp struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Entries) == 0 {
		return "Address book is empty.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d entr(y/ies):\n\n", len(resp.Entries))
	for i, e := range resp.Entries {
		name := getString(e, "name")
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "%d. %s %s\n", i+1, getString(e, "address"), name)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
