package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Safe Shield MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeRecipients = mcp.NewTool("analyze_recipients",
	mcp.WithDescription(
		"Check the recipients of a planned Safe transaction. "+
			"Reports whether each recipient is in the address book, is a first-time recipient, "+
			"has little on-chain activity, or sits on another chain. "+
			"Use this before sending funds from a Safe."),
	mcp.WithString("safe",
		mcp.Required(),
		mcp.Description("The Safe account address (e.g. '0x1234...')")),
	mcp.WithArray("recipients",
		mcp.Required(),
		mcp.Description("Recipient addresses to analyze"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithArray("owned_safes",
		mcp.Description("Other Safes owned by the same signer. Sending to these counts as a known recipient."),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("chain_id",
		mcp.Description("EVM chain id (default from server config, usually '1')")),
)

var ToolGetOverallStatus = mcp.NewTool("get_overall_status",
	mcp.WithDescription(
		"Run the full Safe Shield analysis for a transaction: recipients, the called contract, "+
			"and threat analysis when a Hypernative session is configured. "+
			"Returns the overall verdict (Risk detected / Issues found / Review details / Checks passed) "+
			"and the findings that explain it."),
	mcp.WithString("safe",
		mcp.Required(),
		mcp.Description("The Safe account address")),
	mcp.WithString("to",
		mcp.Description("Transaction target address")),
	mcp.WithString("value",
		mcp.Description("Value in wei as a decimal string (default '0')")),
	mcp.WithString("data",
		mcp.Description("0x-prefixed calldata (default '0x')")),
	mcp.WithNumber("operation",
		mcp.Description("0 for CALL, 1 for DELEGATECALL")),
	mcp.WithArray("recipients",
		mcp.Description("Recipient addresses decoded from the transaction"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithBoolean("simulation_failed",
		mcp.Description("Set when a transaction simulation reverted")),
	mcp.WithString("chain_id",
		mcp.Description("EVM chain id")),
)

var ToolAnalyzeContract = mcp.NewTool("analyze_contract",
	mcp.WithDescription(
		"Check the contract a Safe transaction calls: verification, first interaction, "+
			"delegatecall usage and fallback handler changes."),
	mcp.WithString("safe",
		mcp.Required(),
		mcp.Description("The Safe account address")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Contract address the transaction calls")),
	mcp.WithString("value",
		mcp.Description("Value in wei as a decimal string (default '0')")),
	mcp.WithString("data",
		mcp.Description("0x-prefixed calldata (default '0x')")),
	mcp.WithNumber("operation",
		mcp.Description("0 for CALL, 1 for DELEGATECALL")),
	mcp.WithString("chain_id",
		mcp.Description("EVM chain id")),
)

var ToolGetVerdictHistory = mcp.NewTool("get_verdict_history",
	mcp.WithDescription(
		"List previous overall verdicts recorded for a Safe, newest first."),
	mcp.WithString("safe",
		mcp.Required(),
		mcp.Description("The Safe account address")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of verdicts to return (default 20)")),
	mcp.WithString("chain_id",
		mcp.Description("EVM chain id")),
)

var ToolListAddressBook = mcp.NewTool("list_address_book",
	mcp.WithDescription(
		"List the address book for a chain. Recipients in the address book are reported as known."),
	mcp.WithString("chain_id",
		mcp.Description("EVM chain id")),
)

var ToolGetDescriptions = mcp.NewTool("get_descriptions",
	mcp.WithDescription(
		"Get the wording table Safe Shield uses for each finding code, "+
			"including the singular, plural and 'all addresses' phrasings."),
)
