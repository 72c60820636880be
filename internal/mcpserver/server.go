package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Safe Shield tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("safeshield", "1.0.0")
	client := NewShieldClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAnalyzeRecipients, h.HandleAnalyzeRecipients)
	s.AddTool(ToolGetOverallStatus, h.HandleGetOverallStatus)
	s.AddTool(ToolAnalyzeContract, h.HandleAnalyzeContract)
	s.AddTool(ToolGetVerdictHistory, h.HandleGetVerdictHistory)
	s.AddTool(ToolListAddressBook, h.HandleListAddressBook)
	s.AddTool(ToolGetDescriptions, h.HandleGetDescriptions)

	return s
}
