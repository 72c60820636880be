// Safe Shield MCP Server - exposes transaction risk analysis as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/safeshield/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:    envOrDefault("SAFESHIELD_API_URL", "http://localhost:8080"),
		ChainID:   envOrDefault("SAFESHIELD_CHAIN_ID", "1"),
		SessionID: os.Getenv("SAFESHIELD_SESSION"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
