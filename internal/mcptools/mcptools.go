// Package mcptools exposes goalline records to an external coaching tool
// caller over MCP.
//
// Each tool is a struct holding the engine, with Definition() returning the
// mcp.Tool schema and Handle() serving calls. Tool failures caused by the
// caller's input are returned as tool results, not Go errors.
package mcptools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"goalline/internal/engine"
)

const Version = "0.1.0"

// NewServer registers every goalline tool on a fresh MCP server.
func NewServer(eng engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"goalline",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(eng) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tool is the shape shared by every handler in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func Tools(eng engine.Engine) []Tool {
	return []Tool{
		NewListTool(eng, "list_values"),
		NewListTool(eng, "list_measures"),
		NewListTool(eng, "list_goals"),
		NewCreateValueTool(eng),
		NewLogActionTool(eng),
		NewGoalProgressTool(eng),
	}
}

const instructions = "goalline tracks values, measures (units), goals and actions. " +
	"Look records up with the list_* tools before logging: log_action matches " +
	"units and goal titles exactly and reports near misses instead of guessing."

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg splits a comma separated argument, dropping blanks.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	for _, part := range strings.Split(req.GetString(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
