package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"goalline/internal/engine"
)

// ListTool serves list_values, list_measures and list_goals.
type ListTool struct {
	eng  engine.Engine
	name string
}

func NewListTool(eng engine.Engine, name string) *ListTool {
	return &ListTool{eng: eng, name: name}
}

func (t *ListTool) Definition() mcp.Tool {
	noun := strings.TrimPrefix(t.name, "list_")
	return mcp.NewTool(t.name,
		mcp.WithDescription(fmt.Sprintf("List active %s with their ids.", noun)),
		mcp.WithBoolean("include_archived",
			mcp.Description("Also list archived records"),
		),
	)
}

func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	archived := boolArg(req, "include_archived", false)
	var b strings.Builder
	switch t.name {
	case "list_values":
		items, err := t.eng.ListValues(ctx, archived)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list values: %v", err)), nil
		}
		for _, v := range items {
			fmt.Fprintf(&b, "- %s (%s, priority %d) id=%s\n", v.Title, v.Level, v.Priority, v.ID)
		}
	case "list_measures":
		items, err := t.eng.ListMeasures(ctx, archived)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list measures: %v", err)), nil
		}
		for _, m := range items {
			fmt.Fprintf(&b, "- %s (%s) id=%s\n", m.Unit, m.MeasureType, m.ID)
		}
	case "list_goals":
		items, err := t.eng.ListGoals(ctx, archived)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list goals: %v", err)), nil
		}
		for _, g := range items {
			fmt.Fprintf(&b, "- %s (target %g) id=%s\n", g.Title, g.TargetValue, g.ID)
		}
	default:
		return mcp.NewToolResultError("unknown list tool " + t.name), nil
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("No " + strings.TrimPrefix(t.name, "list_") + " yet."), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}
