package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"goalline/internal/domain"
	"goalline/internal/engine"
	"goalline/internal/staging"
)

// GoalProgressTool handles goal_progress.
type GoalProgressTool struct {
	eng engine.Engine
}

func NewGoalProgressTool(eng engine.Engine) *GoalProgressTool {
	return &GoalProgressTool{eng: eng}
}

func (t *GoalProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("goal_progress",
		mcp.WithDescription("Report progress toward one goal, or every active goal when no goal is given."),
		mcp.WithString("goal",
			mcp.Description("Goal id or exact title"),
		),
	)
}

func (t *GoalProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := t.eng.GoalProgress(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read progress: %v", err)), nil
	}
	if goal := strings.TrimSpace(req.GetString("goal", "")); goal != "" {
		key := staging.NormalizeKey(goal)
		var match []domain.GoalProgress
		for _, p := range rows {
			if p.GoalID == goal || staging.NormalizeKey(p.Title) == key {
				match = append(match, p)
			}
		}
		if len(match) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no active goal %q", goal)), nil
		}
		rows = match
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("No goals yet."), nil
	}
	var b strings.Builder
	for _, p := range rows {
		fmt.Fprintf(&b, "- %s: %g/%g %s (%.0f%%)", p.Title, p.Total, p.Target, p.Unit, p.Percent)
		if p.Complete {
			b.WriteString(" complete")
		} else {
			fmt.Fprintf(&b, " %g to go", p.Remaining)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
