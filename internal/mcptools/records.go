package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"goalline/internal/engine"
	"goalline/internal/staging"
)

// CreateValueTool handles create_value.
type CreateValueTool struct {
	eng engine.Engine
}

func NewCreateValueTool(eng engine.Engine) *CreateValueTool {
	return &CreateValueTool{eng: eng}
}

func (t *CreateValueTool) Definition() mcp.Tool {
	return mcp.NewTool("create_value",
		mcp.WithDescription("Create a personal value. Lower priority numbers matter more."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Name of the value, e.g. \"Health\""),
		),
		mcp.WithString("level",
			mcp.Description("general (default), major, highest_order or life_area"),
		),
		mcp.WithNumber("priority",
			mcp.Description("1..100, defaults to the workspace default priority"),
		),
		mcp.WithString("description",
			mcp.Description("Optional free text"),
		),
	)
}

func (t *CreateValueTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	v, err := t.eng.CreateValue(ctx, engine.ValueCreateOptions{
		Title:       title,
		Level:       req.GetString("level", ""),
		Priority:    intArg(req, "priority", 0),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create value: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created value %q (%s, priority %d) id=%s", v.Title, v.Level, v.Priority, v.ID)), nil
}

// LogActionTool handles log_action. Units and goals must match existing
// records exactly; near misses come back as suggestions.
type LogActionTool struct {
	eng engine.Engine
}

func NewLogActionTool(eng engine.Engine) *LogActionTool {
	return &LogActionTool{eng: eng}
}

func (t *LogActionTool) Definition() mcp.Tool {
	return mcp.NewTool("log_action",
		mcp.WithDescription(
			"Log something the user did. Measurements count toward goals that track "+
				"the same unit. Unknown units or goal titles are rejected with suggestions.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("What was done, e.g. \"Morning run\""),
		),
		mcp.WithString("measurements",
			mcp.Description("Comma separated unit=amount pairs, e.g. \"km=5, minutes=30\""),
		),
		mcp.WithString("goals",
			mcp.Description("Comma separated goal titles this action contributes to"),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Description("Optional duration"),
		),
		mcp.WithBoolean("create_missing_measures",
			mcp.Description("Create units that match no existing measure"),
		),
	)
}

func (t *LogActionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	measurements, err := parseMeasurements(req.GetString("measurements", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := engine.ActionLogOptions{
		Title:                 title,
		Measurements:          measurements,
		Goals:                 listArg(req, "goals"),
		CreateMissingMeasures: boolArg(req, "create_missing_measures", false),
	}
	if v, ok := req.GetArguments()["duration_minutes"].(float64); ok {
		opts.DurationMinutes = &v
	}
	a, err := t.eng.LogAction(ctx, opts)
	var unresolved *engine.UnresolvedError
	if errors.As(err, &unresolved) {
		return mcp.NewToolResultError(describeUnresolved(unresolved.References)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to log action: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged %q id=%s (%d measurements, %d goals)", a.Title, a.ID, len(a.Measurements), len(a.GoalIDs))), nil
}

func parseMeasurements(raw string) ([]engine.UnitAmount, error) {
	var out []engine.UnitAmount
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		unit, amount, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("measurement %q must look like unit=amount", part)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("measurement %q needs a positive amount", part)
		}
		out = append(out, engine.UnitAmount{Unit: strings.TrimSpace(unit), Amount: n})
	}
	return out, nil
}

func describeUnresolved(refs []staging.Reference) string {
	var b strings.Builder
	b.WriteString("Nothing was logged. These names match no record exactly:\n")
	for _, r := range refs {
		fmt.Fprintf(&b, "- %q", r.Raw)
		if len(r.Suggestions) > 0 {
			titles := make([]string, 0, len(r.Suggestions))
			for _, s := range r.Suggestions {
				titles = append(titles, strconv.Quote(s.Title))
			}
			fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(titles, " or "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
