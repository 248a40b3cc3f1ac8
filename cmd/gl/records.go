package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goalline/internal/app"
	"goalline/internal/domain"
	"goalline/internal/engine"
	"goalline/internal/parse"
	"goalline/internal/staging"
)

func valueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "value", Short: "Values: what matters and how much"}
	cmd.AddCommand(valueListCmd())
	cmd.AddCommand(valueCreateCmd())
	cmd.AddCommand(archiveCmd(staging.KindValue))
	return cmd
}

func measureCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "measure", Short: "Measures: units progress is counted in"}
	cmd.AddCommand(measureListCmd())
	cmd.AddCommand(archiveCmd(staging.KindMeasure))
	return cmd
}

func goalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "goal", Short: "Goals: a target amount of one measure"}
	cmd.AddCommand(goalListCmd())
	cmd.AddCommand(goalProgressCmd())
	cmd.AddCommand(archiveCmd(staging.KindGoal))
	return cmd
}

func actionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "action", Short: "Actions: what was done"}
	cmd.AddCommand(actionListCmd())
	cmd.AddCommand(actionLogCmd())
	cmd.AddCommand(archiveCmd(staging.KindAction))
	return cmd
}

func valueListCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListValues(ctx, archived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Level", "Priority", "Life domain")
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Title, v.Level, v.Priority, v.LifeDomain})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived")
	return cmd
}

func valueCreateCmd() *cobra.Command {
	var opts engine.ValueCreateOptions
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.CreateValue(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Level, "level", "", "general, major, highest_order or life_area")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "1 (highest) to 100")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.LifeDomain, "life-domain", "", "life domain")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.AlignmentGuidance, "alignment", "", "what acting on this value looks like")
	return cmd
}

func measureListCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List measures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListMeasures(ctx, archived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Unit", "Type")
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Unit, m.MeasureType})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived")
	return cmd
}

func goalListCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListGoals(ctx, archived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Target", "Target date", "Values")
				for _, g := range items {
					tw.AppendRow(table.Row{g.ID, g.Title, g.TargetValue, deref(g.TargetDate), len(g.ValueIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived")
	return cmd
}

func goalProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress [goal-id]",
		Short: "Show progress toward one goal or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rows, err := a.Engine.GoalProgress(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				printProgress(rows)
				return nil
			})
		},
	}
}

func printProgress(rows []domain.GoalProgress) {
	tw := newTable("Goal", "Progress", "Percent", "Remaining", "Actions")
	for _, p := range rows {
		pct := fmt.Sprintf("%.1f%%", p.Percent)
		if p.Complete {
			pct += " done"
		}
		tw.AppendRow(table.Row{p.Title, fmt.Sprintf("%g / %g %s", p.Total, p.Target, p.Unit), pct, p.Remaining, p.Contributions})
	}
	tw.Render()
}

func actionListCmd() *cobra.Command {
	var archived bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListActions(ctx, archived, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "When", "Measurements", "Goals")
				for _, act := range items {
					tw.AppendRow(table.Row{act.ID, act.Title, act.OccurredAt, len(act.Measurements), len(act.GoalIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived")
	cmd.Flags().IntVar(&limit, "limit", 50, "max actions")
	return cmd
}

func actionLogCmd() *cobra.Command {
	var at string
	var minutes float64
	var measurements, goals []string
	var createMissing bool
	cmd := &cobra.Command{
		Use:     "log <title>",
		Short:   "Log an action against existing measures and goals",
		Example: `  gl action log "Morning run" --measure km:5 --goal "Run 120km"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ActionLogOptions{Title: args[0], Goals: goals, CreateMissingMeasures: createMissing}
			if at != "" {
				t, err := parse.ParseDate(at)
				if err != nil {
					return withCode(exitUsage, err)
				}
				opts.OccurredAt = t
			}
			if cmd.Flags().Changed("minutes") {
				opts.DurationMinutes = &minutes
			}
			for _, m := range measurements {
				ua, err := parseUnitAmount(m)
				if err != nil {
					return withCode(exitUsage, err)
				}
				opts.Measurements = append(opts.Measurements, ua)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				act, err := a.Engine.LogAction(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "when it happened (default now)")
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "duration in minutes")
	cmd.Flags().StringArrayVar(&measurements, "measure", nil, "unit:amount, repeatable")
	cmd.Flags().StringArrayVar(&goals, "goal", nil, "goal title, repeatable")
	cmd.Flags().BoolVar(&createMissing, "create-missing-measures", false, "create units that match no measure")
	return cmd
}

func parseUnitAmount(s string) (engine.UnitAmount, error) {
	unit, amount, ok := strings.Cut(s, ":")
	if !ok {
		return engine.UnitAmount{}, fmt.Errorf("measurement %q must look like unit:amount", s)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || n <= 0 {
		return engine.UnitAmount{}, fmt.Errorf("measurement %q needs a positive amount", s)
	}
	return engine.UnitAmount{Unit: strings.TrimSpace(unit), Amount: n}, nil
}

func archiveCmd(kind staging.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: fmt.Sprintf("Archive a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Archive(ctx, kind, args[0]); err != nil {
					return err
				}
				fmt.Printf("Archived %s %s\n", kind, args[0])
				return nil
			})
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
