package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goalline/internal/app"
	"goalline/internal/engine"
	"goalline/internal/parse"
	"goalline/internal/staging"
)

func importCmd() *cobra.Command {
	imp := &cobra.Command{
		Use:   "import",
		Short: "Bulk import through a staged session",
		Long: `Row formats (pipe delimited, one row per line):
  values    Title | level | priority | description | life domain
  measures  unit | type | description
  goals     Title | target | unit | Value, Value | start | target date | plan
  actions   Title | date | unit:amount, unit:amount | Goal, Goal | minutes`,
	}
	imp.AddCommand(importStartCmd())
	imp.AddCommand(importShowCmd())
	imp.AddCommand(importStageCmd())
	imp.AddCommand(importResolveCmd())
	imp.AddCommand(importChooseCmd())
	imp.AddCommand(importCreateNewCmd())
	imp.AddCommand(importRemoveCmd())
	imp.AddCommand(importStepCmd())
	imp.AddCommand(importReviewCmd())
	imp.AddCommand(importDraftCmd())
	imp.AddCommand(importCommitCmd())
	imp.AddCommand(importDiscardCmd())
	imp.AddCommand(importStartOverCmd())
	imp.AddCommand(importHistoryCmd())
	return imp
}

func importStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a session or resume the saved draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, created, err := a.Wizard.Start()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				if created {
					fmt.Printf("Started import session %s\n", s.ID)
					return nil
				}
				fmt.Printf("Resumed import session %s at step %d\n", s.ID, s.Step)
				return printSession(s)
			})
		},
	}
}

func importShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show staged entities and their references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Wizard.Session()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				return printSession(s)
			})
		},
	}
}

func importStageCmd() *cobra.Command {
	var file, sheet, text string
	cmd := &cobra.Command{
		Use:   "stage <kind>",
		Short: "Parse rows into the session (from --text, --file, or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := staging.ParseKind(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			input, err := readInput(cmd.InOrStdin(), text, file, sheet)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Wizard.Stage(ctx, kind, input)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Staged %d %s: %s\n", len(res.IDs), kind, strings.Join(res.IDs, ", "))
				for _, pe := range res.Errors {
					fmt.Printf("  skipped %s\n", pe.Error())
				}
				fmt.Printf("Resolution: %d resolved, %d with suggestions, %d unresolved\n", res.Resolve.Resolved, res.Resolve.Suggested, res.Resolve.Unresolved)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "rows to parse")
	cmd.Flags().StringVar(&file, "file", "", "read rows from a .csv, .xlsx or text file")
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet name for .xlsx files (default first sheet)")
	return cmd
}

func readInput(stdin io.Reader, text, file, sheet string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("--text and --file are exclusive")
	case text != "":
		return text, nil
	case file != "":
		return parse.ReadFile(file, sheet)
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("no rows given (use --text, --file, or stdin)")
	}
	return string(b), nil
}

func importResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Retry every reference against saved and staged records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sum, err := a.Wizard.Resolve(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("%d resolved, %d with suggestions, %d unresolved (%d changed)\n", sum.Resolved, sum.Suggested, sum.Unresolved, sum.Changed)
				return nil
			})
		},
	}
}

// refArgs parses <kind> <local-id> <field> [index].
func refArgs(args []string) (staging.Kind, string, staging.RefPath, error) {
	kind, err := staging.ParseKind(args[0])
	if err != nil {
		return "", "", staging.RefPath{}, err
	}
	p := staging.RefPath{Field: args[2]}
	if len(args) > 3 {
		if p.Index, err = strconv.Atoi(args[3]); err != nil || p.Index < 0 {
			return "", "", staging.RefPath{}, fmt.Errorf("index must be a non-negative integer, got %q", args[3])
		}
	}
	return kind, args[1], p, nil
}

func importChooseCmd() *cobra.Command {
	var suggestion int
	cmd := &cobra.Command{
		Use:   "choose <kind> <local-id> <field> [index]",
		Short: "Pick a suggestion for one reference",
		Example: `  gl import choose goal g1 values 0 --suggestion 0
  gl import choose action a2 goals 1 --suggestion 2`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, p, err := refArgs(args)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ref, err := a.Wizard.Choose(kind, id, p, suggestion)
				if err != nil {
					return withCode(exitUsage, err)
				}
				if viper.GetBool("json") {
					return printJSON(ref)
				}
				fmt.Printf("%s %s %s -> %s\n", kind, id, p, describeRef(ref))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&suggestion, "suggestion", 0, "position of the suggestion to pick")
	return cmd
}

func importCreateNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-new <kind> <local-id> <field> [index]",
		Short: "Create the referenced value or measure from its text at commit",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, p, err := refArgs(args)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ref, err := a.Wizard.CreateNew(kind, id, p)
				if err != nil {
					return withCode(exitUsage, err)
				}
				fmt.Printf("%s %s %s -> %s\n", kind, id, p, describeRef(ref))
				return nil
			})
		},
	}
}

func importRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <local-id>",
		Short: "Remove a staged entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := staging.ParseKind(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Wizard.Remove(kind, args[1])
			})
		},
	}
}

func importStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step <1-5>",
		Short: "Move the wizard to a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Wizard.SetStep(staging.Step(n)); err != nil {
					return withCode(exitUsage, err)
				}
				return nil
			})
		},
	}
}

func importReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Validate the session; exits 2 when commit would be refused",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				state, err := a.Wizard.Review()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(state); err != nil {
						return err
					}
				} else {
					printIssues(state)
				}
				if !state.CanCommit() {
					return withCode(exitValidation, fmt.Errorf("%d blocking errors", len(state.Errors)))
				}
				return nil
			})
		},
	}
}

func importDraftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draft",
		Short: "Save the session as a draft and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Wizard.SaveDraft()
			})
		},
	}
}

func importCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Save every staged entity in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Wizard.Commit(ctx)
				var ce *engine.CommitError
				if errors.As(err, &ce) && len(ce.Issues) > 0 && !viper.GetBool("json") {
					printIssues(staging.ValidationState{Errors: ce.Issues})
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				ids := make([]string, 0, len(rec.IDs))
				for id := range rec.IDs {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				tw := newTable("Staged", "Saved as")
				for _, id := range ids {
					tw.AppendRow(table.Row{id, rec.IDs[id]})
				}
				for key, id := range rec.CreatedFromText {
					tw.AppendRow(table.Row{key, id})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func importDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Drop the session and its draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Wizard.Discard()
			})
		},
	}
}

func importStartOverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-over",
		Short: "Discard the session and start a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Wizard.StartOver()
				if err != nil {
					return err
				}
				fmt.Printf("Started import session %s\n", s.ID)
				return nil
			})
		},
	}
}

func importHistoryCmd() *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List committed sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if show != "" {
					s, err := a.Wizard.Store.LoadArchived(show)
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				}
				ids, err := a.Wizard.History()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "print one archived session")
	return cmd
}

func printSession(s *staging.Session) error {
	tw := newTable("Kind", "ID", "Status", "Row")
	for _, v := range s.Values {
		tw.AppendRow(table.Row{staging.KindValue, v.LocalID, v.Status, parse.FormatValue(v)})
	}
	for _, m := range s.Measures {
		tw.AppendRow(table.Row{staging.KindMeasure, m.LocalID, m.Status, parse.FormatMeasure(m)})
	}
	for _, g := range s.Goals {
		tw.AppendRow(table.Row{staging.KindGoal, g.LocalID, g.Status, parse.FormatGoal(g)})
	}
	for _, a := range s.Actions {
		tw.AppendRow(table.Row{staging.KindAction, a.LocalID, a.Status, parse.FormatAction(a)})
	}
	tw.Render()

	pending := false
	s.EachSlot(func(owner staging.Kind, localID string, slot staging.RefSlot) {
		if slot.Ref.IsResolved() {
			return
		}
		if !pending {
			fmt.Println("\nUnresolved references:")
			pending = true
		}
		fmt.Printf("  %s %s %s: %s\n", owner, localID, slot.Path, describeRef(*slot.Ref))
		for i, sg := range slot.Ref.Suggestions {
			fmt.Printf("    [%d] %s (%s, %.2f)\n", i, sg.Title, sg.Pool, sg.Score)
		}
	})
	return nil
}

func describeRef(r staging.Reference) string {
	switch r.State {
	case staging.RefExisting:
		return fmt.Sprintf("%q saved %s", r.Raw, r.ID)
	case staging.RefStaged:
		return fmt.Sprintf("%q staged %s", r.Raw, r.ID)
	case staging.RefCreateNew:
		return fmt.Sprintf("%q will be created", r.Raw)
	}
	return fmt.Sprintf("%q unresolved", r.Raw)
}

func printIssues(state staging.ValidationState) {
	for _, is := range state.Errors {
		fmt.Fprintf(os.Stdout, "error   %s\n", is)
	}
	for _, is := range state.Warnings {
		fmt.Fprintf(os.Stdout, "warning %s\n", is)
	}
	if state.CanCommit() {
		fmt.Println("Ready to commit.")
	}
}
