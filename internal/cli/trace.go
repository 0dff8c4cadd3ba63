package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/tugsim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Tick     int
	Rule     string // optional, one rule only
}

// TraceResult is the trace command's complete output: the archived
// explanation and conflict records for one tick, already canonical JSON.
type TraceResult struct {
	SessionID    string           `json:"session_id"`
	Tick         int              `json:"tick"`
	Explanations []map[string]any `json:"explanations"`
	Conflicts    []map[string]any `json:"conflicts"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the causal chain for one archived tick",
		Long: `Show why the engine did what it did on one tick: each rule evaluated,
the condition values it saw, what it wrote, what it triggered, and how
any write conflicts were resolved.

Reads from the archive, never from a live engine, so a trace is stable
evidence of a past decision.

Examples:
  tugsim trace --db ./harbour.db --session 0198a2... --tick 3
  tugsim trace --db ./harbour.db --session 0198a2... --tick 3 --rule emergency_anchor
  tugsim trace --db ./harbour.db --session 0198a2... --tick 3 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().IntVar(&opts.Tick, "tick", 0, "tick to trace; 0 means the latest")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "show one rule only")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	tick := opts.Tick
	if tick == 0 {
		tick, err = st.LatestTick(ctx, opts.Session)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest tick", err)
		}
	}

	rec, err := st.ReadSnapshot(ctx, opts.Session, tick)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	result := TraceResult{SessionID: opts.Session, Tick: tick}
	if err := json.Unmarshal(rec.Explanations, &result.Explanations); err != nil {
		return WrapExitError(ExitCommandError, "corrupt explanations payload", err)
	}
	if err := json.Unmarshal(rec.Conflicts, &result.Conflicts); err != nil {
		return WrapExitError(ExitCommandError, "corrupt conflicts payload", err)
	}

	if opts.Rule != "" {
		result.Explanations = filterRule(result.Explanations, opts.Rule)
		if len(result.Explanations) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("rule %s was not evaluated on tick %d", opts.Rule, tick))
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.JSON() {
		return f.Success(result)
	}
	printTraceText(cmd, result, opts.Verbose)
	return nil
}

func filterRule(explanations []map[string]any, ruleID string) []map[string]any {
	var out []map[string]any
	for _, e := range explanations {
		if e["rule_id"] == ruleID {
			out = append(out, e)
		}
	}
	return out
}

func printTraceText(cmd *cobra.Command, result TraceResult, verbose bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s tick %d\n", result.SessionID, result.Tick)

	for _, e := range result.Explanations {
		marker := " "
		if triggered, _ := e["triggered"].(bool); triggered {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %v [priority %v]", marker, e["rule_id"], e["priority"])
		if by, ok := e["triggered_by"].(string); ok && by != "" {
			fmt.Fprintf(out, " <- %s", by)
		}
		fmt.Fprintln(out)

		if msg, _ := e["message"].(string); msg != "" {
			fmt.Fprintf(out, "    %s\n", msg)
		}
		if chained, _ := e["triggered_rules"].([]any); len(chained) > 0 {
			fmt.Fprintf(out, "    -> triggers %v\n", chained)
		}
		if !verbose {
			continue
		}
		if conds, _ := e["conditions_evaluated"].([]any); len(conds) > 0 {
			for _, c := range conds {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "    cond %v %v %v = %v\n", cm["left"], cm["operator"], cm["right"], cm["result"])
			}
		}
		if actions, _ := e["actions_applied"].([]any); len(actions) > 0 {
			for _, a := range actions {
				am, ok := a.(map[string]any)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "    %v %v", am["type"], am["target"])
				if after, ok := am["after"]; ok {
					fmt.Fprintf(out, " -> %v", after)
				}
				fmt.Fprintln(out)
			}
		}
	}

	for _, c := range result.Conflicts {
		res, _ := c["resolution"].(map[string]any)
		if resolved, _ := c["resolved"].(bool); resolved {
			fmt.Fprintf(out, "conflict %v resolved by %v -> %v\n", c["path"], c["strategy"], res["final_value"])
		} else {
			fmt.Fprintf(out, "conflict %v held for %v\n", c["path"], c["strategy"])
		}
	}
}
