package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/session"
	"github.com/driftline/tugsim/internal/sim"
	"github.com/driftline/tugsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks    int
	Database string
	Sets     []string
}

// TickSummary is one tick of run output.
type TickSummary struct {
	Tick      int               `json:"tick"`
	Triggered []string          `json:"triggered"`
	Events    []string          `json:"events"`
	Conflicts []ConflictSummary `json:"conflicts"`
	Messages  []string          `json:"messages"`
}

// ConflictSummary is one resolved conflict in run output.
type ConflictSummary struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"`
	Resolved bool   `json:"resolved"`
	Final    any    `json:"final,omitempty"`
}

// RunResult is the run command's complete output.
type RunResult struct {
	SessionID string        `json:"session_id"`
	Scenario  string        `json:"scenario"`
	Ticks     []TickSummary `json:"ticks"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and explain every decision",
		Long: `Run a harbour scenario for a fixed number of ticks, printing each
tick's triggered rules, their explanations, and any write conflicts.

With --db, every committed tick is archived for later replay and trace.
Event ids come from a fixed sequence, so archived runs replay
byte-identically.

Examples:
  tugsim run emergency --ticks 5
  tugsim run fog --db ./harbour.db
  tugsim run default --set global_metrics.tugboat_cargo_distance=10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 10, "number of ticks to run")
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive snapshots to this SQLite database")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "path=value input applied before the first tick (repeatable)")

	return cmd
}

func runScenario(opts *RunOptions, scenarioName string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	managerOpts := []session.ManagerOption{
		session.WithEngineOptions(engine.WithEventIDs(&engine.SequenceGenerator{})),
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		managerOpts = append(managerOpts, session.WithArchive(st))
	}

	mgr := session.NewManager(managerOpts...)
	sess, err := mgr.Create(ctx, scenarioName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}

	for _, set := range opts.Sets {
		path, value, err := parseSet(set)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --set", err)
		}
		sess.QueueWrite(path, value)
	}

	result := RunResult{SessionID: sess.ID, Scenario: scenarioName}
	for i := 0; i < opts.Ticks; i++ {
		tick, err := sess.Step(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("tick %d failed", i+1), err)
		}
		result.Ticks = append(result.Ticks, summarizeTick(tick))
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.JSON() {
		return f.Success(result)
	}
	printRunText(cmd, sess, result)
	return nil
}

// parseSet splits "path=value" and types the value: number, bool, or string.
func parseSet(s string) (string, sim.Value, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return "", nil, fmt.Errorf("expected path=value, got %q", s)
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return path, sim.Num(n), nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return path, sim.Bool(b), nil
	}
	return path, sim.Str(raw), nil
}

func summarizeTick(tick *engine.TickResult) TickSummary {
	s := TickSummary{
		Tick:      tick.TimeStep,
		Triggered: []string{},
		Events:    []string{},
		Conflicts: []ConflictSummary{},
		Messages:  []string{},
	}
	for _, expl := range tick.Explanations {
		if !expl.Triggered {
			continue
		}
		s.Triggered = append(s.Triggered, expl.RuleID)
		s.Events = append(s.Events, expl.EventsGenerated...)
		// Messages stays parallel to Triggered; rules without a template
		// contribute an empty entry.
		s.Messages = append(s.Messages, expl.Message)
	}
	for _, c := range tick.Conflicts {
		cs := ConflictSummary{
			Path:     c.Path,
			Strategy: string(c.ResolutionStrategy),
			Resolved: c.Resolved,
		}
		if c.Resolution.FinalValue != nil {
			cs.Final = sim.ToAny(c.Resolution.FinalValue)
		}
		s.Conflicts = append(s.Conflicts, cs)
	}
	return s
}

func printRunText(cmd *cobra.Command, sess *session.Session, result RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s scenario %s\n", result.SessionID, result.Scenario)

	for _, t := range result.Ticks {
		fmt.Fprintf(out, "tick %d: %d rules triggered\n", t.Tick, len(t.Triggered))
		for i, id := range t.Triggered {
			fmt.Fprintf(out, "  %s", id)
			if i < len(t.Messages) && t.Messages[i] != "" {
				fmt.Fprintf(out, ": %s", t.Messages[i])
			}
			fmt.Fprintln(out)
		}
		for _, ev := range t.Events {
			fmt.Fprintf(out, "  event %s\n", ev)
		}
		for _, c := range t.Conflicts {
			if c.Resolved {
				fmt.Fprintf(out, "  conflict %s resolved by %s -> %v\n", c.Path, c.Strategy, c.Final)
			} else {
				fmt.Fprintf(out, "  conflict %s held for %s\n", c.Path, c.Strategy)
			}
		}
	}

	state := sess.State()
	fmt.Fprintf(out, "final: zone=%s", sim.Format(state.Environment["zone"]))
	for _, id := range state.AgentIDs() {
		fmt.Fprintf(out, " %s.speed=%s", id, sim.Format(state.Agents[id].Fields["speed"]))
	}
	fmt.Fprintln(out)
}
