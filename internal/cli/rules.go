package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/tugsim/internal/scenario"
	"github.com/driftline/tugsim/internal/sim"
)

// RuleSummary is one rule in the rules command's output.
type RuleSummary struct {
	ID         string `json:"id"`
	Priority   int    `json:"priority"`
	Logic      string `json:"logic"`
	Conditions int    `json:"conditions"`
	Actions    int    `json:"actions"`
	Strategy   string `json:"strategy,omitempty"`
	Template   string `json:"template,omitempty"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the harbour rule set in evaluation order",
		Long: `List every rule the engine evaluates, in evaluation order: priority
descending, declaration order breaking ties. The strategy column shows a
rule's conflict strategy override, blank means the engine default.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(rootOpts, cmd)
		},
	}
	return cmd
}

func runRules(opts *RootOptions, cmd *cobra.Command) error {
	var summaries []RuleSummary
	for _, r := range scenario.HarborRules().InEvaluationOrder() {
		s := RuleSummary{
			ID:         r.ID,
			Priority:   r.Priority,
			Logic:      string(r.EffectiveLogic()),
			Conditions: len(r.Conditions),
			Actions:    len(r.Actions),
			Strategy:   r.Metadata[sim.MetadataConflictStrategy],
			Template:   r.ExplanationTemplate,
		}
		summaries = append(summaries, s)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.JSON() {
		return f.Success(summaries)
	}

	out := cmd.OutOrStdout()
	for _, s := range summaries {
		fmt.Fprintf(out, "%-32s priority %3d  %s  %d cond, %d actions", s.ID, s.Priority, s.Logic, s.Conditions, s.Actions)
		if s.Strategy != "" {
			fmt.Fprintf(out, "  [%s]", s.Strategy)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// NewScenariosCommand creates the scenarios command.
func NewScenariosCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the selectable starting scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, cmd)
		},
	}
	return cmd
}

// ScenarioSummary is one scenario in the scenarios command's output.
type ScenarioSummary struct {
	Name   string            `json:"name"`
	Zone   string            `json:"zone"`
	Agents map[string]string `json:"agents"`
}

func runScenarios(opts *RootOptions, cmd *cobra.Command) error {
	var summaries []ScenarioSummary
	for _, name := range scenario.Names() {
		factory, err := scenario.ByName(name)
		if err != nil {
			return err
		}
		state := factory()
		s := ScenarioSummary{
			Name:   name,
			Zone:   sim.Format(state.Environment["zone"]),
			Agents: map[string]string{},
		}
		for _, id := range state.AgentIDs() {
			s.Agents[id] = sim.Format(state.Agents[id].Fields["name"])
		}
		summaries = append(summaries, s)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.JSON() {
		return f.Success(summaries)
	}

	out := cmd.OutOrStdout()
	for _, s := range summaries {
		fmt.Fprintf(out, "%-12s zone %s\n", s.Name, s.Zone)
	}
	return nil
}
