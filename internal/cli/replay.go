package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/scenario"
	"github.com/driftline/tugsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional, one session only
}

// ReplaySessionResult is the verification outcome for one session.
type ReplaySessionResult struct {
	SessionID     string `json:"session_id"`
	Scenario      string `json:"scenario"`
	Ticks         int    `json:"ticks"`
	Deterministic bool   `json:"deterministic"`
	FirstMismatch int    `json:"first_mismatch,omitempty"`
}

// ReplayResult is the replay command's complete output.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run archived sessions and verify determinism",
		Long: `Re-run each archived session's scenario from its initial state and
compare the fresh canonical snapshots byte-for-byte against the archive.

A session verifies as deterministic when every archived tick matches the
re-run exactly. Sessions that were driven with manual inputs will not
verify, the archive has no record of the inputs to replay.

Exit codes:
  0 - all sessions deterministic
  1 - at least one mismatch
  2 - command error

Examples:
  tugsim replay --db ./harbour.db
  tugsim replay --db ./harbour.db --session 0198a2...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "verify one session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if opts.Session != "" {
		sessions = filterSession(sessions, opts.Session)
		if len(sessions) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
	}

	result := ReplayResult{Sessions: []ReplaySessionResult{}, AllDeterministic: true}
	for _, info := range sessions {
		res, err := verifySession(ctx, st, info)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", info.SessionID), err)
		}
		result.Sessions = append(result.Sessions, res)
		if !res.Deterministic {
			result.AllDeterministic = false
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printReplayText(cmd, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay mismatch detected")
	}
	return nil
}

// verifySession re-runs one session's scenario and compares each tick's
// canonical payloads against the archived rows.
func verifySession(ctx context.Context, st *store.Store, info store.SessionInfo) (ReplaySessionResult, error) {
	res := ReplaySessionResult{
		SessionID:     info.SessionID,
		Scenario:      info.Scenario,
		Ticks:         info.Ticks,
		Deterministic: true,
	}

	factory, err := scenario.ByName(info.Scenario)
	if err != nil {
		return res, err
	}
	eng := engine.New(scenario.HarborRules(), factory(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	ticks, err := st.ListTicks(ctx, info.SessionID)
	if err != nil {
		return res, err
	}

	for _, tickNo := range ticks {
		tick, err := eng.Step()
		if err != nil {
			return res, err
		}
		if tick.TimeStep != tickNo {
			// Gap in the archive, nothing to compare the re-run against.
			res.Deterministic = false
			res.FirstMismatch = tickNo
			return res, nil
		}

		state, explanations, conflicts, err := store.CanonicalParts(tick.Snapshot)
		if err != nil {
			return res, err
		}
		rec, err := st.ReadSnapshot(ctx, info.SessionID, tickNo)
		if err != nil {
			return res, err
		}

		if !bytes.Equal(state, rec.State) ||
			!bytes.Equal(explanations, rec.Explanations) ||
			!bytes.Equal(conflicts, rec.Conflicts) {
			res.Deterministic = false
			res.FirstMismatch = tickNo
			return res, nil
		}
	}
	return res, nil
}

func filterSession(sessions []store.SessionInfo, id string) []store.SessionInfo {
	for _, info := range sessions {
		if info.SessionID == id {
			return []store.SessionInfo{info}
		}
	}
	return nil
}

func printReplayText(cmd *cobra.Command, result ReplayResult) {
	out := cmd.OutOrStdout()
	if len(result.Sessions) == 0 {
		fmt.Fprintln(out, "No sessions archived.")
		return
	}
	for _, s := range result.Sessions {
		if s.Deterministic {
			fmt.Fprintf(out, "session %s (%s): %d ticks, deterministic\n", s.SessionID, s.Scenario, s.Ticks)
		} else {
			fmt.Fprintf(out, "session %s (%s): mismatch at tick %d\n", s.SessionID, s.Scenario, s.FirstMismatch)
		}
	}
}
