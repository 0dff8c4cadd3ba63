package engine

import (
	"fmt"
	"log/slog"

	"github.com/driftline/tugsim/internal/sim"
)

// pathWrite is one write routed through the conflict journal.
type pathWrite struct {
	ruleID   string
	priority int
	action   sim.ActionType

	// value is the value this write computed (post ADD arithmetic, post
	// CLAMP bounding). It may lose the conflict and never reach state.
	value sim.Value

	// clampMin/clampMax carry the CLAMP range for MERGE intersection.
	clampMin *float64
	clampMax *float64

	strategy sim.ConflictStrategy
	expl     *sim.Explanation
}

// journalEntry tracks the write history of one path within a tick.
type journalEntry struct {
	path string

	// baseline is the path's value at tick start (nil if unset).
	baseline sim.Value

	// preClamp is the value observed before the first CLAMP this tick;
	// merged clamp ranges re-apply to it.
	preClamp sim.Value

	writes []pathWrite

	// winner indexes writes; under PRIORITY and LAST_WRITE_WINS its value
	// is the currently committed one.
	winner int

	// committed is the value currently in state for this path. It tracks
	// merged results, which belong to no single write.
	committed sim.Value

	// mergedMin/mergedMax is the active clamp range after MERGE
	// intersections, nil until a CLAMP writes this path.
	mergedMin *float64
	mergedMax *float64

	// manualHold freezes the path after a MANUAL_REVIEW resolution.
	manualHold bool
}

// writeJournal routes all rule writes to state, detecting same-tick
// collisions and resolving them per strategy. The journal commits winners to
// state immediately so later reads in the same tick observe resolved values.
//
// INVARIANT: after the tick, every journaled path holds exactly one final
// value regardless of how many actions targeted it.
type writeJournal struct {
	state           *sim.SystemState
	defaultStrategy sim.ConflictStrategy
	tick            int

	entries map[string]*journalEntry
	order   []string // paths in first-write order

	conflicts []*sim.ConflictRecord
}

func newWriteJournal(state *sim.SystemState, defaultStrategy sim.ConflictStrategy, tick int) *writeJournal {
	return &writeJournal{
		state:           state,
		defaultStrategy: defaultStrategy,
		tick:            tick,
		entries:         make(map[string]*journalEntry),
	}
}

// strategyFor resolves the conflict strategy for a write: action metadata,
// then rule metadata, then the engine default.
func (j *writeJournal) strategyFor(a sim.Action, r *sim.Rule) sim.ConflictStrategy {
	if s, ok := a.Metadata[sim.MetadataConflictStrategy]; ok && s != "" {
		return sim.ConflictStrategy(s)
	}
	if s, ok := r.Metadata[sim.MetadataConflictStrategy]; ok && s != "" {
		return sim.ConflictStrategy(s)
	}
	return j.defaultStrategy
}

// apply routes one write. Returns the value committed at the path after any
// conflict resolution, plus the conflict record when this write collided.
func (j *writeJournal) apply(path string, w pathWrite) (sim.Value, *sim.ConflictRecord, error) {
	entry, exists := j.entries[path]
	if !exists {
		current, _ := sim.Resolve(j.state, path)

		// Commit before journaling: a failed write must leave no trace, so
		// other rules' writes to the path do not resolve against it.
		if err := sim.Write(j.state, path, w.value); err != nil {
			return nil, nil, err
		}

		entry = &journalEntry{path: path, baseline: current, committed: w.value}
		if w.action == sim.ActionClamp {
			entry.preClamp = current
			entry.mergedMin = w.clampMin
			entry.mergedMax = w.clampMax
		}
		entry.writes = []pathWrite{w}
		entry.winner = 0
		j.entries[path] = entry
		j.order = append(j.order, path)
		return w.value, nil, nil
	}

	// Same-tick collision: resolve per the incoming write's strategy.
	entry.writes = append(entry.writes, w)
	record, final, err := j.resolve(entry, w)
	j.conflicts = append(j.conflicts, record)

	for _, prev := range entry.writes {
		if prev.expl != nil {
			noteConflict(prev.expl, path)
		}
	}

	slog.Debug("write conflict resolved",
		"path", path,
		"strategy", string(record.ResolutionStrategy),
		"rules", record.ConflictingRules,
		"resolved", record.Resolved,
	)

	if err != nil {
		return nil, record, err
	}
	return final, record, nil
}

// resolve applies one strategy to an entry whose latest write collided.
func (j *writeJournal) resolve(entry *journalEntry, w pathWrite) (*sim.ConflictRecord, sim.Value, error) {
	record := &sim.ConflictRecord{
		Timestamp:          j.tick,
		Path:               entry.path,
		ResolutionStrategy: w.strategy,
		Resolved:           true,
	}
	for _, pw := range entry.writes {
		record.ConflictingRules = append(record.ConflictingRules, pw.ruleID)
		record.ConflictingActions = append(record.ConflictingActions, sim.ConflictingWrite{
			RuleID:   pw.ruleID,
			Priority: pw.priority,
			Action:   pw.action,
			Value:    pw.value,
		})
	}

	if entry.manualHold {
		record.ResolutionStrategy = sim.StrategyManualReview
		record.Resolved = false
		record.Resolution = sim.Resolution{
			FinalValue: entry.committed,
			Note:       "path held for manual review, write ignored",
		}
		return record, entry.committed, nil
	}

	switch w.strategy {
	case sim.StrategyLastWriteWins:
		if err := j.commit(entry, w.value); err != nil {
			failCommit(record, entry, err)
			return record, nil, err
		}
		entry.winner = len(entry.writes) - 1
		record.Resolution = sim.Resolution{
			FinalValue: w.value,
			WinnerRule: w.ruleID,
			Note:       "most recent write kept",
		}
		return record, w.value, nil

	case sim.StrategyMerge:
		final, note, mergeErr := j.merge(entry, w)
		if mergeErr != nil {
			// No merge policy applies: fall back to PRIORITY and record
			// both the error and the fallback.
			final, winner, incomingWon := resolveByPriority(entry, w)
			if err := j.commit(entry, final); err != nil {
				failCommit(record, entry, err)
				return record, nil, err
			}
			if incomingWon {
				entry.winner = len(entry.writes) - 1
			}
			record.Resolution = sim.Resolution{
				FinalValue: final,
				WinnerRule: winner,
				Note:       fmt.Sprintf("%v; fell back to PRIORITY", mergeErr),
			}
			return record, final, mergeErr
		}
		if err := j.commit(entry, final); err != nil {
			failCommit(record, entry, err)
			return record, nil, err
		}
		record.Resolution = sim.Resolution{
			FinalValue: final,
			Merged:     true,
			Note:       note,
		}
		return record, final, nil

	case sim.StrategyManualReview:
		entry.manualHold = true
		record.Resolved = false
		if entry.baseline != nil {
			if err := j.commit(entry, entry.baseline); err != nil {
				failCommit(record, entry, err)
				return record, nil, err
			}
			record.Resolution = sim.Resolution{
				FinalValue: entry.baseline,
				Note:       "restored tick-start value pending manual review",
			}
			return record, entry.baseline, nil
		}
		// Unset at tick start: nothing to restore, so the earliest write
		// stays committed and the record reports the value actually held.
		record.Resolution = sim.Resolution{
			FinalValue: entry.committed,
			Note:       "path unset at tick start, earliest write held pending manual review",
		}
		return record, entry.committed, nil

	default: // PRIORITY, also the fallback for unknown strategies
		record.ResolutionStrategy = sim.StrategyPriority
		final, winner, incomingWon := resolveByPriority(entry, w)
		if err := j.commit(entry, final); err != nil {
			failCommit(record, entry, err)
			return record, nil, err
		}
		if incomingWon {
			entry.winner = len(entry.writes) - 1
		}
		record.Resolution = sim.Resolution{
			FinalValue: final,
			WinnerRule: winner,
			Note:       "higher priority write kept",
		}
		return record, final, nil
	}
}

// failCommit marks a record whose resolution could not be committed. The
// colliding write is forgotten so it cannot win a later conflict on the
// path, and the previously committed value stays in place.
func failCommit(record *sim.ConflictRecord, entry *journalEntry, err error) {
	entry.writes = entry.writes[:len(entry.writes)-1]
	record.Resolved = false
	record.Resolution = sim.Resolution{
		FinalValue: entry.committed,
		Note:       fmt.Sprintf("resolution failed to commit: %v", err),
	}
}

// resolveByPriority keeps the higher-priority write; on ties the earlier
// applied write wins. Reports whether the incoming write won so the caller
// can move the winner index after a successful commit.
func resolveByPriority(entry *journalEntry, w pathWrite) (sim.Value, string, bool) {
	cur := entry.writes[entry.winner]
	if w.priority > cur.priority {
		return w.value, w.ruleID, true
	}
	return cur.value, cur.ruleID, false
}

// merge combines the incoming write with the entry's committed result.
// CLAMP vs CLAMP intersects ranges and re-applies to the pre-clamp value;
// CLAMP vs numeric bounds the scalar; numeric vs numeric averages.
func (j *writeJournal) merge(entry *journalEntry, w pathWrite) (sim.Value, string, error) {
	haveRange := entry.mergedMin != nil || entry.mergedMax != nil

	switch {
	case w.action == sim.ActionClamp && haveRange:
		lo := maxPtr(entry.mergedMin, w.clampMin)
		hi := minPtr(entry.mergedMax, w.clampMax)
		if lo != nil && hi != nil && *lo > *hi {
			return nil, "", &UnmergeableConflictError{
				Path:   entry.path,
				Reason: fmt.Sprintf("clamp ranges do not intersect ([%v] vs [%v])", fmtRange(entry.mergedMin, entry.mergedMax), fmtRange(w.clampMin, w.clampMax)),
			}
		}
		entry.mergedMin, entry.mergedMax = lo, hi
		base, ok := sim.AsNum(entry.preClamp)
		if !ok {
			return nil, "", &UnmergeableConflictError{Path: entry.path, Reason: "clamped value is not numeric"}
		}
		final := sim.Num(clampNum(base, lo, hi))
		return final, fmt.Sprintf("intersected clamp ranges to [%s]", fmtRange(lo, hi)), nil

	case w.action == sim.ActionClamp:
		// Clamp the committed scalar, which may itself be a merged result.
		cur, ok := sim.AsNum(entry.committed)
		if !ok {
			return nil, "", &UnmergeableConflictError{Path: entry.path, Reason: "cannot clamp a non-numeric write"}
		}
		entry.preClamp = entry.committed
		entry.mergedMin, entry.mergedMax = w.clampMin, w.clampMax
		final := sim.Num(clampNum(cur, w.clampMin, w.clampMax))
		return final, fmt.Sprintf("clamped earlier write to [%s]", fmtRange(w.clampMin, w.clampMax)), nil

	case haveRange:
		// An earlier CLAMP bounds the incoming scalar.
		n, ok := sim.AsNum(w.value)
		if !ok {
			return nil, "", &UnmergeableConflictError{Path: entry.path, Reason: "cannot clamp a non-numeric write"}
		}
		final := sim.Num(clampNum(n, entry.mergedMin, entry.mergedMax))
		return final, fmt.Sprintf("bounded scalar write to [%s]", fmtRange(entry.mergedMin, entry.mergedMax)), nil

	default:
		// Average against the committed value so each successive write
		// folds into the running merge, not back into the first write.
		a, okA := sim.AsNum(entry.committed)
		b, okB := sim.AsNum(w.value)
		if !okA || !okB {
			return nil, "", &UnmergeableConflictError{
				Path:   entry.path,
				Reason: fmt.Sprintf("no merge policy for %s vs %s", sim.TypeName(entry.committed), sim.TypeName(w.value)),
			}
		}
		return sim.Num((a + b) / 2), "averaged numeric writes", nil
	}
}

func (j *writeJournal) commit(entry *journalEntry, v sim.Value) error {
	if err := sim.Write(j.state, entry.path, v); err != nil {
		return err
	}
	entry.committed = v
	return nil
}

// records returns the tick's conflict records in occurrence order.
func (j *writeJournal) records() []*sim.ConflictRecord {
	return j.conflicts
}

func noteConflict(e *sim.Explanation, path string) {
	for _, p := range e.ConflictsEncountered {
		if p == path {
			return
		}
	}
	e.ConflictsEncountered = append(e.ConflictsEncountered, path)
}

func currentValue(state *sim.SystemState, path string) sim.Value {
	v, _ := sim.Resolve(state, path)
	return v
}

func clampNum(n float64, lo, hi *float64) float64 {
	if lo != nil && n < *lo {
		n = *lo
	}
	if hi != nil && n > *hi {
		n = *hi
	}
	return n
}

func maxPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a >= *b {
		return a
	}
	return b
}

func minPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a <= *b {
		return a
	}
	return b
}

func fmtRange(lo, hi *float64) string {
	l, h := "-inf", "+inf"
	if lo != nil {
		l = sim.Format(sim.Num(*lo))
	}
	if hi != nil {
		h = sim.Format(sim.Num(*hi))
	}
	return l + ", " + h
}
