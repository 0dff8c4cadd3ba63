package engine

import (
	"fmt"
	"log/slog"

	"github.com/driftline/tugsim/internal/sim"
)

// DefaultMaxChainDepth bounds TRIGGER_RULE chaining within one tick.
// This prevents pathological rule sets from looping a tick forever.
const DefaultMaxChainDepth = 32

// Engine drives the simulation: it owns the system state, evaluates the
// rule set once per Step call, and appends one committed snapshot per tick.
//
// Thread-safety model: an Engine is not safe for concurrent use. Step runs
// the whole tick synchronously in the caller's goroutine; run independent
// engines for independent simulations.
type Engine struct {
	rules *sim.RuleSet
	state *sim.SystemState

	defaultStrategy  sim.ConflictStrategy
	maxChainDepth    int
	persistentEvents bool
	eventIDs         EventIDGenerator
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMaxChainDepth sets the per-tick TRIGGER_RULE chain bound.
//
// Default: 32 (DefaultMaxChainDepth).
// Use WithMaxChainDepth(2) for testing overflow handling.
func WithMaxChainDepth(depth int) Option {
	return func(e *Engine) {
		e.maxChainDepth = depth
	}
}

// WithConflictStrategy sets the default strategy for same-tick write
// conflicts. Rules and actions can still override it via the
// conflict_strategy metadata key. Default: PRIORITY.
func WithConflictStrategy(s sim.ConflictStrategy) Option {
	return func(e *Engine) {
		e.defaultStrategy = s
	}
}

// WithPersistentEvents keeps spawned events visible across ticks until
// overwritten, instead of clearing the bus at tick start.
func WithPersistentEvents() Option {
	return func(e *Engine) {
		e.persistentEvents = true
	}
}

// WithEventIDs sets the event id generator. Tests and golden traces use
// a SequenceGenerator for stable ids.
func WithEventIDs(gen EventIDGenerator) Option {
	return func(e *Engine) {
		e.eventIDs = gen
	}
}

// New creates an Engine over the given rule set and initial state.
// The engine takes ownership of the state; callers must not mutate it after
// construction.
func New(rules *sim.RuleSet, initial *sim.SystemState, opts ...Option) *Engine {
	e := &Engine{
		rules:           rules,
		state:           initial,
		defaultStrategy: sim.StrategyPriority,
		maxChainDepth:   DefaultMaxChainDepth,
		eventIDs:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TickResult is the committed outcome of one Step call: the output
// interface for rendering and explanation layers.
type TickResult struct {
	// TimeStep is the committed tick number.
	TimeStep int

	// Snapshot is the immutable committed state, also appended to history.
	Snapshot *sim.StateSnapshot

	// Explanations has one entry per rule evaluated, in evaluation order.
	Explanations []*sim.Explanation

	// Conflicts are the tick's resolution records, in occurrence order.
	Conflicts []*sim.ConflictRecord

	// ChainOverflow is set when TRIGGER_RULE chaining exceeded the depth
	// bound. The tick still committed.
	ChainOverflow *RuleChainOverflowError
}

// tick is the per-Step working context.
type tick struct {
	number       int
	queue        *evalQueue
	journal      *writeJournal
	explanations []*sim.Explanation
	overflow     *RuleChainOverflowError
	chainHalted  bool
}

// Step runs one tick: apply buffered inputs, evaluate the rule queue with
// chaining and conflict resolution, advance time, and commit a snapshot.
//
// Input writes are applied atomically before any rule evaluates; a failing
// input aborts the tick before it begins and returns the error. Rule-level
// failures never surface here: they abort only the failing rule's remaining
// actions and are recorded on its explanation.
func (e *Engine) Step(inputs ...sim.WriteRequest) (*TickResult, error) {
	number := e.state.TimeStep + 1

	if !e.persistentEvents {
		e.state.Events.Clear()
	}

	for _, in := range inputs {
		if err := sim.Write(e.state, in.Path, in.Value); err != nil {
			return nil, fmt.Errorf("apply input write %s: %w", in.Path, err)
		}
	}

	base := e.rules.InEvaluationOrder()
	ids := make([]string, len(base))
	for i, r := range base {
		ids[i] = r.ID
	}

	t := &tick{
		number:  number,
		queue:   newEvalQueue(ids),
		journal: newWriteJournal(e.state, e.defaultStrategy, number),
	}

	evaluated, triggered := 0, 0
	for {
		id, ok := t.queue.pop()
		if !ok {
			break
		}
		if t.queue.wasVisited(id) {
			continue
		}
		t.queue.markVisited(id)

		expl := e.evaluateRule(t, e.rules.ByID(id))
		t.explanations = append(t.explanations, expl)
		evaluated++
		if expl.Triggered {
			triggered++
		}
	}

	// Tick bookkeeping metrics accumulate across the run: triggered rules
	// and actions applied, not rules merely evaluated.
	actions := 0
	for _, expl := range t.explanations {
		actions += len(expl.ActionsApplied)
	}
	e.state.GlobalMetrics["decision_count"] += float64(actions)
	e.state.GlobalMetrics["rules_triggered_count"] += float64(triggered)

	e.state.TimeStep = number
	snap := sim.Snapshot(e.state)
	snap.Explanations = t.explanations
	snap.Conflicts = t.journal.records()
	e.state.History = append(e.state.History, snap)

	slog.Debug("tick committed",
		"tick", number,
		"evaluated", evaluated,
		"triggered", triggered,
		"conflicts", len(snap.Conflicts),
	)

	return &TickResult{
		TimeStep:      number,
		Snapshot:      snap,
		Explanations:  t.explanations,
		Conflicts:     snap.Conflicts,
		ChainOverflow: t.overflow,
	}, nil
}

// evaluateRule evaluates one rule and, when triggered, applies its actions.
// The explanation is built incrementally as work happens so that causal
// links are exact.
func (e *Engine) evaluateRule(t *tick, r *sim.Rule) *sim.Explanation {
	expl := &sim.Explanation{
		RuleID:      r.ID,
		Priority:    r.Priority,
		Timestamp:   t.number,
		LogicUsed:   r.EffectiveLogic(),
		TriggeredBy: t.queue.triggerSource(r.ID),
		Cause:       make(map[string]sim.Value),
		Effect:      make(map[string]sim.Value),
	}

	triggered, evals := evaluateAll(e.state, r.Conditions, r.EffectiveLogic())
	expl.Triggered = triggered
	expl.ConditionsEvaluated = evals

	for i, c := range r.Conditions {
		if c.Left.IsPath() && evals[i].LeftValue != nil {
			expl.Cause[c.Left.Path] = evals[i].LeftValue
		}
		if c.Right.IsPath() && evals[i].RightValue != nil {
			expl.Cause[c.Right.Path] = evals[i].RightValue
		}
	}

	if !triggered {
		return expl
	}

	for idx, a := range r.Actions {
		out := e.executeAction(t, r, idx, a, expl)
		if out.err != nil {
			out.app.Error = out.err.Error()
			expl.ActionsApplied = append(expl.ActionsApplied, out.app)
			expl.RecordSideEffect("error", "", out.err.Error(), a.Target)
			slog.Warn("action failed, aborting rule's remaining actions",
				"tick", t.number,
				"rule_id", r.ID,
				"action_index", idx,
				"error", out.err,
			)
			break
		}
		expl.ActionsApplied = append(expl.ActionsApplied, out.app)
		if out.trigger != "" {
			e.handleTrigger(t, r, out.trigger, expl)
		}
	}

	if r.ExplanationTemplate != "" {
		lookup := func(path string) (sim.Value, bool) {
			if v, ok := expl.Effect[path]; ok {
				return v, true
			}
			if v, ok := expl.Cause[path]; ok {
				return v, true
			}
			v, err := sim.Resolve(e.state, path)
			if err != nil {
				return nil, false
			}
			return v, true
		}
		msg, unresolved := expandTemplate(r.ExplanationTemplate, lookup)
		expl.Message = msg
		for _, u := range unresolved {
			expl.RecordSideEffect("unresolved_placeholder", "", "placeholder {{"+u+"}} did not resolve", "")
		}
	}

	return expl
}

// handleTrigger routes a TRIGGER_RULE request: front-push the target unless
// it already ran this tick (no-op) or the chain bound is exhausted.
func (e *Engine) handleTrigger(t *tick, r *sim.Rule, target string, expl *sim.Explanation) {
	if t.queue.wasVisited(target) || t.queue.wasPushed(target) {
		expl.RecordSideEffect("noop_retrigger", "", fmt.Sprintf("rule %s already evaluated or queued this tick, trigger ignored", target), "")
		return
	}
	if t.chainHalted {
		expl.RecordSideEffect("chain_overflow", "", fmt.Sprintf("chaining halted this tick, trigger of %s ignored", target), "")
		return
	}

	depth := t.queue.depthOf(r.ID) + 1
	if depth > e.maxChainDepth {
		overflow := &RuleChainOverflowError{RuleID: r.ID, TargetRule: target, Depth: depth, Limit: e.maxChainDepth}
		t.overflow = overflow
		t.chainHalted = true
		expl.RecordSideEffect("chain_overflow", "", overflow.Error(), "")
		slog.Error("rule chain overflow",
			"tick", t.number,
			"rule_id", r.ID,
			"target", target,
			"depth", depth,
			"limit", e.maxChainDepth,
		)
		return
	}

	t.queue.pushFront(target, r.ID, depth)
	expl.TriggeredRules = append(expl.TriggeredRules, target)
}

// State returns the engine's live state. Callers outside the engine must
// treat it as read-only; replay and inspection should prefer History.
func (e *Engine) State() *sim.SystemState {
	return e.state
}

// Rules returns the registered rule set.
func (e *Engine) Rules() *sim.RuleSet {
	return e.rules
}

// History returns the committed snapshots in tick order.
func (e *Engine) History() []*sim.StateSnapshot {
	return e.state.History
}

// SnapshotAt returns the committed snapshot for a tick number.
// Ticks are numbered from 1; out-of-range ticks are an error.
func (e *Engine) SnapshotAt(tickNumber int) (*sim.StateSnapshot, error) {
	if tickNumber < 1 || tickNumber > len(e.state.History) {
		return nil, fmt.Errorf("tick %d out of range [1, %d]", tickNumber, len(e.state.History))
	}
	return e.state.History[tickNumber-1], nil
}

// MaxChainDepth returns the configured chain bound.
// Used for diagnostics and tests.
func (e *Engine) MaxChainDepth() int {
	return e.maxChainDepth
}
