package engine

import (
	"fmt"
	"log/slog"

	"github.com/driftline/tugsim/internal/sim"
)

// actionOutcome is the result of executing one action: the application
// record for the explanation, an optional chained-rule request, and an error
// that aborts the rule's remaining actions (never the tick).
type actionOutcome struct {
	app     sim.ActionApplication
	trigger string
	err     error
}

// executeAction applies one action of a triggered rule. Write-type actions
// route through the tick's conflict journal; the committed value (post
// resolution) lands in the application record and the explanation's Effect
// map.
func (e *Engine) executeAction(t *tick, r *sim.Rule, idx int, a sim.Action, expl *sim.Explanation) actionOutcome {
	out := actionOutcome{app: sim.ActionApplication{Type: a.Type, Target: a.Target}}

	switch a.Type {
	case sim.ActionSet:
		if a.Target == "" || a.Value == nil {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "SET requires target and value"}
			return out
		}
		v, err := resolveActionValue(e.state, *a.Value)
		if err != nil {
			out.err = err
			return out
		}
		out.app.Before = currentValue(e.state, a.Target)
		final, _, err := t.journal.apply(a.Target, pathWrite{
			ruleID: r.ID, priority: r.Priority, action: a.Type,
			value: v, strategy: t.journal.strategyFor(a, r), expl: expl,
		})
		if err != nil {
			out.err = err
			return out
		}
		out.app.After = final
		expl.Effect[a.Target] = final
		return out

	case sim.ActionAdd:
		if a.Target == "" || a.Value == nil {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "ADD requires target and value"}
			return out
		}
		current, err := sim.Resolve(e.state, a.Target)
		switch {
		case err == nil:
		case sim.IsUnknownAgent(err):
			out.err = err
			return out
		case sim.IsUnknownPath(err):
			// Unset targets accumulate from zero.
			current = sim.Num(0)
		default:
			out.err = err
			return out
		}
		base, ok := sim.AsNum(current)
		if !ok {
			out.err = &sim.TypeMismatchError{Subject: a.Target, Want: "number", Got: sim.TypeName(current)}
			return out
		}
		v, err := resolveActionValue(e.state, *a.Value)
		if err != nil {
			out.err = err
			return out
		}
		delta, ok := sim.AsNum(v)
		if !ok {
			out.err = &sim.TypeMismatchError{Subject: a.Value.Describe(), Want: "number", Got: sim.TypeName(v)}
			return out
		}
		out.app.Before = current
		final, _, err := t.journal.apply(a.Target, pathWrite{
			ruleID: r.ID, priority: r.Priority, action: a.Type,
			value: sim.Num(base + delta), strategy: t.journal.strategyFor(a, r), expl: expl,
		})
		if err != nil {
			out.err = err
			return out
		}
		out.app.After = final
		expl.Effect[a.Target] = final
		return out

	case sim.ActionClamp:
		if a.Target == "" || a.MinValue == nil || a.MaxValue == nil {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "CLAMP requires target, min_value, and max_value"}
			return out
		}
		if *a.MinValue > *a.MaxValue {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: fmt.Sprintf("CLAMP min_value %v exceeds max_value %v", *a.MinValue, *a.MaxValue)}
			return out
		}
		current, err := sim.Resolve(e.state, a.Target)
		if err != nil {
			out.err = err
			return out
		}
		n, ok := sim.AsNum(current)
		if !ok {
			out.err = &sim.TypeMismatchError{Subject: a.Target, Want: "number", Got: sim.TypeName(current)}
			return out
		}
		out.app.Before = current
		final, _, err := t.journal.apply(a.Target, pathWrite{
			ruleID: r.ID, priority: r.Priority, action: a.Type,
			value:    sim.Num(clampNum(n, a.MinValue, a.MaxValue)),
			clampMin: a.MinValue, clampMax: a.MaxValue,
			strategy: t.journal.strategyFor(a, r), expl: expl,
		})
		if err != nil {
			out.err = err
			return out
		}
		out.app.After = final
		expl.Effect[a.Target] = final
		return out

	case sim.ActionRecommend:
		if a.Target == "" || a.Value == nil {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "RECOMMEND requires target and value"}
			return out
		}
		v, err := resolveActionValue(e.state, *a.Value)
		if err != nil {
			out.err = err
			return out
		}
		out.app.Before = currentValue(e.state, a.Target)
		out.app.Detail = fmt.Sprintf("recommended %s for %s", sim.Format(v), a.Target)
		expl.Recommendations = append(expl.Recommendations, sim.Recommendation{Target: a.Target, Value: v})
		return out

	case sim.ActionTriggerRule:
		if a.RuleID == "" {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "TRIGGER_RULE requires rule_id"}
			return out
		}
		if e.rules.ByID(a.RuleID) == nil {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: fmt.Sprintf("TRIGGER_RULE names unknown rule %q", a.RuleID)}
			return out
		}
		out.trigger = a.RuleID
		out.app.Detail = "trigger " + a.RuleID
		return out

	case sim.ActionSpawnEvent:
		if a.EventType == "" {
			out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: "SPAWN_EVENT requires event_type"}
			return out
		}
		severity := a.EventSeverity
		if severity == "" {
			severity = sim.SeverityNormal
		}
		ev := &sim.Event{
			ID:         e.eventIDs.Generate(),
			SourceRule: r.ID,
			Timestamp:  t.number,
			EventType:  a.EventType,
			Payload:    a.EventPayload,
			Severity:   severity,
		}
		e.state.Events.Spawn(ev)
		expl.EventsGenerated = append(expl.EventsGenerated, a.EventType)
		out.app.Detail = fmt.Sprintf("spawned %s (%s)", a.EventType, severity)
		slog.Debug("event spawned",
			"tick", t.number,
			"rule_id", r.ID,
			"event_type", a.EventType,
			"severity", string(severity),
		)
		return out

	case sim.ActionLog:
		level := a.LogLevel
		if level == "" {
			level = "info"
		}
		msg := a.LogMessage
		if a.Target != "" {
			msg = fmt.Sprintf("%s (%s=%s)", msg, a.Target, sim.Format(currentValue(e.state, a.Target)))
		}
		expl.RecordSideEffect("log", level, msg, a.Target)
		out.app.Detail = msg
		logAtLevel(level, msg, "tick", t.number, "rule_id", r.ID)
		return out

	default:
		out.err = &InvalidActionError{RuleID: r.ID, ActionIndex: idx, Reason: fmt.Sprintf("unknown action type %q", a.Type)}
		return out
	}
}

func logAtLevel(level, msg string, args ...any) {
	switch level {
	case "debug":
		slog.Debug(msg, args...)
	case "warning", "warn":
		slog.Warn(msg, args...)
	case "error":
		slog.Error(msg, args...)
	default:
		slog.Info(msg, args...)
	}
}
