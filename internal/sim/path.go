package sim

import "strings"

// Root containers of the state tree. Paths are validated against this closed
// set; there is no reflection or open traversal.
const (
	ContainerAgents        = "agents"
	ContainerEnvironment   = "environment"
	ContainerGlobalMetrics = "global_metrics"
	ContainerEvents        = "events"
)

// IsPath reports whether s is syntactically a field path: two or more
// non-empty dot-separated segments rooted at a known container. Condition
// sides that fail this test are treated as literals.
func IsPath(s string) bool {
	segs := strings.Split(s, ".")
	if len(segs) < 2 {
		return false
	}
	for _, seg := range segs {
		if seg == "" {
			return false
		}
	}
	switch segs[0] {
	case ContainerAgents:
		return len(segs) == 3
	case ContainerEnvironment, ContainerGlobalMetrics, ContainerEvents:
		return len(segs) == 2
	default:
		return false
	}
}

// Resolve reads the value at a dotted path.
//
// Paths are case-sensitive; segments cannot contain dots. Shapes:
//
//	agents.{id}.{field}   -> the agent field value
//	environment.{field}   -> the environment value
//	global_metrics.{name} -> Num
//	events.{type}         -> Bool presence (false when unset, never an error)
//
// A missing agent yields UnknownAgentError; every other missing segment or
// malformed path yields UnknownPathError.
func Resolve(state *SystemState, path string) (Value, error) {
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, &UnknownPathError{Path: path, Reason: "empty segment"}
		}
	}

	switch segs[0] {
	case ContainerAgents:
		if len(segs) != 3 {
			return nil, &UnknownPathError{Path: path, Reason: "agent paths have the form agents.{id}.{field}"}
		}
		agent, ok := state.Agents[segs[1]]
		if !ok {
			return nil, &UnknownAgentError{AgentID: segs[1], Path: path}
		}
		v, ok := agent.Fields[segs[2]]
		if !ok {
			return nil, &UnknownPathError{Path: path, Reason: "agent field " + segs[2] + " is not set"}
		}
		return v, nil

	case ContainerEnvironment:
		if len(segs) != 2 {
			return nil, &UnknownPathError{Path: path, Reason: "environment paths have the form environment.{field}"}
		}
		v, ok := state.Environment[segs[1]]
		if !ok {
			return nil, &UnknownPathError{Path: path, Reason: "environment field " + segs[1] + " is not set"}
		}
		return v, nil

	case ContainerGlobalMetrics:
		if len(segs) != 2 {
			return nil, &UnknownPathError{Path: path, Reason: "metric paths have the form global_metrics.{name}"}
		}
		v, ok := state.GlobalMetrics[segs[1]]
		if !ok {
			return nil, &UnknownPathError{Path: path, Reason: "metric " + segs[1] + " is not set"}
		}
		return Num(v), nil

	case ContainerEvents:
		if len(segs) != 2 {
			return nil, &UnknownPathError{Path: path, Reason: "event paths have the form events.{type}"}
		}
		// Absent events read as false so conditions can test presence
		// without a prior spawn.
		return Bool(state.Events.Get(segs[1]) != nil), nil

	default:
		return nil, &UnknownPathError{Path: path, Reason: "unknown container " + segs[0]}
	}
}

// Write stores a value at a dotted path. Agent fields, environment fields,
// and metrics are created on first write; agents themselves are not, so a
// write under an undeclared agent id yields UnknownAgentError.
//
// The events container is owned by SPAWN_EVENT actions and rejects direct
// path writes.
func Write(state *SystemState, path string, v Value) error {
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return &UnknownPathError{Path: path, Reason: "empty segment"}
		}
	}

	switch segs[0] {
	case ContainerAgents:
		if len(segs) != 3 {
			return &UnknownPathError{Path: path, Reason: "agent paths have the form agents.{id}.{field}"}
		}
		agent, ok := state.Agents[segs[1]]
		if !ok {
			return &UnknownAgentError{AgentID: segs[1], Path: path}
		}
		agent.Fields[segs[2]] = v
		return nil

	case ContainerEnvironment:
		if len(segs) != 2 {
			return &UnknownPathError{Path: path, Reason: "environment paths have the form environment.{field}"}
		}
		state.Environment[segs[1]] = v
		return nil

	case ContainerGlobalMetrics:
		if len(segs) != 2 {
			return &UnknownPathError{Path: path, Reason: "metric paths have the form global_metrics.{name}"}
		}
		n, ok := AsNum(v)
		if !ok {
			return &TypeMismatchError{Subject: path, Want: "number", Got: TypeName(v)}
		}
		state.GlobalMetrics[segs[1]] = n
		return nil

	case ContainerEvents:
		return &UnknownPathError{Path: path, Reason: "events are written via SPAWN_EVENT, not path writes"}

	default:
		return &UnknownPathError{Path: path, Reason: "unknown container " + segs[0]}
	}
}
