package sim

import "slices"

// AgentState is one simulated agent: a stable identifier plus an open set of
// named fields. Fields have no fixed schema; they are created on first write.
type AgentState struct {
	// ID is the stable agent key. Immutable after creation.
	ID string `json:"id"`

	// Fields holds the agent's named values (speed, position_x, type, ...).
	Fields map[string]Value `json:"fields"`
}

// NewAgentState creates an agent with the given id and initial fields.
func NewAgentState(id string, fields map[string]Value) *AgentState {
	f := make(map[string]Value, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &AgentState{ID: id, Fields: f}
}

// Clone returns a deep copy of the agent.
func (a *AgentState) Clone() *AgentState {
	return NewAgentState(a.ID, a.Fields)
}

// SystemState is the authoritative simulation state.
//
// Exclusively owned by the decision engine during a tick. Everything outside
// the engine reads committed snapshots from History, never this working copy.
type SystemState struct {
	// Agents maps agent id to agent state. Agents must be declared here
	// before the first tick; rules cannot create agents.
	Agents map[string]*AgentState `json:"agents"`

	// Environment holds flat scalar fields (visibility, current_speed, ...).
	Environment map[string]Value `json:"environment"`

	// GlobalMetrics holds named numeric metrics (collision_risk, ...).
	GlobalMetrics map[string]float64 `json:"global_metrics"`

	// TimeStep increases by one per committed tick.
	TimeStep int `json:"time_step"`

	// Events is the tick-scoped event bus.
	Events *EventBus `json:"-"`

	// History is the append-only sequence of committed snapshots.
	History []*StateSnapshot `json:"-"`
}

// NewSystemState creates an empty state at tick 0.
func NewSystemState() *SystemState {
	return &SystemState{
		Agents:        make(map[string]*AgentState),
		Environment:   make(map[string]Value),
		GlobalMetrics: make(map[string]float64),
		Events:        NewEventBus(),
	}
}

// AddAgent declares an agent in the state. Later writes to
// agents.{id}.* resolve only for declared agents.
func (s *SystemState) AddAgent(a *AgentState) {
	s.Agents[a.ID] = a
}

// AgentIDs returns the declared agent ids in sorted order.
func (s *SystemState) AgentIDs() []string {
	ids := make([]string, 0, len(s.Agents))
	for id := range s.Agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a deep copy of the state tree, event bus included.
// History is shared by reference: snapshots are immutable after append, and
// copying the full history per tick would make snapshotting quadratic.
func (s *SystemState) Clone() *SystemState {
	c := &SystemState{
		Agents:        make(map[string]*AgentState, len(s.Agents)),
		Environment:   make(map[string]Value, len(s.Environment)),
		GlobalMetrics: make(map[string]float64, len(s.GlobalMetrics)),
		TimeStep:      s.TimeStep,
		Events:        s.Events.Clone(),
		History:       s.History,
	}
	for id, a := range s.Agents {
		c.Agents[id] = a.Clone()
	}
	for k, v := range s.Environment {
		c.Environment[k] = v
	}
	for k, v := range s.GlobalMetrics {
		c.GlobalMetrics[k] = v
	}
	return c
}

// WriteRequest is one buffered external input: a direct path write applied
// atomically at the start of the next tick.
type WriteRequest struct {
	Path  string
	Value Value
}
