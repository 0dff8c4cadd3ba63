// Package session isolates concurrent simulation runs: each session owns
// its engine and state, so exhibit terminals cannot interfere with each
// other. Visitor inputs are buffered and applied atomically at the start of
// the next tick, never mid-tick.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/sim"
	"github.com/driftline/tugsim/internal/store"
)

// Session is one visitor's isolated simulation run.
type Session struct {
	// ID is the session's uuid.
	ID string

	// Scenario names the variant the session started from.
	Scenario string

	engine  *engine.Engine
	archive *store.Store

	mu      sync.Mutex
	pending []sim.WriteRequest
}

// QueueWrite buffers a raw path write for the next tick.
// Safe from any goroutine.
func (s *Session) QueueWrite(path string, v sim.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, sim.WriteRequest{Path: path, Value: v})
}

// AdjustSpeed buffers a speed change for one agent (the visitor's speed
// slider).
func (s *Session) AdjustSpeed(agentID string, speed float64) {
	s.QueueWrite(fmt.Sprintf("agents.%s.speed", agentID), sim.Num(speed))
}

// ChangeAngle buffers a heading change for one agent (the heading dial).
func (s *Session) ChangeAngle(agentID string, heading float64) {
	s.QueueWrite(fmt.Sprintf("agents.%s.heading", agentID), sim.Num(heading))
}

// ActivateDockingMode buffers a zone transition into the docking zone.
func (s *Session) ActivateDockingMode() {
	s.QueueWrite("environment.zone", sim.Str("docking_zone"))
}

// SensorUpdateDistance buffers a proximity sensor reading of the metres
// between the tugboat and the escorted ship.
func (s *Session) SensorUpdateDistance(metres float64) {
	s.QueueWrite("global_metrics.tugboat_cargo_distance", sim.Num(metres))
}

// EmergencyStop buffers a zero-speed write for every declared agent, in
// sorted agent order for determinism.
func (s *Session) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.engine.State().AgentIDs() {
		s.pending = append(s.pending, sim.WriteRequest{
			Path:  fmt.Sprintf("agents.%s.speed", id),
			Value: sim.Num(0),
		})
	}
}

// Step drains the buffered inputs atomically and runs one tick. When the
// session is archival, the committed snapshot is appended to the store.
//
// The engine pointer is captured under the lock: a concurrent Reset swaps
// in a fresh engine, and a Step already in flight must finish against the
// engine it started with.
func (s *Session) Step(ctx context.Context) (*engine.TickResult, error) {
	s.mu.Lock()
	inputs := s.pending
	s.pending = nil
	eng := s.engine
	s.mu.Unlock()

	res, err := eng.Step(inputs...)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.AppendSnapshot(ctx, s.ID, res.Snapshot); err != nil {
			return nil, fmt.Errorf("archive tick %d: %w", res.TimeStep, err)
		}
	}
	return res, nil
}

// current returns the session's engine under the lock, so readers never
// observe a half-swapped Reset.
func (s *Session) current() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// State exposes the session's live state for rendering. Read-only by
// convention; replay should use History.
func (s *Session) State() *sim.SystemState {
	return s.current().State()
}

// History returns the committed snapshots in tick order.
func (s *Session) History() []*sim.StateSnapshot {
	return s.current().History()
}

// SnapshotAt returns the committed snapshot for a tick number.
func (s *Session) SnapshotAt(tick int) (*sim.StateSnapshot, error) {
	return s.current().SnapshotAt(tick)
}

// PendingInputs reports the number of buffered writes. For diagnostics.
func (s *Session) PendingInputs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
