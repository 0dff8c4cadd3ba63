package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/scenario"
	"github.com/driftline/tugsim/internal/store"
)

// Manager is the in-memory session store. Safe for concurrent use; each
// Session still runs its own tick pipeline single-threaded.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	archive    *store.Store
	engineOpts []engine.Option
	newID      func() string
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithArchive makes every session append its snapshots to the store.
func WithArchive(s *store.Store) ManagerOption {
	return func(m *Manager) {
		m.archive = s
	}
}

// WithEngineOptions forwards options to each session's engine, e.g. a
// deterministic event id generator for golden tests.
func WithEngineOptions(opts ...engine.Option) ManagerOption {
	return func(m *Manager) {
		m.engineOpts = opts
	}
}

// WithIDGenerator overrides session id generation. Tests use fixed ids.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = gen
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new isolated session from a named scenario.
func (m *Manager) Create(ctx context.Context, scenarioName string) (*Session, error) {
	factory, err := scenario.ByName(scenarioName)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:       m.newID(),
		Scenario: scenarioName,
		engine:   engine.New(scenario.HarborRules(), factory(), m.engineOpts...),
		archive:  m.archive,
	}

	if m.archive != nil {
		if err := m.archive.RegisterSession(ctx, s.ID, scenarioName); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("session created", "session_id", s.ID, "scenario", scenarioName)
	return s, nil
}

// Get returns a session by id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Require returns a session by id or an error.
func (m *Manager) Require(id string) (*Session, error) {
	if s := m.Get(id); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("session not found: %s", id)
}

// Reset rebuilds a session's engine from its scenario's initial state,
// dropping pending inputs and in-memory history. The archived snapshots of
// the previous run are left in the store.
func (m *Manager) Reset(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}

	factory, err := scenario.ByName(s.Scenario)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending = nil
	s.engine = engine.New(scenario.HarborRules(), factory(), m.engineOpts...)
	s.mu.Unlock()

	slog.Info("session reset", "session_id", id, "scenario", s.Scenario)
	return s, nil
}

// Delete removes a session. Idempotent.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
