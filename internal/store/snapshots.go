package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftline/tugsim/internal/sim"
)

// ErrNotFound indicates the requested session or tick is not archived.
var ErrNotFound = errors.New("not found")

// SessionInfo describes one archived session.
type SessionInfo struct {
	SessionID string
	Scenario  string
	Ticks     int
}

// SnapshotRecord is one archived tick, with its canonical JSON payloads.
type SnapshotRecord struct {
	SessionID    string
	TimeStep     int
	State        json.RawMessage
	Explanations json.RawMessage
	Conflicts    json.RawMessage
}

// RegisterSession records a session before its first snapshot.
// Idempotent: re-registering an existing session is a no-op.
func (s *Store) RegisterSession(ctx context.Context, sessionID, scenario string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, scenario)
		VALUES (?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, scenario)
	if err != nil {
		return fmt.Errorf("register session %s: %w", sessionID, err)
	}
	return nil
}

// CanonicalParts splits a snapshot into the three canonical JSON payloads
// the archive stores: the state tree, the explanations, and the conflicts.
// Replay verification marshals live snapshots through the same path so a
// byte comparison against archived rows is meaningful.
func CanonicalParts(snap *sim.StateSnapshot) (state, explanations, conflicts []byte, err error) {
	full := snap.Canonical()

	state, err = sim.MarshalCanonical(map[string]any{
		"time_step":      full["time_step"],
		"agents":         full["agents"],
		"environment":    full["environment"],
		"global_metrics": full["global_metrics"],
		"events":         full["events"],
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal state for tick %d: %w", snap.TimeStep, err)
	}
	explanations, err = sim.MarshalCanonical(full["explanations"])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal explanations for tick %d: %w", snap.TimeStep, err)
	}
	conflicts, err = sim.MarshalCanonical(full["conflicts"])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conflicts for tick %d: %w", snap.TimeStep, err)
	}
	return state, explanations, conflicts, nil
}

// AppendSnapshot archives one committed tick. The snapshot's state,
// explanations, and conflicts are stored as separate canonical JSON columns
// so replay and trace reads stay targeted.
//
// Idempotent via ON CONFLICT DO NOTHING: re-archiving a (session, tick)
// pair leaves the original row untouched.
func (s *Store) AppendSnapshot(ctx context.Context, sessionID string, snap *sim.StateSnapshot) error {
	state, explanations, conflicts, err := CanonicalParts(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, time_step, state, explanations, conflicts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, time_step) DO NOTHING
	`, sessionID, snap.TimeStep, string(state), string(explanations), string(conflicts))
	if err != nil {
		return fmt.Errorf("append snapshot %s/%d: %w", sessionID, snap.TimeStep, err)
	}
	return nil
}

// ReadSnapshot returns one archived tick. Returns ErrNotFound when the
// (session, tick) pair is not archived.
func (s *Store) ReadSnapshot(ctx context.Context, sessionID string, timeStep int) (*SnapshotRecord, error) {
	rec := &SnapshotRecord{SessionID: sessionID, TimeStep: timeStep}
	var state, explanations, conflicts string

	err := s.db.QueryRowContext(ctx, `
		SELECT state, explanations, conflicts
		FROM snapshots
		WHERE session_id = ? AND time_step = ?
	`, sessionID, timeStep).Scan(&state, &explanations, &conflicts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%d: %w", sessionID, timeStep, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s/%d: %w", sessionID, timeStep, err)
	}

	rec.State = json.RawMessage(state)
	rec.Explanations = json.RawMessage(explanations)
	rec.Conflicts = json.RawMessage(conflicts)
	return rec, nil
}

// ListTicks returns the archived tick numbers for a session, ascending.
func (s *Store) ListTicks(ctx context.Context, sessionID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_step FROM snapshots
		WHERE session_id = ?
		ORDER BY time_step ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list ticks for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var ticks []int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ListSessions returns every archived session with its tick count, ordered
// by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT se.session_id, se.scenario, COUNT(sn.time_step)
		FROM sessions se
		LEFT JOIN snapshots sn ON sn.session_id = se.session_id
		GROUP BY se.session_id, se.scenario
		ORDER BY se.created_at ASC, se.session_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.SessionID, &info.Scenario, &info.Ticks); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// LatestTick returns the highest archived tick for a session, or
// ErrNotFound when the session has no snapshots.
func (s *Store) LatestTick(ctx context.Context, sessionID string) (int, error) {
	var tick sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(time_step) FROM snapshots WHERE session_id = ?
	`, sessionID).Scan(&tick)
	if err != nil {
		return 0, fmt.Errorf("latest tick for %s: %w", sessionID, err)
	}
	if !tick.Valid {
		return 0, fmt.Errorf("session %s has no snapshots: %w", sessionID, ErrNotFound)
	}
	return int(tick.Int64), nil
}
