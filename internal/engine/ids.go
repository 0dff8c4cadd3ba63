package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// EventIDGenerator produces unique ids for spawned events.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type EventIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 event ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string. Falls back to UUIDv4 in the
// unlikely case the v7 source fails.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SequenceGenerator generates deterministic sequential ids for tests and
// golden traces: ev-000001, ev-000002, ...
type SequenceGenerator struct {
	n int
}

// Generate returns the next sequential id.
func (g *SequenceGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("ev-%06d", g.n)
}
