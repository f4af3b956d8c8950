package state

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable point-in-time capture of a trade's state.
// PreviousSnapshotID chains back to the creation snapshot with no branching;
// the creation snapshot has a nil back-reference.
type Snapshot struct {
	SnapshotID         uuid.UUID
	TradeID            string
	State              TradeState
	ProductType        string
	Timestamp          time.Time
	CausingEventID     string // Empty for the creation snapshot
	PreviousSnapshotID *uuid.UUID
	Parties            []string
	EffectiveDate      time.Time
	MaturityDate       time.Time
}

// Clone returns a deep copy so callers can never mutate stored history.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Parties = append([]string(nil), s.Parties...)
	if s.PreviousSnapshotID != nil {
		prev := *s.PreviousSnapshotID
		c.PreviousSnapshotID = &prev
	}
	return &c
}

// Transition is the append-only audit record of a single lifecycle edge.
// Created exactly once per transition; never mutated afterwards.
type Transition struct {
	TransitionID uuid.UUID
	TradeID      string
	FromState    TradeState
	ToState      TradeState
	EventID      string
	Timestamp    time.Time
	Initiator    string
	Valid        bool
}
