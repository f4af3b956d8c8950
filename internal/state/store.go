package state

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"

	"github.com/google/uuid"
)

// Store owns the canonical current state per trade plus the full immutable
// snapshot history and transition audit trail. Snapshots are chained by
// PreviousSnapshotID; the per-trade slice is the append-only log the
// back-references index into.
//
// Not thread-safe; all mutations go through the engine's exclusive writer
// scope (see core.Engine).
type Store struct {
	trades map[string]*tradeRecord
}

type tradeRecord struct {
	current     *Snapshot
	history     []*Snapshot
	transitions []*Transition
	createdAt   time.Time
}

func NewStore() *Store {
	return &Store{
		trades: make(map[string]*tradeRecord),
	}
}

// CreateTrade registers a new trade and writes its creation snapshot as both
// the current state and the first entry of the permanent history.
func (s *Store) CreateTrade(
	tradeID string,
	productType string,
	parties []string,
	effectiveDate, maturityDate time.Time,
	now time.Time,
) (*Snapshot, error) {
	if tradeID == "" {
		return nil, fmt.Errorf("%w: trade id is empty", fault.ErrInvalidInput)
	}
	if _, exists := s.trades[tradeID]; exists {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrAlreadyExists, tradeID)
	}
	if productType == "" {
		return nil, fmt.Errorf("%w: product type unspecified for trade %s", fault.ErrInvalidInput, tradeID)
	}
	if len(parties) == 0 {
		return nil, fmt.Errorf("%w: no parties for trade %s", fault.ErrInvalidInput, tradeID)
	}
	if !maturityDate.After(effectiveDate) {
		return nil, fmt.Errorf("%w: maturity %s not after effective %s",
			fault.ErrInvalidInput, maturityDate.Format(time.RFC3339), effectiveDate.Format(time.RFC3339))
	}

	snap := &Snapshot{
		SnapshotID:    uuid.New(),
		TradeID:       tradeID,
		State:         StateCreated,
		ProductType:   productType,
		Timestamp:     now,
		Parties:       append([]string(nil), parties...),
		EffectiveDate: effectiveDate,
		MaturityDate:  maturityDate,
	}

	s.trades[tradeID] = &tradeRecord{
		current:   snap,
		history:   []*Snapshot{snap},
		createdAt: now,
	}

	return snap.Clone(), nil
}

// TransitionState moves the trade to target along a legal edge, writing a new
// snapshot (copying the immutable fields), appending a Transition audit record,
// and advancing the current pointer. The snapshot, the audit record, and the
// pointer advance happen together or not at all: all validation precedes the
// first write. Returns the new snapshot and the audit record.
func (s *Store) TransitionState(
	tradeID string,
	target TradeState,
	causingEventID string,
	initiator string,
	now time.Time,
) (*Snapshot, *Transition, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}

	from := rec.current.State
	if !from.CanTransitionTo(target) {
		return nil, nil, fmt.Errorf("%w: %s → %s for trade %s",
			fault.ErrIllegalTransition, from, target, tradeID)
	}

	prev := rec.current
	prevID := prev.SnapshotID

	snap := &Snapshot{
		SnapshotID:         uuid.New(),
		TradeID:            tradeID,
		State:              target,
		ProductType:        prev.ProductType,
		Timestamp:          now,
		CausingEventID:     causingEventID,
		PreviousSnapshotID: &prevID,
		Parties:            append([]string(nil), prev.Parties...),
		EffectiveDate:      prev.EffectiveDate,
		MaturityDate:       prev.MaturityDate,
	}

	transition := &Transition{
		TransitionID: uuid.New(),
		TradeID:      tradeID,
		FromState:    from,
		ToState:      target,
		EventID:      causingEventID,
		Timestamp:    now,
		Initiator:    initiator,
		Valid:        true,
	}

	rec.history = append(rec.history, snap)
	rec.transitions = append(rec.transitions, transition)
	rec.current = snap

	audit := *transition
	return snap.Clone(), &audit, nil
}

// IsValidTransition is the pure legality predicate, exposed for independent
// testing of the adjacency table.
func IsValidTransition(from, to TradeState) bool {
	return from.CanTransitionTo(to)
}

// --- Query surface ---

// TradeExists reports whether the trade is known to the store.
func (s *Store) TradeExists(tradeID string) bool {
	_, ok := s.trades[tradeID]
	return ok
}

// CurrentSnapshot returns a copy of the trade's current snapshot.
func (s *Store) CurrentSnapshot(tradeID string) (*Snapshot, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return rec.current.Clone(), nil
}

// CurrentState returns the trade's current lifecycle state.
func (s *Store) CurrentState(tradeID string) (TradeState, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return StateUnknown, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return rec.current.State, nil
}

// IsInState reports whether the trade's current state is one of the given states.
// An unknown trade is in no state.
func (s *Store) IsInState(tradeID string, states ...TradeState) bool {
	rec, ok := s.trades[tradeID]
	if !ok {
		return false
	}
	for _, st := range states {
		if rec.current.State == st {
			return true
		}
	}
	return false
}

// History returns copies of all snapshots for the trade in creation order.
func (s *Store) History(tradeID string) ([]*Snapshot, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	out := make([]*Snapshot, 0, len(rec.history))
	for _, snap := range rec.history {
		out = append(out, snap.Clone())
	}
	return out, nil
}

// Transitions returns the trade's transition audit trail in order.
func (s *Store) Transitions(tradeID string) ([]*Transition, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	out := make([]*Transition, 0, len(rec.transitions))
	for _, tr := range rec.transitions {
		c := *tr
		out = append(out, &c)
	}
	return out, nil
}

// TradeAge returns how long the trade has existed relative to the supplied now.
func (s *Store) TradeAge(tradeID string, now time.Time) (time.Duration, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return 0, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return now.Sub(rec.createdAt), nil
}

// IsEffective reports whether the trade's effective date has been reached.
func (s *Store) IsEffective(tradeID string, now time.Time) (bool, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return false, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return !now.Before(rec.current.EffectiveDate), nil
}

// TimeToMaturity returns the remaining time until the trade's maturity date.
// Negative once maturity has passed.
func (s *Store) TimeToMaturity(tradeID string, now time.Time) (time.Duration, error) {
	rec, ok := s.trades[tradeID]
	if !ok {
		return 0, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return rec.current.MaturityDate.Sub(now), nil
}

// TradeIDs returns all known trade ids. Order is unspecified.
func (s *Store) TradeIDs() []string {
	ids := make([]string, 0, len(s.trades))
	for id := range s.trades {
		ids = append(ids, id)
	}
	return ids
}

// --- Warm-start restore ---

// RestoreSnapshot replays a persisted snapshot into the store during recovery.
// Snapshots must be restored in original creation order per trade.
func (s *Store) RestoreSnapshot(snap *Snapshot) {
	rec, ok := s.trades[snap.TradeID]
	if !ok {
		rec = &tradeRecord{createdAt: snap.Timestamp}
		s.trades[snap.TradeID] = rec
	}
	c := snap.Clone()
	rec.history = append(rec.history, c)
	rec.current = c
}

// RestoreTransition replays a persisted transition audit record during recovery.
func (s *Store) RestoreTransition(tr *Transition) {
	rec, ok := s.trades[tr.TradeID]
	if !ok {
		return
	}
	c := *tr
	rec.transitions = append(rec.transitions, &c)
}
