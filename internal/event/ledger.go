package event

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"

	"github.com/google/uuid"
)

// TradeChecker is the slice of the state store the ledger needs: existence of
// the trade an event references. Injected to keep this package independent of
// the state package.
type TradeChecker interface {
	TradeExists(tradeID string) bool
}

// Ledger owns the generic event records: the global table keyed by event id
// and the per-trade ordered lists the backward links index into.
//
// Not thread-safe; all mutations go through the engine's exclusive writer
// scope (see core.Engine).
type Ledger struct {
	records []*Record
	byID    map[string]*Record
	byTrade map[string][]*Record
	trades  TradeChecker
}

func NewLedger(trades TradeChecker) *Ledger {
	return &Ledger{
		byID:    make(map[string]*Record),
		byTrade: make(map[string][]*Record),
		trades:  trades,
	}
}

// ValidateBasics runs the envelope-level preconditions shared by every event
// kind: unused event id, known trade, non-empty parties, usable effective
// date. Forward-dating is enforced separately (ValidateForwardDated) because
// resets legitimately reference past observation periods.
func (l *Ledger) ValidateBasics(eventID, tradeID string, effectiveDate time.Time, parties []string) error {
	if eventID == "" {
		return fmt.Errorf("%w: event id is empty", fault.ErrInvalidInput)
	}
	if _, exists := l.byID[eventID]; exists {
		return fmt.Errorf("%w: event %s", fault.ErrAlreadyExists, eventID)
	}
	if !l.trades.TradeExists(tradeID) {
		return fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	if len(parties) == 0 {
		return fmt.Errorf("%w: event %s has no involved parties", fault.ErrInvalidInput, eventID)
	}
	if effectiveDate.IsZero() {
		return fmt.Errorf("%w: event %s has no effective date", fault.ErrInvalidInput, eventID)
	}
	return nil
}

// ValidateForwardDated rejects effective dates in the past, for the event
// kinds that schedule forward-dated business effects.
func (l *Ledger) ValidateForwardDated(eventID string, effectiveDate, now time.Time) error {
	if effectiveDate.Before(now) {
		return fmt.Errorf("%w: event %s effective date %s precedes now",
			fault.ErrInvalidInput, eventID, effectiveDate.Format(time.RFC3339))
	}
	return nil
}

// Store appends the record to the global table and the trade's ordered list,
// setting the per-trade backward link. Visible to queries immediately.
func (l *Ledger) Store(rec *Record) error {
	if _, exists := l.byID[rec.EventID]; exists {
		return fmt.Errorf("%w: event %s", fault.ErrAlreadyExists, rec.EventID)
	}

	c := rec.Clone()
	if prior := l.byTrade[c.TradeID]; len(prior) > 0 {
		prevID := prior[len(prior)-1].EventID
		c.PreviousEventID = &prevID
	}

	l.records = append(l.records, c)
	l.byID[c.EventID] = c
	l.byTrade[c.TradeID] = append(l.byTrade[c.TradeID], c)
	return nil
}

// MarkProcessed sets the terminal PROCESSED status and records the snapshot
// the event resulted in. Terminal statuses are immutable: re-invocation fails.
func (l *Ledger) MarkProcessed(eventID string, afterStateID uuid.UUID) error {
	rec, ok := l.byID[eventID]
	if !ok {
		return fmt.Errorf("%w: event %s", fault.ErrNotFound, eventID)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: event %s is %s", fault.ErrAlreadyTerminal, eventID, rec.Status)
	}
	rec.Status = StatusProcessed
	rec.AfterStateID = &afterStateID
	return nil
}

// MarkFailed sets the terminal FAILED status with the failure reason.
func (l *Ledger) MarkFailed(eventID, reason string) error {
	rec, ok := l.byID[eventID]
	if !ok {
		return fmt.Errorf("%w: event %s", fault.ErrNotFound, eventID)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: event %s is %s", fault.ErrAlreadyTerminal, eventID, rec.Status)
	}
	rec.Status = StatusFailed
	rec.Valid = false
	rec.Message = reason
	return nil
}

// --- Query surface ---

// Get returns a copy of the record, or fault.ErrNotFound.
func (l *Ledger) Get(eventID string) (*Record, error) {
	rec, ok := l.byID[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", fault.ErrNotFound, eventID)
	}
	return rec.Clone(), nil
}

// Exists reports whether the event id has been used.
func (l *Ledger) Exists(eventID string) bool {
	_, ok := l.byID[eventID]
	return ok
}

// ByTrade returns the trade's events in recording order, optionally filtered
// by type (EventTypeUnknown means no filter).
func (l *Ledger) ByTrade(tradeID string, filter EventType) []*Record {
	var out []*Record
	for _, rec := range l.byTrade[tradeID] {
		if filter != EventTypeUnknown && rec.Type != filter {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

// LastEvent returns the most recent event for the trade, or nil if none.
func (l *Ledger) LastEvent(tradeID string) *Record {
	recs := l.byTrade[tradeID]
	if len(recs) == 0 {
		return nil
	}
	return recs[len(recs)-1].Clone()
}

// IsProcessed reports whether the event reached PROCESSED.
func (l *Ledger) IsProcessed(eventID string) bool {
	rec, ok := l.byID[eventID]
	return ok && rec.Status == StatusProcessed
}

// Count returns the number of records in the global table.
func (l *Ledger) Count() int {
	return len(l.records)
}

// --- Warm-start restore ---

// Restore replays a persisted record into the ledger during recovery,
// preserving its stored status and links. Records must be restored in
// original recording order.
func (l *Ledger) Restore(rec *Record) {
	c := rec.Clone()
	l.records = append(l.records, c)
	l.byID[c.EventID] = c
	l.byTrade[c.TradeID] = append(l.byTrade[c.TradeID], c)
}
