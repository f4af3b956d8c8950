package core

import (
	"fmt"
	"time"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/state"
)

// ExecutionRecorder records a trade's single inception event and drives the
// CREATED → CONFIRMED transition. It exclusively owns the execution payload
// table; state side effects are delegated to the state store.
type ExecutionRecorder struct {
	states  *state.Store
	events  *event.Ledger
	byTrade map[string]*event.ExecutionData
	byEvent map[string]*event.ExecutionData
}

func NewExecutionRecorder(states *state.Store, events *event.Ledger) *ExecutionRecorder {
	return &ExecutionRecorder{
		states:  states,
		events:  events,
		byTrade: make(map[string]*event.ExecutionData),
		byEvent: make(map[string]*event.ExecutionData),
	}
}

// ExecuteTrade validates and records the inception event. All preconditions
// are checked before the first write, so a failure leaves no partial state.
func (r *ExecutionRecorder) ExecuteTrade(
	eventID, tradeID string,
	details event.ExecutionDetails,
	terms event.EconomicTerms,
	buyer, seller string,
	broker *string,
	tradeDate time.Time,
	now time.Time,
) (*Output, error) {
	if _, executed := r.byTrade[tradeID]; executed {
		return nil, fmt.Errorf("%w: trade %s", ErrAlreadyExecuted, tradeID)
	}

	data := &event.ExecutionData{
		EventID:   eventID,
		TradeID:   tradeID,
		Details:   details,
		Terms:     terms,
		Buyer:     buyer,
		Seller:    seller,
		Broker:    broker,
		TradeDate: tradeDate,
	}
	parties := data.InvolvedParties()

	if err := r.events.ValidateBasics(eventID, tradeID, terms.EffectiveDate, parties); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if !r.states.IsInState(tradeID, state.StateCreated) {
		current, _ := r.states.CurrentState(tradeID)
		return nil, fmt.Errorf("%w: trade %s is %s", ErrWrongTradeState, tradeID, current)
	}

	before, err := r.states.CurrentSnapshot(tradeID)
	if err != nil {
		return nil, err
	}

	// Commit point: everything below must succeed.
	r.byTrade[tradeID] = data
	r.byEvent[eventID] = data

	beforeID := before.SnapshotID
	rec := &event.Record{
		EventID:       eventID,
		Type:          event.EventTypeExecution,
		Status:        event.StatusPending,
		Timestamp:     now,
		EffectiveDate: terms.EffectiveDate,
		TradeID:       tradeID,
		Parties:       parties,
		Initiator:     buyer,
		BeforeStateID: &beforeID,
		Valid:         true,
	}
	if err := r.events.Store(rec); err != nil {
		delete(r.byTrade, tradeID)
		delete(r.byEvent, eventID)
		return nil, err
	}

	snap, transition, err := r.states.TransitionState(tradeID, state.StateConfirmed, eventID, buyer, now)
	if err != nil {
		// Unreachable given the CREATED precondition above; keep the
		// envelope honest if it ever happens.
		_ = r.events.MarkFailed(eventID, err.Error())
		return nil, err
	}

	if err := r.events.MarkProcessed(eventID, snap.SnapshotID); err != nil {
		return nil, err
	}

	final, err := r.events.Get(eventID)
	if err != nil {
		return nil, err
	}

	return &Output{
		Operation:  "ExecuteTrade",
		Record:     final,
		Snapshot:   snap,
		Transition: transition,
		Execution:  data,
	}, nil
}

// Exists reports whether the trade has an execution event.
func (r *ExecutionRecorder) Exists(tradeID string) bool {
	_, ok := r.byTrade[tradeID]
	return ok
}

// ForTrade returns the trade's execution payload, or fault.ErrNotFound.
func (r *ExecutionRecorder) ForTrade(tradeID string) (*event.ExecutionData, error) {
	data, ok := r.byTrade[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: no execution for trade %s", fault.ErrNotFound, tradeID)
	}
	c := *data
	return &c, nil
}

// Restore replays a persisted execution payload during recovery.
func (r *ExecutionRecorder) Restore(data *event.ExecutionData) {
	c := *data
	r.byTrade[c.TradeID] = &c
	r.byEvent[c.EventID] = &c
}
