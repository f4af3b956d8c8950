package core

import (
	"fmt"
	"time"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/state"
)

// TransferChecker is the view of transfer records the termination recorder
// needs when linking a termination payment to its settlement transfer.
type TransferChecker interface {
	Exists(eventID string) bool
}

// TerminationRecorder records early terminations. A trade admits at most one
// termination event; recording one drives the trade's lifecycle to TERMINATED.
type TerminationRecorder struct {
	states    *state.Store
	events    *event.Ledger
	transfers TransferChecker
	byTrade   map[string]*event.TerminationData
	byEvent   map[string]*event.TerminationData
}

func NewTerminationRecorder(states *state.Store, events *event.Ledger, transfers TransferChecker) *TerminationRecorder {
	return &TerminationRecorder{
		states:    states,
		events:    events,
		transfers: transfers,
		byTrade:   make(map[string]*event.TerminationData),
		byEvent:   make(map[string]*event.TerminationData),
	}
}

// TerminateTrade validates and records an early termination, transitioning
// the trade to TERMINATED. Only ACTIVE and CONFIRMED trades can terminate.
func (r *TerminationRecorder) TerminateTrade(
	eventID, tradeID string,
	details event.TerminationDetails,
	payment event.TerminationPayment,
	initiator string,
	now time.Time,
) (*Output, error) {
	if existing, ok := r.byTrade[tradeID]; ok {
		return nil, fmt.Errorf("%w: trade %s terminated by event %s",
			ErrTradeAlreadyTerminated, tradeID, existing.EventID)
	}

	data := &event.TerminationData{
		EventID: eventID,
		TradeID: tradeID,
		Details: details,
		Payment: payment,
		Status:  event.TerminationPending,
	}

	snap, err := r.states.CurrentSnapshot(tradeID)
	if err != nil {
		return nil, err
	}
	if err := r.events.ValidateBasics(eventID, tradeID, details.TerminationDate, snap.Parties); err != nil {
		return nil, err
	}
	if err := r.events.ValidateForwardDated(eventID, details.TerminationDate, now); err != nil {
		return nil, err
	}
	if err := data.Validate(now); err != nil {
		return nil, err
	}
	if snap.State != state.StateActive && snap.State != state.StateConfirmed {
		return nil, fmt.Errorf("%w: trade %s is %s", ErrTradeNotActive, tradeID, snap.State)
	}

	// Commit point.
	r.byTrade[tradeID] = data
	r.byEvent[eventID] = data

	// ZERO-method terminations carry no payment pair; fall back to the
	// trade's parties so the envelope stays attributable.
	parties := []string{payment.Payer, payment.Receiver}
	if payment.Payer == "" && payment.Receiver == "" {
		parties = snap.Parties
	}

	beforeID := snap.SnapshotID
	rec := &event.Record{
		EventID:       eventID,
		Type:          event.EventTypeTermination,
		Status:        event.StatusPending,
		Timestamp:     now,
		EffectiveDate: details.TerminationDate,
		TradeID:       tradeID,
		Parties:       parties,
		Initiator:     initiator,
		BeforeStateID: &beforeID,
		Valid:         true,
	}
	if err := r.events.Store(rec); err != nil {
		delete(r.byTrade, tradeID)
		delete(r.byEvent, eventID)
		return nil, err
	}

	newSnap, transition, err := r.states.TransitionState(tradeID, state.StateTerminated, eventID, initiator, now)
	if err != nil {
		_ = r.events.MarkFailed(eventID, err.Error())
		return nil, err
	}
	if err := r.events.MarkProcessed(eventID, newSnap.SnapshotID); err != nil {
		return nil, err
	}

	final, err := r.events.Get(eventID)
	if err != nil {
		return nil, err
	}

	return &Output{
		Operation:   "TerminateTrade",
		Record:      final,
		Snapshot:    newSnap,
		Transition:  transition,
		Termination: data,
	}, nil
}

// ConfirmTermination moves the termination record to CONFIRMED, meaning both
// parties have agreed the termination terms.
func (r *TerminationRecorder) ConfirmTermination(eventID string) (*Output, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: termination event %s", fault.ErrNotFound, eventID)
	}
	if data.Status == event.TerminationSettled {
		return nil, fmt.Errorf("%w: termination %s", ErrAlreadySettled, eventID)
	}
	data.Status = event.TerminationConfirmed

	return &Output{Operation: "ConfirmTermination", Termination: data}, nil
}

// DisputeTermination flags the termination payment as disputed. A dispute can
// be raised in any status, including after settlement.
func (r *TerminationRecorder) DisputeTermination(eventID, disputedBy, reason string) (*Output, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: termination event %s", fault.ErrNotFound, eventID)
	}
	data.Status = event.TerminationDisputed
	data.Payment.IsDisputed = true
	data.Payment.DisputedBy = disputedBy
	data.Payment.DisputeReason = reason

	return &Output{Operation: "DisputeTermination", Termination: data}, nil
}

// LinkSettlementTransfer attaches the transfer event that pays out the
// termination amount and marks the termination SETTLED. The trade's lifecycle
// state is untouched: moving TERMINATED to SETTLED is a separate lifecycle
// advance.
func (r *TerminationRecorder) LinkSettlementTransfer(eventID, transferEventID string) (*Output, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: termination event %s", fault.ErrNotFound, eventID)
	}
	if data.Status == event.TerminationSettled {
		return nil, fmt.Errorf("%w: termination %s", ErrAlreadySettled, eventID)
	}
	if !r.transfers.Exists(transferEventID) {
		return nil, fmt.Errorf("%w: transfer event %s", fault.ErrNotFound, transferEventID)
	}
	tid := transferEventID
	data.SettlementTransferEventID = &tid
	data.Status = event.TerminationSettled

	return &Output{Operation: "LinkSettlementTransfer", Termination: data}, nil
}

// ForTrade returns the trade's termination record if one exists.
func (r *TerminationRecorder) ForTrade(tradeID string) (*event.TerminationData, error) {
	data, ok := r.byTrade[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: no termination for trade %s", fault.ErrNotFound, tradeID)
	}
	c := *data
	return &c, nil
}

// ByEvent returns the termination payload for an event id.
func (r *TerminationRecorder) ByEvent(eventID string) (*event.TerminationData, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: termination event %s", fault.ErrNotFound, eventID)
	}
	c := *data
	return &c, nil
}

// Restore replays a persisted termination payload during recovery.
func (r *TerminationRecorder) Restore(data *event.TerminationData) {
	c := *data
	r.byTrade[c.TradeID] = &c
	r.byEvent[c.EventID] = &c
}
