package core

import (
	"fmt"
	"time"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/state"
)

// TransferRecorder records payment obligations and tracks their settlement
// sub-state. Recording an obligation is not settlement: a transfer's generic
// record is PROCESSED immediately, while its settlement status advances
// through explicit settle/fail/cancel calls. Transfers never transition the
// trade's lifecycle state.
type TransferRecorder struct {
	states  *state.Store
	events  *event.Ledger
	byTrade map[string][]*event.TransferData
	byEvent map[string]*event.TransferData

	// Global uniqueness index for external payment references.
	byRef map[string]string // paymentReference -> eventID
}

func NewTransferRecorder(states *state.Store, events *event.Ledger) *TransferRecorder {
	return &TransferRecorder{
		states:  states,
		events:  events,
		byTrade: make(map[string][]*event.TransferData),
		byEvent: make(map[string]*event.TransferData),
		byRef:   make(map[string]string),
	}
}

// RecordTransfer validates and records a payment obligation with settlement
// status PENDING and an auto-assigned per-trade sequence number.
func (r *TransferRecorder) RecordTransfer(
	eventID, tradeID string,
	transferType event.TransferType,
	payment event.PaymentDetails,
	parties event.TransferParties,
	initiator string,
	now time.Time,
) (*Output, error) {
	data := &event.TransferData{
		EventID: eventID,
		TradeID: tradeID,
		Type:    transferType,
		Payment: payment,
		Parties: parties,
		Status:  event.SettlementPending,
	}

	snap, err := r.states.CurrentSnapshot(tradeID)
	if err != nil {
		return nil, err
	}
	if err := r.events.ValidateBasics(eventID, tradeID, payment.ValueDate, snap.Parties); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if payment.PaymentReference != nil {
		if holder, used := r.byRef[*payment.PaymentReference]; used {
			return nil, fmt.Errorf("%w: %s already used by event %s",
				ErrDuplicateReference, *payment.PaymentReference, holder)
		}
	}

	data.SequenceNumber = int64(len(r.byTrade[tradeID]) + 1)
	if prior := r.byTrade[tradeID]; len(prior) > 0 {
		prevID := prior[len(prior)-1].EventID
		data.PreviousTransferEventID = &prevID
	}

	// Commit point.
	r.byTrade[tradeID] = append(r.byTrade[tradeID], data)
	r.byEvent[eventID] = data
	if payment.PaymentReference != nil {
		r.byRef[*payment.PaymentReference] = eventID
	}

	snapID := snap.SnapshotID
	rec := &event.Record{
		EventID:       eventID,
		Type:          event.EventTypeTransfer,
		Status:        event.StatusPending,
		Timestamp:     now,
		EffectiveDate: payment.ValueDate,
		TradeID:       tradeID,
		Parties:       []string{parties.Payer, parties.Receiver},
		Initiator:     initiator,
		BeforeStateID: &snapID,
		Valid:         true,
	}
	if err := r.events.Store(rec); err != nil {
		r.unstore(data)
		return nil, err
	}
	if err := r.events.MarkProcessed(eventID, snapID); err != nil {
		return nil, err
	}

	final, err := r.events.Get(eventID)
	if err != nil {
		return nil, err
	}

	return &Output{
		Operation: "RecordTransfer",
		Record:    final,
		Transfer:  data,
	}, nil
}

// InitiateTransfer moves the settlement sub-state PENDING → INITIATED, i.e.
// the payment has been handed to the settlement network.
func (r *TransferRecorder) InitiateTransfer(eventID string) (*Output, error) {
	data, err := r.mutable(eventID)
	if err != nil {
		return nil, err
	}
	if !data.Status.CanTransitionTo(event.SettlementInitiated) {
		return nil, fmt.Errorf("%w: transfer %s is %s", fault.ErrIllegalTransition, eventID, data.Status)
	}
	data.Status = event.SettlementInitiated

	return &Output{Operation: "InitiateTransfer", Transfer: data}, nil
}

// SettleTransfer marks the obligation settled. Legal from PENDING, INITIATED,
// and FAILED (a failed payment retried through the network); rejected once
// already SETTLED.
func (r *TransferRecorder) SettleTransfer(eventID string, settlementDate time.Time, reference string) (*Output, error) {
	data, err := r.mutable(eventID)
	if err != nil {
		return nil, err
	}
	if !data.Status.CanTransitionTo(event.SettlementSettled) {
		return nil, fmt.Errorf("%w: transfer %s is %s", fault.ErrIllegalTransition, eventID, data.Status)
	}
	data.Status = event.SettlementSettled
	date := settlementDate
	data.SettlementDate = &date
	data.SettlementReference = reference

	return &Output{Operation: "SettleTransfer", Transfer: data}, nil
}

// FailTransfer marks the settlement attempt failed with a reason.
func (r *TransferRecorder) FailTransfer(eventID, reason string) (*Output, error) {
	data, err := r.mutable(eventID)
	if err != nil {
		return nil, err
	}
	if !data.Status.CanTransitionTo(event.SettlementFailed) {
		return nil, fmt.Errorf("%w: transfer %s is %s", fault.ErrIllegalTransition, eventID, data.Status)
	}
	data.Status = event.SettlementFailed
	data.FailureReason = reason

	return &Output{Operation: "FailTransfer", Transfer: data}, nil
}

// CancelTransfer withdraws the obligation before settlement.
func (r *TransferRecorder) CancelTransfer(eventID, reason string) (*Output, error) {
	data, err := r.mutable(eventID)
	if err != nil {
		return nil, err
	}
	if !data.Status.CanTransitionTo(event.SettlementCancelled) {
		return nil, fmt.Errorf("%w: transfer %s is %s", fault.ErrIllegalTransition, eventID, data.Status)
	}
	data.Status = event.SettlementCancelled
	data.FailureReason = reason

	return &Output{Operation: "CancelTransfer", Transfer: data}, nil
}

// VerifyTransfer sets the independent confirmation flag. Allowed in any
// settlement status.
func (r *TransferRecorder) VerifyTransfer(eventID, verifier string) (*Output, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer event %s", fault.ErrNotFound, eventID)
	}
	data.Verified = true
	data.VerifiedBy = verifier

	return &Output{Operation: "VerifyTransfer", Transfer: data}, nil
}

// Exists reports whether a transfer event with this id has been recorded.
func (r *TransferRecorder) Exists(eventID string) bool {
	_, ok := r.byEvent[eventID]
	return ok
}

// ForTrade returns the trade's transfers in sequence order.
func (r *TransferRecorder) ForTrade(tradeID string) []*event.TransferData {
	transfers := r.byTrade[tradeID]
	out := make([]*event.TransferData, 0, len(transfers))
	for _, data := range transfers {
		c := *data
		out = append(out, &c)
	}
	return out
}

// ByEvent returns the transfer payload for an event id, or fault.ErrNotFound.
func (r *TransferRecorder) ByEvent(eventID string) (*event.TransferData, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer event %s", fault.ErrNotFound, eventID)
	}
	c := *data
	return &c, nil
}

// Restore replays a persisted transfer payload during recovery. Payloads must
// be restored in original sequence order per trade.
func (r *TransferRecorder) Restore(data *event.TransferData) {
	c := *data
	r.byTrade[c.TradeID] = append(r.byTrade[c.TradeID], &c)
	r.byEvent[c.EventID] = &c
	if c.Payment.PaymentReference != nil {
		r.byRef[*c.Payment.PaymentReference] = c.EventID
	}
}

// mutable resolves the transfer and rejects status mutation once settled.
func (r *TransferRecorder) mutable(eventID string) (*event.TransferData, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer event %s", fault.ErrNotFound, eventID)
	}
	if data.Status == event.SettlementSettled {
		return nil, fmt.Errorf("%w: transfer %s", ErrAlreadySettled, eventID)
	}
	return data, nil
}

func (r *TransferRecorder) unstore(data *event.TransferData) {
	delete(r.byEvent, data.EventID)
	if data.Payment.PaymentReference != nil {
		delete(r.byRef, *data.Payment.PaymentReference)
	}
	transfers := r.byTrade[data.TradeID]
	if len(transfers) > 0 && transfers[len(transfers)-1] == data {
		r.byTrade[data.TradeID] = transfers[:len(transfers)-1]
	}
}
