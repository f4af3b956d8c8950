package core

import (
	"fmt"
	"time"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/state"
)

// ResetRecorder records floating-rate observations per calculation period.
// Resets never transition the trade's lifecycle state. Numbering is
// caller-supplied (it maps to externally defined calculation periods) but
// strictly unique per trade.
type ResetRecorder struct {
	states   *state.Store
	events   *event.Ledger
	byTrade  map[string][]*event.ResetData
	byNumber map[string]map[int64]*event.ResetData
	byEvent  map[string]*event.ResetData
}

func NewResetRecorder(states *state.Store, events *event.Ledger) *ResetRecorder {
	return &ResetRecorder{
		states:   states,
		events:   events,
		byTrade:  make(map[string][]*event.ResetData),
		byNumber: make(map[string]map[int64]*event.ResetData),
		byEvent:  make(map[string]*event.ResetData),
	}
}

// RecordReset validates and records one rate observation. The generic record
// is marked processed immediately: a stored observation has no pending side
// effects.
func (r *ResetRecorder) RecordReset(
	eventID, tradeID, payoutReference string,
	resetNumber int64,
	observation event.RateObservation,
	calculation event.ResetCalculation,
	averaging *event.Averaging,
	initiator string,
	now time.Time,
) (*Output, error) {
	data := &event.ResetData{
		EventID:         eventID,
		TradeID:         tradeID,
		PayoutReference: payoutReference,
		ResetNumber:     resetNumber,
		Observation:     observation,
		Calculation:     calculation,
		Averaging:       averaging,
	}

	snap, err := r.states.CurrentSnapshot(tradeID)
	if err != nil {
		return nil, err
	}
	if err := r.events.ValidateBasics(eventID, tradeID, calculation.PeriodEnd, snap.Parties); err != nil {
		return nil, err
	}
	if err := data.Validate(now); err != nil {
		return nil, err
	}
	if _, used := r.byNumber[tradeID][resetNumber]; used {
		return nil, fmt.Errorf("%w: trade %s reset %d", ErrResetAlreadyExists, tradeID, resetNumber)
	}
	if snap.State != state.StateActive {
		return nil, fmt.Errorf("%w: trade %s is %s", ErrTradeNotActive, tradeID, snap.State)
	}

	// Link to the reset for the preceding period number, when recorded.
	if prev, ok := r.byNumber[tradeID][resetNumber-1]; ok {
		prevID := prev.EventID
		data.PreviousResetEventID = &prevID
	}

	// Commit point.
	if r.byNumber[tradeID] == nil {
		r.byNumber[tradeID] = make(map[int64]*event.ResetData)
	}
	r.byNumber[tradeID][resetNumber] = data
	r.byTrade[tradeID] = append(r.byTrade[tradeID], data)
	r.byEvent[eventID] = data

	snapID := snap.SnapshotID
	rec := &event.Record{
		EventID:       eventID,
		Type:          event.EventTypeReset,
		Status:        event.StatusPending,
		Timestamp:     now,
		EffectiveDate: calculation.PeriodEnd,
		TradeID:       tradeID,
		Parties:       snap.Parties,
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
		Operation: "RecordReset",
		Record:    final,
		Reset:     data,
	}, nil
}

// VerifyRate sets the independent rate-confirmation flag. It does not touch
// the envelope status.
func (r *ResetRecorder) VerifyRate(eventID, verifier string) (*Output, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: reset event %s", fault.ErrNotFound, eventID)
	}
	data.RateVerified = true
	data.VerifiedBy = verifier

	return &Output{
		Operation: "VerifyRate",
		Reset:     data,
	}, nil
}

// ForTrade returns the trade's resets in recording order.
func (r *ResetRecorder) ForTrade(tradeID string) []*event.ResetData {
	resets := r.byTrade[tradeID]
	out := make([]*event.ResetData, 0, len(resets))
	for _, data := range resets {
		c := *data
		out = append(out, &c)
	}
	return out
}

// ByEvent returns the reset payload for an event id, or fault.ErrNotFound.
func (r *ResetRecorder) ByEvent(eventID string) (*event.ResetData, error) {
	data, ok := r.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: reset event %s", fault.ErrNotFound, eventID)
	}
	c := *data
	return &c, nil
}

// Count returns the number of resets recorded for a trade.
func (r *ResetRecorder) Count(tradeID string) int {
	return len(r.byTrade[tradeID])
}

// Restore replays a persisted reset payload during recovery. Payloads must be
// restored in original recording order per trade.
func (r *ResetRecorder) Restore(data *event.ResetData) {
	c := *data
	if r.byNumber[c.TradeID] == nil {
		r.byNumber[c.TradeID] = make(map[int64]*event.ResetData)
	}
	r.byNumber[c.TradeID][c.ResetNumber] = &c
	r.byTrade[c.TradeID] = append(r.byTrade[c.TradeID], &c)
	r.byEvent[c.EventID] = &c
}

func (r *ResetRecorder) unstore(data *event.ResetData) {
	delete(r.byNumber[data.TradeID], data.ResetNumber)
	delete(r.byEvent, data.EventID)
	resets := r.byTrade[data.TradeID]
	if len(resets) > 0 && resets[len(resets)-1] == data {
		r.byTrade[data.TradeID] = resets[:len(resets)-1]
	}
}
