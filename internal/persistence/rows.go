package persistence

import (
	"fmt"

	"TradeLedger/internal/core"
	"TradeLedger/internal/event"
	"TradeLedger/internal/state"
)

// Batch is one engine output flattened into table rows.
type Batch struct {
	Snapshots   []SnapshotRow
	Transitions []TransitionRow
	Events      []EventRow
	Payloads    []PayloadRow
}

func (b *Batch) append(other Batch) {
	b.Snapshots = append(b.Snapshots, other.Snapshots...)
	b.Transitions = append(b.Transitions, other.Transitions...)
	b.Events = append(b.Events, other.Events...)
	b.Payloads = append(b.Payloads, other.Payloads...)
}

func (b *Batch) size() int {
	return len(b.Snapshots) + len(b.Transitions) + len(b.Events) + len(b.Payloads)
}

func (b *Batch) reset() {
	b.Snapshots = b.Snapshots[:0]
	b.Transitions = b.Transitions[:0]
	b.Events = b.Events[:0]
	b.Payloads = b.Payloads[:0]
}

// RowsFromOutput flattens a committed engine output into table rows. The
// output's pointers are set per operation; rows are produced for whichever
// parts are present.
func RowsFromOutput(out core.Output) (Batch, error) {
	var b Batch

	if out.Snapshot != nil {
		b.Snapshots = append(b.Snapshots, snapshotRow(out.Snapshot))
	}
	if out.Transition != nil {
		b.Transitions = append(b.Transitions, transitionRow(out.Transition))
	}
	if out.Record != nil {
		b.Events = append(b.Events, eventRow(out.Record))
	}

	payload, err := payloadRow(out)
	if err != nil {
		return Batch{}, err
	}
	if payload != nil {
		b.Payloads = append(b.Payloads, *payload)
	}
	return b, nil
}

func snapshotRow(snap *state.Snapshot) SnapshotRow {
	var prev *string
	if snap.PreviousSnapshotID != nil {
		s := snap.PreviousSnapshotID.String()
		prev = &s
	}
	return SnapshotRow{
		SnapshotID:         snap.SnapshotID.String(),
		TradeID:            snap.TradeID,
		State:              snap.State.String(),
		ProductType:        snap.ProductType,
		Timestamp:          snap.Timestamp,
		CausingEventID:     snap.CausingEventID,
		PreviousSnapshotID: prev,
		Parties:            snap.Parties,
		EffectiveDate:      snap.EffectiveDate,
		MaturityDate:       snap.MaturityDate,
	}
}

func transitionRow(tr *state.Transition) TransitionRow {
	return TransitionRow{
		TransitionID: tr.TransitionID.String(),
		TradeID:      tr.TradeID,
		FromState:    tr.FromState.String(),
		ToState:      tr.ToState.String(),
		EventID:      tr.EventID,
		Timestamp:    tr.Timestamp,
		Initiator:    tr.Initiator,
		Valid:        tr.Valid,
	}
}

func eventRow(rec *event.Record) EventRow {
	var before, after *string
	if rec.BeforeStateID != nil {
		s := rec.BeforeStateID.String()
		before = &s
	}
	if rec.AfterStateID != nil {
		s := rec.AfterStateID.String()
		after = &s
	}
	return EventRow{
		EventID:         rec.EventID,
		EventType:       rec.Type.String(),
		Status:          rec.Status.String(),
		Timestamp:       rec.Timestamp,
		EffectiveDate:   rec.EffectiveDate,
		TradeID:         rec.TradeID,
		Parties:         rec.Parties,
		Initiator:       rec.Initiator,
		BeforeStateID:   before,
		AfterStateID:    after,
		PreviousEventID: rec.PreviousEventID,
		Valid:           rec.Valid,
		Message:         rec.Message,
	}
}

func payloadRow(out core.Output) (*PayloadRow, error) {
	var (
		eventID, eventType, tradeID string
		seq                         int64
		payload                     interface{}
	)

	switch {
	case out.Execution != nil:
		eventID, tradeID = out.Execution.EventID, out.Execution.TradeID
		eventType = event.EventTypeExecution.String()
		payload = out.Execution
	case out.Reset != nil:
		eventID, tradeID = out.Reset.EventID, out.Reset.TradeID
		eventType = event.EventTypeReset.String()
		seq = out.Reset.ResetNumber
		payload = out.Reset
	case out.Transfer != nil:
		eventID, tradeID = out.Transfer.EventID, out.Transfer.TradeID
		eventType = event.EventTypeTransfer.String()
		seq = out.Transfer.SequenceNumber
		payload = out.Transfer
	case out.Termination != nil:
		eventID, tradeID = out.Termination.EventID, out.Termination.TradeID
		eventType = event.EventTypeTermination.String()
		payload = out.Termination
	default:
		return nil, nil
	}

	data, err := MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload %s: %w", eventType, eventID, err)
	}
	return &PayloadRow{
		EventID:   eventID,
		EventType: eventType,
		TradeID:   tradeID,
		Seq:       seq,
		Payload:   data,
	}, nil
}
