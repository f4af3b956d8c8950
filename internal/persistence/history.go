package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"TradeLedger/internal/event"
	"TradeLedger/internal/observability"
	"TradeLedger/internal/state"
)

// Restorer is the warm-start surface of the engine: persisted rows are fed
// back in without re-running business validation.
type Restorer interface {
	RestoreSnapshot(snap *state.Snapshot)
	RestoreTransition(tr *state.Transition)
	RestoreRecord(rec *event.Record)
	RestoreExecution(data *event.ExecutionData)
	RestoreReset(data *event.ResetData)
	RestoreTransfer(data *event.TransferData)
	RestoreTermination(data *event.TerminationData)
}

// HistoryLoader hydrates the in-memory stores from Postgres on startup.
type HistoryLoader struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewHistoryLoader(db *sql.DB, log zerolog.Logger, metrics *observability.Metrics) *HistoryLoader {
	return &HistoryLoader{db: db, log: log, metrics: metrics}
}

// Load replays all persisted rows into the restorer. Tables are loaded in
// dependency order: snapshots first (they establish the trades), then
// transitions, envelopes, and finally the typed payloads. Within each table
// rows replay in original insertion order.
func (hl *HistoryLoader) Load(ctx context.Context, r Restorer) error {
	start := time.Now()

	snapshots, err := hl.loadSnapshots(ctx, r)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	transitions, err := hl.loadTransitions(ctx, r)
	if err != nil {
		return fmt.Errorf("load transitions: %w", err)
	}
	events, err := hl.loadEvents(ctx, r)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	payloads, err := hl.loadPayloads(ctx, r)
	if err != nil {
		return fmt.Errorf("load payloads: %w", err)
	}

	if hl.metrics != nil {
		hl.metrics.ReplayRowsTotal.WithLabelValues("snapshots").Add(float64(snapshots))
		hl.metrics.ReplayRowsTotal.WithLabelValues("transitions").Add(float64(transitions))
		hl.metrics.ReplayRowsTotal.WithLabelValues("events").Add(float64(events))
		hl.metrics.ReplayRowsTotal.WithLabelValues("payloads").Add(float64(payloads))
		hl.metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}

	hl.log.Info().
		Int("snapshots", snapshots).
		Int("transitions", transitions).
		Int("events", events).
		Int("payloads", payloads).
		Dur("elapsed", time.Since(start)).
		Msg("warm-start recovery complete")
	return nil
}

func (hl *HistoryLoader) loadSnapshots(ctx context.Context, r Restorer) (int, error) {
	rows, err := hl.db.QueryContext(ctx, `
		SELECT snapshot_id, trade_id, state, product_type, timestamp,
		       causing_event_id, previous_snapshot_id, parties,
		       effective_date, maturity_date
		FROM ledger.snapshots
		ORDER BY seq ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			snapshotID, tradeID, stateStr, productType, causingEventID string
			prevID                                                     *string
			parties                                                    []string
			ts, effectiveDate, maturityDate                            time.Time
		)
		if err := rows.Scan(
			&snapshotID, &tradeID, &stateStr, &productType, &ts,
			&causingEventID, &prevID, pq.Array(&parties),
			&effectiveDate, &maturityDate,
		); err != nil {
			return count, err
		}

		id, err := uuid.Parse(snapshotID)
		if err != nil {
			return count, fmt.Errorf("snapshot %s: %w", snapshotID, err)
		}
		snap := &state.Snapshot{
			SnapshotID:     id,
			TradeID:        tradeID,
			State:          state.ParseTradeState(stateStr),
			ProductType:    productType,
			Timestamp:      ts,
			CausingEventID: causingEventID,
			Parties:        parties,
			EffectiveDate:  effectiveDate,
			MaturityDate:   maturityDate,
		}
		if prevID != nil {
			prev, err := uuid.Parse(*prevID)
			if err != nil {
				return count, fmt.Errorf("snapshot %s previous: %w", snapshotID, err)
			}
			snap.PreviousSnapshotID = &prev
		}

		r.RestoreSnapshot(snap)
		count++
	}
	return count, rows.Err()
}

func (hl *HistoryLoader) loadTransitions(ctx context.Context, r Restorer) (int, error) {
	rows, err := hl.db.QueryContext(ctx, `
		SELECT transition_id, trade_id, from_state, to_state, event_id,
		       timestamp, initiator, valid
		FROM ledger.transitions
		ORDER BY seq ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			transitionID, tradeID, fromStr, toStr, eventID, initiator string
			ts                                                        time.Time
			valid                                                     bool
		)
		if err := rows.Scan(&transitionID, &tradeID, &fromStr, &toStr, &eventID, &ts, &initiator, &valid); err != nil {
			return count, err
		}

		id, err := uuid.Parse(transitionID)
		if err != nil {
			return count, fmt.Errorf("transition %s: %w", transitionID, err)
		}
		r.RestoreTransition(&state.Transition{
			TransitionID: id,
			TradeID:      tradeID,
			FromState:    state.ParseTradeState(fromStr),
			ToState:      state.ParseTradeState(toStr),
			EventID:      eventID,
			Timestamp:    ts,
			Initiator:    initiator,
			Valid:        valid,
		})
		count++
	}
	return count, rows.Err()
}

func (hl *HistoryLoader) loadEvents(ctx context.Context, r Restorer) (int, error) {
	rows, err := hl.db.QueryContext(ctx, `
		SELECT event_id, event_type, status, timestamp, effective_date,
		       trade_id, parties, initiator, before_state_id, after_state_id,
		       previous_event_id, valid, message
		FROM ledger.events
		ORDER BY seq ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			eventID, typeStr, statusStr, tradeID, initiator, message string
			parties                                                  []string
			beforeID, afterID, prevEventID                           *string
			ts, effectiveDate                                        time.Time
			valid                                                    bool
		)
		if err := rows.Scan(
			&eventID, &typeStr, &statusStr, &ts, &effectiveDate,
			&tradeID, pq.Array(&parties), &initiator, &beforeID, &afterID,
			&prevEventID, &valid, &message,
		); err != nil {
			return count, err
		}

		rec := &event.Record{
			EventID:         eventID,
			Type:            event.ParseEventType(typeStr),
			Status:          event.ParseEventStatus(statusStr),
			Timestamp:       ts,
			EffectiveDate:   effectiveDate,
			TradeID:         tradeID,
			Parties:         parties,
			Initiator:       initiator,
			PreviousEventID: prevEventID,
			Valid:           valid,
			Message:         message,
		}
		if beforeID != nil {
			id, err := uuid.Parse(*beforeID)
			if err != nil {
				return count, fmt.Errorf("event %s before state: %w", eventID, err)
			}
			rec.BeforeStateID = &id
		}
		if afterID != nil {
			id, err := uuid.Parse(*afterID)
			if err != nil {
				return count, fmt.Errorf("event %s after state: %w", eventID, err)
			}
			rec.AfterStateID = &id
		}

		r.RestoreRecord(rec)
		count++
	}
	return count, rows.Err()
}

func (hl *HistoryLoader) loadPayloads(ctx context.Context, r Restorer) (int, error) {
	rows, err := hl.db.QueryContext(ctx, `
		SELECT event_id, event_type, payload
		FROM ledger.payloads
		ORDER BY trade_id, seq ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			eventID, typeStr string
			payload          []byte
		)
		if err := rows.Scan(&eventID, &typeStr, &payload); err != nil {
			return count, err
		}

		switch event.ParseEventType(typeStr) {
		case event.EventTypeExecution:
			var data event.ExecutionData
			if err := json.Unmarshal(payload, &data); err != nil {
				return count, fmt.Errorf("execution payload %s: %w", eventID, err)
			}
			r.RestoreExecution(&data)
		case event.EventTypeReset:
			var data event.ResetData
			if err := json.Unmarshal(payload, &data); err != nil {
				return count, fmt.Errorf("reset payload %s: %w", eventID, err)
			}
			r.RestoreReset(&data)
		case event.EventTypeTransfer:
			var data event.TransferData
			if err := json.Unmarshal(payload, &data); err != nil {
				return count, fmt.Errorf("transfer payload %s: %w", eventID, err)
			}
			r.RestoreTransfer(&data)
		case event.EventTypeTermination:
			var data event.TerminationData
			if err := json.Unmarshal(payload, &data); err != nil {
				return count, fmt.Errorf("termination payload %s: %w", eventID, err)
			}
			r.RestoreTermination(&data)
		default:
			hl.log.Warn().Str("event_id", eventID).Str("type", typeStr).Msg("unknown payload type skipped")
		}
		count++
	}
	return count, rows.Err()
}
