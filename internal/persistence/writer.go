package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// LedgerWriter writes snapshots, transitions, events, and event payloads to
// Postgres using multi-row statements. Append-only tables use ON CONFLICT DO
// NOTHING; the event and payload tables upsert because status changes re-emit
// the same row with new mutable fields.
type LedgerWriter struct {
	db *sql.DB
}

// SnapshotRow represents a row in ledger.snapshots.
type SnapshotRow struct {
	SnapshotID         string
	TradeID            string
	State              string
	ProductType        string
	Timestamp          time.Time
	CausingEventID     string
	PreviousSnapshotID *string
	Parties            []string
	EffectiveDate      time.Time
	MaturityDate       time.Time
}

// TransitionRow represents a row in ledger.transitions.
type TransitionRow struct {
	TransitionID string
	TradeID      string
	FromState    string
	ToState      string
	EventID      string
	Timestamp    time.Time
	Initiator    string
	Valid        bool
}

// EventRow represents a row in ledger.events.
type EventRow struct {
	EventID         string
	EventType       string
	Status          string
	Timestamp       time.Time
	EffectiveDate   time.Time
	TradeID         string
	Parties         []string
	Initiator       string
	BeforeStateID   *string
	AfterStateID    *string
	PreviousEventID *string
	Valid           bool
	Message         string
}

// PayloadRow represents a row in ledger.payloads: the typed business payload
// of one event, JSON-encoded. Seq orders payloads per trade for replay.
type PayloadRow struct {
	EventID   string
	EventType string
	TradeID   string
	Seq       int64
	Payload   []byte
}

func NewLedgerWriter(db *sql.DB) *LedgerWriter {
	return &LedgerWriter{db: db}
}

// WriteSnapshotBatch writes snapshots to ledger.snapshots. Snapshots are
// immutable, so a conflicting write is always a replay of the same row.
func (w *LedgerWriter) WriteSnapshotBatch(ctx context.Context, tx *sql.Tx, rows []SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.snapshots
		(snapshot_id, trade_id, state, product_type, timestamp, causing_event_id,
		 previous_snapshot_id, parties, effective_date, maturity_date)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)

	for i, r := range rows {
		values = append(values, placeholders(i*10, 10))
		args = append(args,
			r.SnapshotID, r.TradeID, r.State, r.ProductType, r.Timestamp,
			r.CausingEventID, r.PreviousSnapshotID, pq.Array(r.Parties),
			r.EffectiveDate, r.MaturityDate,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (snapshot_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteTransitionBatch writes transition audit rows to ledger.transitions.
func (w *LedgerWriter) WriteTransitionBatch(ctx context.Context, tx *sql.Tx, rows []TransitionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.transitions
		(transition_id, trade_id, from_state, to_state, event_id, timestamp, initiator, valid)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)

	for i, r := range rows {
		values = append(values, placeholders(i*8, 8))
		args = append(args,
			r.TransitionID, r.TradeID, r.FromState, r.ToState,
			r.EventID, r.Timestamp, r.Initiator, r.Valid,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (transition_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEventBatch upserts event envelopes into ledger.events. Only the fields
// mutated by the status lifecycle are updated on conflict.
func (w *LedgerWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.events
		(event_id, event_type, status, timestamp, effective_date, trade_id, parties,
		 initiator, before_state_id, after_state_id, previous_event_id, valid, message)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*13)

	for i, r := range rows {
		values = append(values, placeholders(i*13, 13))
		args = append(args,
			r.EventID, r.EventType, r.Status, r.Timestamp, r.EffectiveDate,
			r.TradeID, pq.Array(r.Parties), r.Initiator, r.BeforeStateID,
			r.AfterStateID, r.PreviousEventID, r.Valid, r.Message,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (event_id) DO UPDATE SET
		status = EXCLUDED.status,
		after_state_id = EXCLUDED.after_state_id,
		valid = EXCLUDED.valid,
		message = EXCLUDED.message`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WritePayloadBatch upserts typed payloads into ledger.payloads. Transfers
// and terminations mutate their payload through sub-state changes, so the
// payload column is replaced on conflict.
func (w *LedgerWriter) WritePayloadBatch(ctx context.Context, tx *sql.Tx, rows []PayloadRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.payloads
		(event_id, event_type, trade_id, seq, payload)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		values = append(values, placeholders(i*5, 5))
		args = append(args, r.EventID, r.EventType, r.TradeID, r.Seq, r.Payload)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (event_id) DO UPDATE SET payload = EXCLUDED.payload"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($n, $n+1, ...)" for one row of width cols starting
// after base arguments.
func placeholders(base, cols int) string {
	parts := make([]string, cols)
	for i := 0; i < cols; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MarshalPayload JSON-encodes a typed event payload for storage.
func MarshalPayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
