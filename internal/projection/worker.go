package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/event"
	"TradeLedger/internal/observability"
)

// Worker updates read-optimized projection tables from committed engine
// outputs. The projection channel is non-blocking with drop: if this worker
// falls behind, projections go stale and are rebuilt from the ledger.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, log zerolog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log,
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a failed update is
				// logged and skipped, not retried.
				w.log.Warn().Err(err).Str("operation", output.Operation).Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output core.Output) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Snapshot != nil {
		if err := w.updateTradeStatus(ctx, tx, output); err != nil {
			return fmt.Errorf("trade status projection: %w", err)
		}
	}
	if output.Transfer != nil {
		if err := w.updateCashflow(ctx, tx, output.Transfer); err != nil {
			return fmt.Errorf("cashflow projection: %w", err)
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (id, updated_at)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, now); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.ProjectionUpdateDur.WithLabelValues(projectionName(output)).Observe(time.Since(start).Seconds())
		w.metrics.ProjectionWatermark.Set(float64(now.Unix()))
	}
	return nil
}

func (w *Worker) updateTradeStatus(ctx context.Context, tx *sql.Tx, output core.Output) error {
	snap := output.Snapshot
	lastEventID := ""
	if output.Record != nil {
		lastEventID = output.Record.EventID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.trade_status
			(trade_id, state, product_type, parties, effective_date, maturity_date, last_event_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trade_id) DO UPDATE SET
			state = EXCLUDED.state,
			last_event_id = EXCLUDED.last_event_id,
			updated_at = EXCLUDED.updated_at
	`, snap.TradeID, snap.State.String(), snap.ProductType, pq.Array(snap.Parties),
		snap.EffectiveDate, snap.MaturityDate, lastEventID, snap.Timestamp)
	return err
}

func (w *Worker) updateCashflow(ctx context.Context, tx *sql.Tx, transfer *event.TransferData) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.cashflows
			(event_id, trade_id, transfer_type, direction, gross_amount, net_amount,
			 currency, value_date, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
	`, transfer.EventID, transfer.TradeID, transfer.Type.String(),
		transfer.Payment.Direction.String(), transfer.Payment.GrossAmount,
		transfer.Payment.NetAmount, transfer.Payment.Currency,
		transfer.Payment.ValueDate, transfer.Status.String())
	return err
}

func projectionName(output core.Output) string {
	switch {
	case output.Transfer != nil:
		return "cashflows"
	case output.Snapshot != nil:
		return "trade_status"
	default:
		return "watermark"
	}
}

// Rebuild repopulates the projection tables from the ledger. Used when the
// worker dropped outputs under load or the tables were truncated.
func (w *Worker) Rebuild(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.trade_status
			(trade_id, state, product_type, parties, effective_date, maturity_date, last_event_id, updated_at)
		SELECT DISTINCT ON (trade_id)
			trade_id, state, product_type, parties, effective_date, maturity_date,
			causing_event_id, timestamp
		FROM ledger.snapshots
		ORDER BY trade_id, seq DESC
		ON CONFLICT (trade_id) DO UPDATE SET
			state = EXCLUDED.state,
			last_event_id = EXCLUDED.last_event_id,
			updated_at = EXCLUDED.updated_at
	`); err != nil {
		return fmt.Errorf("rebuild trade status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.cashflows
			(event_id, trade_id, transfer_type, direction, gross_amount, net_amount,
			 currency, value_date, status, updated_at)
		SELECT
			event_id, trade_id,
			payload->>'Type',
			payload->'Payment'->>'Direction',
			(payload->'Payment'->>'GrossAmount')::BIGINT,
			(payload->'Payment'->>'NetAmount')::BIGINT,
			payload->'Payment'->>'Currency',
			(payload->'Payment'->>'ValueDate')::TIMESTAMPTZ,
			payload->>'Status',
			NOW()
		FROM ledger.payloads
		WHERE event_type = 'Transfer'
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
	`); err != nil {
		return fmt.Errorf("rebuild cashflows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (id, updated_at)
		VALUES (1, NOW())
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
	`); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	return tx.Commit()
}
