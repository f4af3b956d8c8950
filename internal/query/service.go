package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"TradeLedger/internal/fault"
)

// Service provides read-only access to the projection tables and to the
// persisted ledger for integrity checks. Responses carry the projection
// watermark so callers can reason about freshness.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetTradeStatus returns the projected status of one trade.
func (s *Service) GetTradeStatus(ctx context.Context, tradeID string) (*TradeStatusResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT trade_id, state, product_type, parties, effective_date,
		       maturity_date, last_event_id, updated_at
		FROM projections.trade_status
		WHERE trade_id = $1
	`, tradeID)

	resp := TradeStatusResponse{AsOf: asOf}
	err = row.Scan(&resp.TradeID, &resp.State, &resp.ProductType,
		pq.Array(&resp.Parties), &resp.EffectiveDate, &resp.MaturityDate,
		&resp.LastEventID, &resp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTrades returns projected trade statuses, optionally filtered by state.
func (s *Service) ListTrades(ctx context.Context, stateFilter string) ([]TradeStatusResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT trade_id, state, product_type, parties, effective_date,
		       maturity_date, last_event_id, updated_at
		FROM projections.trade_status`
	args := []interface{}{}
	if stateFilter != "" {
		query += ` WHERE state = $1`
		args = append(args, stateFilter)
	}
	query += ` ORDER BY trade_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeStatusResponse
	for rows.Next() {
		resp := TradeStatusResponse{AsOf: asOf}
		if err := rows.Scan(&resp.TradeID, &resp.State, &resp.ProductType,
			pq.Array(&resp.Parties), &resp.EffectiveDate, &resp.MaturityDate,
			&resp.LastEventID, &resp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// ListCashflows returns the projected cashflows of one trade.
func (s *Service) ListCashflows(ctx context.Context, tradeID string) ([]CashflowResponse, error) {
	return s.cashflows(ctx, `
		SELECT event_id, trade_id, transfer_type, direction, gross_amount,
		       net_amount, currency, value_date, status
		FROM projections.cashflows
		WHERE trade_id = $1
		ORDER BY value_date, event_id
	`, tradeID)
}

// UpcomingCashflows returns unsettled cashflows with value dates in the
// half-open window [from, to).
func (s *Service) UpcomingCashflows(ctx context.Context, from, to time.Time) ([]CashflowResponse, error) {
	return s.cashflows(ctx, `
		SELECT event_id, trade_id, transfer_type, direction, gross_amount,
		       net_amount, currency, value_date, status
		FROM projections.cashflows
		WHERE value_date >= $1 AND value_date < $2
		  AND status IN ('PENDING', 'INITIATED')
		ORDER BY value_date, event_id
	`, from, to)
}

func (s *Service) cashflows(ctx context.Context, query string, args ...interface{}) ([]CashflowResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CashflowResponse
	for rows.Next() {
		resp := CashflowResponse{AsOf: asOf}
		if err := rows.Scan(&resp.EventID, &resp.TradeID, &resp.TransferType,
			&resp.Direction, &resp.GrossAmount, &resp.NetAmount,
			&resp.Currency, &resp.ValueDate, &resp.Status); err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// VerifyChain walks a trade's persisted snapshots in insertion order and
// checks that every snapshot's back-reference points at its predecessor.
func (s *Service) VerifyChain(ctx context.Context, tradeID string) (*ChainReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, previous_snapshot_id
		FROM ledger.snapshots
		WHERE trade_id = $1
		ORDER BY seq ASC
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &ChainReport{TradeID: tradeID, Intact: true}
	var prevID string
	for rows.Next() {
		var snapshotID string
		var backRef *string
		if err := rows.Scan(&snapshotID, &backRef); err != nil {
			return nil, err
		}

		if report.Snapshots == 0 {
			if backRef != nil {
				report.Intact = false
				report.BrokenAt = snapshotID
			}
		} else if report.Intact {
			if backRef == nil || *backRef != prevID {
				report.Intact = false
				report.BrokenAt = snapshotID
			}
		}

		prevID = snapshotID
		report.Snapshots++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if report.Snapshots == 0 {
		return nil, fmt.Errorf("%w: trade %s", fault.ErrNotFound, tradeID)
	}
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (time.Time, error) {
	var asOf time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM projections.watermark WHERE id = 1`).Scan(&asOf)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return asOf, err
}
