package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/observability"
	"TradeLedger/internal/state"
)

// Engine is the exclusive writer over the trade and event stores. Every
// mutation enters through one of its methods, runs under a single mutex, and
// either commits completely or leaves no trace. Committed outputs are handed
// to persistence (blocking) and projections (non-blocking).
type Engine struct {
	mu    sync.Mutex
	clock func() time.Time

	log     zerolog.Logger
	metrics *observability.Metrics

	states       *state.Store
	events       *event.Ledger
	executions   *ExecutionRecorder
	resets       *ResetRecorder
	transfers    *TransferRecorder
	terminations *TerminationRecorder

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// NewEngine wires the stores and recorders together. Either channel may be
// nil, in which case outputs on that path are discarded.
func NewEngine(
	log zerolog.Logger,
	metrics *observability.Metrics,
	persistChan, projectionChan chan<- Output,
) *Engine {
	states := state.NewStore()
	events := event.NewLedger(states)
	transfers := NewTransferRecorder(states, events)

	return &Engine{
		clock:          time.Now,
		log:            log,
		metrics:        metrics,
		states:         states,
		events:         events,
		executions:     NewExecutionRecorder(states, events),
		resets:         NewResetRecorder(states, events),
		transfers:      transfers,
		terminations:   NewTerminationRecorder(states, events, transfers),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// SetClock overrides the engine's time source. Tests use this to pin
// timestamps; production code never calls it.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// CreateTrade registers a new trade in CREATED state.
func (e *Engine) CreateTrade(
	tradeID, productType string,
	parties []string,
	effectiveDate, maturityDate time.Time,
) (*state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.states.CreateTrade(tradeID, productType, parties, effectiveDate, maturityDate, e.clock())
	if err != nil {
		e.reject("create_trade", err)
		return nil, err
	}

	e.commit("create_trade", &Output{Operation: "CreateTrade", Snapshot: snap})
	e.log.Info().Str("trade_id", tradeID).Str("product_type", productType).Msg("trade created")
	return snap.Clone(), nil
}

// SubmitTrade moves a CREATED trade to PENDING while it awaits affirmation
// from the counterparty.
func (e *Engine) SubmitTrade(tradeID, initiator string) (*state.Snapshot, error) {
	return e.advance("submit_trade", tradeID, state.StatePending, initiator)
}

// WithdrawTrade returns a PENDING trade to CREATED, e.g. when the
// counterparty rejects the submitted terms.
func (e *Engine) WithdrawTrade(tradeID, initiator string) (*state.Snapshot, error) {
	return e.advance("withdraw_trade", tradeID, state.StateCreated, initiator)
}

// ConfirmTrade advances a trade to CONFIRMED without an execution event,
// covering trades affirmed out of band.
func (e *Engine) ConfirmTrade(tradeID, initiator string) (*state.Snapshot, error) {
	return e.advance("confirm_trade", tradeID, state.StateConfirmed, initiator)
}

// ActivateTrade advances a CONFIRMED trade to ACTIVE on its effective date.
func (e *Engine) ActivateTrade(tradeID, initiator string) (*state.Snapshot, error) {
	return e.advance("activate_trade", tradeID, state.StateActive, initiator)
}

// MatureTrade advances an ACTIVE trade to MATURED. Rejected before the
// trade's scheduled maturity date.
func (e *Engine) MatureTrade(tradeID, initiator string) (*state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.states.CurrentSnapshot(tradeID)
	if err != nil {
		e.reject("mature_trade", err)
		return nil, err
	}
	now := e.clock()
	if now.Before(snap.MaturityDate) {
		err := fmt.Errorf("%w: trade %s matures at %s", fault.ErrInvalidInput,
			tradeID, snap.MaturityDate.Format(time.RFC3339))
		e.reject("mature_trade", err)
		return nil, err
	}
	return e.advanceLocked("mature_trade", tradeID, state.StateMatured, initiator, now)
}

// SettleTrade advances a MATURED or TERMINATED trade to its final SETTLED
// state once all payment obligations are discharged.
func (e *Engine) SettleTrade(tradeID, initiator string) (*state.Snapshot, error) {
	return e.advance("settle_trade", tradeID, state.StateSettled, initiator)
}

func (e *Engine) advance(op, tradeID string, target state.TradeState, initiator string) (*state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advanceLocked(op, tradeID, target, initiator, e.clock())
}

// advanceLocked performs a lifecycle transition not caused by a business
// event: the transition's causing event id is empty.
func (e *Engine) advanceLocked(op, tradeID string, target state.TradeState, initiator string, now time.Time) (*state.Snapshot, error) {
	snap, transition, err := e.states.TransitionState(tradeID, target, "", initiator, now)
	if err != nil {
		e.reject(op, err)
		return nil, err
	}

	e.commit(op, &Output{Operation: "AdvanceLifecycle", Snapshot: snap, Transition: transition})
	e.log.Info().
		Str("trade_id", tradeID).
		Str("from", transition.FromState.String()).
		Str("to", transition.ToState.String()).
		Msg("lifecycle advanced")
	return snap.Clone(), nil
}

// ExecuteTrade records the execution event for a CREATED trade and drives it
// to CONFIRMED.
func (e *Engine) ExecuteTrade(
	eventID, tradeID string,
	details event.ExecutionDetails,
	terms event.EconomicTerms,
	buyer, seller string,
	broker *string,
	tradeDate time.Time,
) (*Output, error) {
	return e.apply("execution", func(now time.Time) (*Output, error) {
		return e.executions.ExecuteTrade(eventID, tradeID, details, terms, buyer, seller, broker, tradeDate, now)
	})
}

// RecordReset records a rate reset observation for an ACTIVE trade.
func (e *Engine) RecordReset(
	eventID, tradeID, payoutReference string,
	resetNumber int64,
	observation event.RateObservation,
	calculation event.ResetCalculation,
	averaging *event.Averaging,
	initiator string,
) (*Output, error) {
	return e.apply("reset", func(now time.Time) (*Output, error) {
		return e.resets.RecordReset(eventID, tradeID, payoutReference, resetNumber, observation, calculation, averaging, initiator, now)
	})
}

// VerifyRate marks a recorded reset's observed rate as independently checked.
func (e *Engine) VerifyRate(eventID, verifier string) (*Output, error) {
	return e.apply("reset", func(time.Time) (*Output, error) {
		return e.resets.VerifyRate(eventID, verifier)
	})
}

// RecordTransfer records a payment obligation against a trade.
func (e *Engine) RecordTransfer(
	eventID, tradeID string,
	transferType event.TransferType,
	payment event.PaymentDetails,
	parties event.TransferParties,
	initiator string,
) (*Output, error) {
	return e.apply("transfer", func(now time.Time) (*Output, error) {
		return e.transfers.RecordTransfer(eventID, tradeID, transferType, payment, parties, initiator, now)
	})
}

// InitiateTransfer hands a pending transfer to the settlement network.
func (e *Engine) InitiateTransfer(eventID string) (*Output, error) {
	return e.apply("transfer", func(time.Time) (*Output, error) {
		return e.transfers.InitiateTransfer(eventID)
	})
}

// SettleTransfer marks a transfer's obligation as settled.
func (e *Engine) SettleTransfer(eventID string, settlementDate time.Time, reference string) (*Output, error) {
	return e.apply("transfer", func(time.Time) (*Output, error) {
		return e.transfers.SettleTransfer(eventID, settlementDate, reference)
	})
}

// FailTransfer marks a transfer's settlement attempt as failed.
func (e *Engine) FailTransfer(eventID, reason string) (*Output, error) {
	return e.apply("transfer", func(time.Time) (*Output, error) {
		return e.transfers.FailTransfer(eventID, reason)
	})
}

// CancelTransfer withdraws an unsettled transfer.
func (e *Engine) CancelTransfer(eventID, reason string) (*Output, error) {
	return e.apply("transfer", func(time.Time) (*Output, error) {
		return e.transfers.CancelTransfer(eventID, reason)
	})
}

// VerifyTransfer sets a transfer's independent confirmation flag.
func (e *Engine) VerifyTransfer(eventID, verifier string) (*Output, error) {
	return e.apply("transfer", func(time.Time) (*Output, error) {
		return e.transfers.VerifyTransfer(eventID, verifier)
	})
}

// TerminateTrade records an early termination and drives the trade to
// TERMINATED.
func (e *Engine) TerminateTrade(
	eventID, tradeID string,
	details event.TerminationDetails,
	payment event.TerminationPayment,
	initiator string,
) (*Output, error) {
	return e.apply("termination", func(now time.Time) (*Output, error) {
		return e.terminations.TerminateTrade(eventID, tradeID, details, payment, initiator, now)
	})
}

// ConfirmTermination marks a termination's terms as agreed by both parties.
func (e *Engine) ConfirmTermination(eventID string) (*Output, error) {
	return e.apply("termination", func(time.Time) (*Output, error) {
		return e.terminations.ConfirmTermination(eventID)
	})
}

// DisputeTermination flags a termination payment as disputed.
func (e *Engine) DisputeTermination(eventID, disputedBy, reason string) (*Output, error) {
	return e.apply("termination", func(time.Time) (*Output, error) {
		return e.terminations.DisputeTermination(eventID, disputedBy, reason)
	})
}

// LinkSettlementTransfer attaches the transfer paying out a termination and
// marks the termination settled.
func (e *Engine) LinkSettlementTransfer(eventID, transferEventID string) (*Output, error) {
	return e.apply("termination", func(time.Time) (*Output, error) {
		return e.terminations.LinkSettlementTransfer(eventID, transferEventID)
	})
}

// apply runs one recorder operation under the writer lock and routes the
// committed output.
func (e *Engine) apply(eventType string, fn func(now time.Time) (*Output, error)) (*Output, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := fn(e.clock())
	if err != nil {
		e.reject(eventType, err)
		return nil, err
	}

	e.commit(eventType, out)
	if e.metrics != nil {
		e.metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}
	return out, nil
}

// commit emits a committed output and updates engine gauges. Persistence uses
// a blocking send so no committed output is ever lost; projections use a
// non-blocking send and may drop under load, they rebuild from the event log.
func (e *Engine) commit(eventType string, out *Output) {
	out.detachPayload()
	if e.persistChan != nil {
		e.persistChan <- *out
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- *out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if e.metrics == nil {
		return
	}
	e.metrics.EventsApplied.WithLabelValues(eventType).Inc()
	if out.Transition != nil {
		e.metrics.Transitions.WithLabelValues(
			out.Transition.FromState.String(),
			out.Transition.ToState.String(),
		).Inc()
	}
	e.metrics.TradesTotal.Set(float64(len(e.states.TradeIDs())))
	e.metrics.EventsTotal.Set(float64(e.events.Count()))
}

func (e *Engine) reject(eventType string, err error) {
	if e.metrics != nil {
		e.metrics.EventsRejected.WithLabelValues(eventType, rejectionReason(err)).Inc()
	}
	e.log.Debug().Err(err).Str("event_type", eventType).Msg("operation rejected")
}

// rejectionReason buckets an error into a bounded metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, fault.ErrAlreadyExists):
		return "duplicate"
	case errors.Is(err, fault.ErrNotFound):
		return "not_found"
	case errors.Is(err, fault.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, fault.ErrWrongLifecycleStage):
		return "wrong_lifecycle_stage"
	case errors.Is(err, fault.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, fault.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

// --- Read surface ---
//
// Reads take the same lock as writes: the stores themselves are not
// thread-safe and queries must never observe a half-applied operation.

func (e *Engine) TradeExists(tradeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.TradeExists(tradeID)
}

func (e *Engine) CurrentSnapshot(tradeID string) (*state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.states.CurrentSnapshot(tradeID)
	if err != nil {
		return nil, err
	}
	return snap.Clone(), nil
}

func (e *Engine) CurrentState(tradeID string) (state.TradeState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.CurrentState(tradeID)
}

// TradeAge returns how long the trade has existed.
func (e *Engine) TradeAge(tradeID string) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.TradeAge(tradeID, e.clock())
}

// TimeToMaturity returns the remaining time until the trade's maturity date.
// Negative once maturity has passed.
func (e *Engine) TimeToMaturity(tradeID string) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.TimeToMaturity(tradeID, e.clock())
}

func (e *Engine) History(tradeID string) ([]*state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.History(tradeID)
}

func (e *Engine) Transitions(tradeID string) ([]*state.Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.Transitions(tradeID)
}

func (e *Engine) TradeIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.TradeIDs()
}

func (e *Engine) GetEvent(eventID string) (*event.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.Get(eventID)
}

func (e *Engine) EventsForTrade(tradeID string, filter event.EventType) []*event.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.ByTrade(tradeID, filter)
}

func (e *Engine) LastEvent(tradeID string) *event.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.LastEvent(tradeID)
}

func (e *Engine) EventCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.Count()
}

func (e *Engine) ExecutionForTrade(tradeID string) (*event.ExecutionData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executions.ForTrade(tradeID)
}

func (e *Engine) ResetsForTrade(tradeID string) []*event.ResetData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets.ForTrade(tradeID)
}

func (e *Engine) ResetByEvent(eventID string) (*event.ResetData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets.ByEvent(eventID)
}

func (e *Engine) TransfersForTrade(tradeID string) []*event.TransferData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transfers.ForTrade(tradeID)
}

func (e *Engine) TransferByEvent(eventID string) (*event.TransferData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transfers.ByEvent(eventID)
}

func (e *Engine) TerminationForTrade(tradeID string) (*event.TerminationData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminations.ForTrade(tradeID)
}

func (e *Engine) TerminationByEvent(eventID string) (*event.TerminationData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminations.ByEvent(eventID)
}

// --- Warm-start restore ---
//
// Restore methods hydrate the in-memory stores from persisted rows during
// startup, before the engine serves traffic. They bypass validation and emit
// nothing: the rows were validated when first committed.

func (e *Engine) RestoreSnapshot(snap *state.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states.RestoreSnapshot(snap)
}

func (e *Engine) RestoreTransition(tr *state.Transition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states.RestoreTransition(tr)
}

func (e *Engine) RestoreRecord(rec *event.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events.Restore(rec)
}

func (e *Engine) RestoreExecution(data *event.ExecutionData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions.Restore(data)
}

func (e *Engine) RestoreReset(data *event.ResetData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets.Restore(data)
}

func (e *Engine) RestoreTransfer(data *event.TransferData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transfers.Restore(data)
}

func (e *Engine) RestoreTermination(data *event.TerminationData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminations.Restore(data)
}
