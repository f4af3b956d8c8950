package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/state"
)

var (
	baseTime  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	effective = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	maturity  = time.Date(2031, 3, 4, 0, 0, 0, 0, time.UTC)
)

// --- Test helpers ---

// newTestEngine creates an Engine with buffered channels, no metrics, and a
// clock pinned to baseTime.
func newTestEngine(t *testing.T) (*core.Engine, chan core.Output, chan core.Output) {
	t.Helper()
	persistChan := make(chan core.Output, 1024)
	projChan := make(chan core.Output, 1024)
	e := core.NewEngine(zerolog.Nop(), nil, persistChan, projChan)
	e.SetClock(func() time.Time { return baseTime })
	return e, persistChan, projChan
}

func mustCreateTrade(t *testing.T, e *core.Engine, tradeID string) {
	t.Helper()
	_, err := e.CreateTrade(tradeID, "InterestRateSwap",
		[]string{"BANK-A", "BANK-B"}, effective, maturity)
	if err != nil {
		t.Fatalf("CreateTrade(%s) failed: %v", tradeID, err)
	}
}

func mustExecute(t *testing.T, e *core.Engine, eventID, tradeID string) {
	t.Helper()
	_, err := e.ExecuteTrade(eventID, tradeID,
		event.ExecutionDetails{Venue: "OTC", Price: 102_50, Timestamp: baseTime},
		event.EconomicTerms{
			Notional:      10_000_000_00,
			Currency:      "USD",
			EffectiveDate: effective,
			MaturityDate:  maturity,
		},
		"BANK-A", "BANK-B", nil, baseTime)
	if err != nil {
		t.Fatalf("ExecuteTrade(%s) failed: %v", eventID, err)
	}
}

// mustActivate brings a freshly created trade to ACTIVE via execution.
func mustActivate(t *testing.T, e *core.Engine, eventID, tradeID string) {
	t.Helper()
	mustExecute(t, e, eventID, tradeID)
	if _, err := e.ActivateTrade(tradeID, "BANK-A"); err != nil {
		t.Fatalf("ActivateTrade(%s) failed: %v", tradeID, err)
	}
}

func mustRecordTransfer(t *testing.T, e *core.Engine, eventID, tradeID string, ref *string) {
	t.Helper()
	_, err := e.RecordTransfer(eventID, tradeID, event.TransferTypeInterest,
		event.PaymentDetails{
			GrossAmount:      131_250_00,
			NetAmount:        131_250_00,
			Currency:         "USD",
			Direction:        event.DirectionPay,
			ValueDate:        baseTime.AddDate(0, 0, 2),
			PaymentReference: ref,
		},
		event.TransferParties{Payer: "BANK-A", Receiver: "BANK-B"},
		"BANK-A")
	if err != nil {
		t.Fatalf("RecordTransfer(%s) failed: %v", eventID, err)
	}
}

func mustTerminate(t *testing.T, e *core.Engine, eventID, tradeID string) {
	t.Helper()
	_, err := e.TerminateTrade(eventID, tradeID,
		event.TerminationDetails{
			Type:             event.TerminationMutualAgreement,
			TerminationDate:  baseTime.AddDate(0, 0, 30),
			NotificationDate: baseTime,
			Reason:           "portfolio compression",
		},
		event.TerminationPayment{
			Method:   event.CalcMethodAgreedAmount,
			Value:    250_000_00,
			Currency: "USD",
			Payer:    "BANK-A",
			Receiver: "BANK-B",
		},
		"BANK-A")
	if err != nil {
		t.Fatalf("TerminateTrade(%s) failed: %v", eventID, err)
	}
}

func drainOutputs(ch chan core.Output) []core.Output {
	var outputs []core.Output
	for {
		select {
		case out := <-ch:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

// --- Lifecycle ---

func TestExecuteTrade_ConfirmsCreatedTrade(t *testing.T) {
	e, persistCh, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	drainOutputs(persistCh)

	out, err := e.ExecuteTrade("exec-1", "IRS-001",
		event.ExecutionDetails{Venue: "OTC", Price: 102_50, Timestamp: baseTime},
		event.EconomicTerms{
			Notional:      10_000_000_00,
			Currency:      "USD",
			EffectiveDate: effective,
			MaturityDate:  maturity,
		},
		"BANK-A", "BANK-B", nil, baseTime)
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	if out.Snapshot.State != state.StateConfirmed {
		t.Errorf("expected CONFIRMED, got %s", out.Snapshot.State)
	}
	if out.Record.Status != event.StatusProcessed {
		t.Errorf("expected PROCESSED envelope, got %s", out.Record.Status)
	}
	if out.Transition == nil || out.Transition.EventID != "exec-1" {
		t.Errorf("transition must name the causing event")
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 persist output, got %d", len(outputs))
	}
	if outputs[0].Operation != "ExecuteTrade" {
		t.Errorf("wrong operation: %s", outputs[0].Operation)
	}
}

func TestExecuteTrade_SecondExecution_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustExecute(t, e, "exec-1", "IRS-001")

	_, err := e.ExecuteTrade("exec-2", "IRS-001",
		event.ExecutionDetails{Venue: "OTC", Price: 103_00, Timestamp: baseTime},
		event.EconomicTerms{
			Notional:      10_000_000_00,
			Currency:      "USD",
			EffectiveDate: effective,
			MaturityDate:  maturity,
		},
		"BANK-A", "BANK-B", nil, baseTime)
	if !errors.Is(err, core.ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
}

func TestExecuteTrade_UnknownTrade_Fails(t *testing.T) {
	e, persistCh, _ := newTestEngine(t)

	_, err := e.ExecuteTrade("exec-1", "NOPE",
		event.ExecutionDetails{Venue: "OTC", Price: 102_50, Timestamp: baseTime},
		event.EconomicTerms{
			Notional:      10_000_000_00,
			Currency:      "USD",
			EffectiveDate: effective,
			MaturityDate:  maturity,
		},
		"BANK-A", "BANK-B", nil, baseTime)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Rejections emit nothing downstream.
	if outputs := drainOutputs(persistCh); len(outputs) != 0 {
		t.Errorf("rejected operation must not emit outputs, got %d", len(outputs))
	}
}

func TestMatureTrade_BeforeMaturity_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")

	_, err := e.MatureTrade("IRS-001", "BANK-A")
	if !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput before maturity, got %v", err)
	}

	e.SetClock(func() time.Time { return maturity.AddDate(0, 0, 1) })
	snap, err := e.MatureTrade("IRS-001", "BANK-A")
	if err != nil {
		t.Fatalf("MatureTrade at maturity failed: %v", err)
	}
	if snap.State != state.StateMatured {
		t.Errorf("expected MATURED, got %s", snap.State)
	}
}

func TestFullLifecycle_ExecuteActivateMatureSettle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")

	e.SetClock(func() time.Time { return maturity.AddDate(0, 0, 1) })
	if _, err := e.MatureTrade("IRS-001", "BANK-A"); err != nil {
		t.Fatalf("MatureTrade failed: %v", err)
	}
	snap, err := e.SettleTrade("IRS-001", "BANK-A")
	if err != nil {
		t.Fatalf("SettleTrade failed: %v", err)
	}
	if snap.State != state.StateSettled {
		t.Errorf("expected SETTLED, got %s", snap.State)
	}

	// SETTLED is terminal.
	if _, err := e.ActivateTrade("IRS-001", "BANK-A"); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition from SETTLED, got %v", err)
	}

	hist, _ := e.History("IRS-001")
	if len(hist) != 5 { // CREATED, CONFIRMED, ACTIVE, MATURED, SETTLED
		t.Errorf("expected 5 snapshots, got %d", len(hist))
	}
}

func TestTradeAgeAndTimeToMaturity(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")

	e.SetClock(func() time.Time { return baseTime.AddDate(0, 0, 10) })
	age, err := e.TradeAge("IRS-001")
	if err != nil {
		t.Fatalf("TradeAge failed: %v", err)
	}
	if age != 10*24*time.Hour {
		t.Errorf("age: got %s, want 240h", age)
	}
	ttm, err := e.TimeToMaturity("IRS-001")
	if err != nil {
		t.Fatalf("TimeToMaturity failed: %v", err)
	}
	if ttm != maturity.Sub(baseTime.AddDate(0, 0, 10)) {
		t.Errorf("time to maturity: got %s", ttm)
	}

	if _, err := e.TradeAge("NOPE"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitWithdraw_PendingRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")

	snap, err := e.SubmitTrade("IRS-001", "BANK-A")
	if err != nil {
		t.Fatalf("SubmitTrade failed: %v", err)
	}
	if snap.State != state.StatePending {
		t.Errorf("expected PENDING, got %s", snap.State)
	}

	// A pending submission can be withdrawn back to CREATED.
	snap, err = e.WithdrawTrade("IRS-001", "BANK-A")
	if err != nil {
		t.Fatalf("WithdrawTrade failed: %v", err)
	}
	if snap.State != state.StateCreated {
		t.Errorf("expected CREATED after withdrawal, got %s", snap.State)
	}

	// Withdrawal only applies to PENDING trades.
	if _, err := e.WithdrawTrade("IRS-001", "BANK-A"); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition withdrawing a CREATED trade, got %v", err)
	}

	if _, err := e.SubmitTrade("IRS-001", "BANK-B"); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	snap, err = e.ConfirmTrade("IRS-001", "BANK-B")
	if err != nil {
		t.Fatalf("ConfirmTrade failed: %v", err)
	}
	if snap.State != state.StateConfirmed {
		t.Errorf("expected CONFIRMED, got %s", snap.State)
	}
}

// --- Resets ---

func mustRecordReset(t *testing.T, e *core.Engine, eventID, tradeID string, number int64) {
	t.Helper()
	_, err := e.RecordReset(eventID, tradeID, "LEG-FLOAT-1", number,
		event.RateObservation{
			ObservedRate:    52_500_000,
			ObservationDate: baseTime.AddDate(0, 0, -1),
			RateIndex:       "USD-SOFR",
		},
		event.ResetCalculation{
			PeriodStart: baseTime.AddDate(0, -3, 0),
			PeriodEnd:   baseTime,
			Notional:    10_000_000_00,
			Accrual:     131_250_00,
		},
		nil, "BANK-A")
	if err != nil {
		t.Fatalf("RecordReset(%s) failed: %v", eventID, err)
	}
}

func TestRecordReset_RequiresActiveTrade(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustExecute(t, e, "exec-1", "IRS-001") // CONFIRMED, not ACTIVE

	_, err := e.RecordReset("reset-1", "IRS-001", "LEG-FLOAT-1", 1,
		event.RateObservation{
			ObservedRate:    52_500_000,
			ObservationDate: baseTime.AddDate(0, 0, -1),
			RateIndex:       "USD-SOFR",
		},
		event.ResetCalculation{
			PeriodStart: baseTime.AddDate(0, -3, 0),
			PeriodEnd:   baseTime,
			Notional:    10_000_000_00,
			Accrual:     131_250_00,
		},
		nil, "BANK-A")
	if !errors.Is(err, core.ErrTradeNotActive) {
		t.Fatalf("expected ErrTradeNotActive, got %v", err)
	}
}

func TestRecordReset_DuplicateNumber_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordReset(t, e, "reset-1", "IRS-001", 1)

	// Same number under a fresh event id is still a duplicate.
	_, err := e.RecordReset("reset-2", "IRS-001", "LEG-FLOAT-1", 1,
		event.RateObservation{
			ObservedRate:    53_000_000,
			ObservationDate: baseTime.AddDate(0, 0, -1),
			RateIndex:       "USD-SOFR",
		},
		event.ResetCalculation{
			PeriodStart: baseTime.AddDate(0, -3, 0),
			PeriodEnd:   baseTime,
			Notional:    10_000_000_00,
			Accrual:     131_250_00,
		},
		nil, "BANK-A")
	if !errors.Is(err, core.ErrResetAlreadyExists) {
		t.Fatalf("expected ErrResetAlreadyExists, got %v", err)
	}
}

func TestRecordReset_LinksPreviousNumber(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordReset(t, e, "reset-1", "IRS-001", 1)
	mustRecordReset(t, e, "reset-2", "IRS-001", 2)
	mustRecordReset(t, e, "reset-5", "IRS-001", 5) // Numbering need not be contiguous

	second, err := e.ResetByEvent("reset-2")
	if err != nil {
		t.Fatalf("ResetByEvent failed: %v", err)
	}
	if second.PreviousResetEventID == nil || *second.PreviousResetEventID != "reset-1" {
		t.Errorf("reset 2 must back-link reset 1")
	}

	fifth, _ := e.ResetByEvent("reset-5")
	if fifth.PreviousResetEventID != nil {
		t.Errorf("reset 5 has no recorded reset 4, back-link must be nil")
	}
}

func TestVerifyRate_SetsFlagWithoutTouchingEnvelope(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordReset(t, e, "reset-1", "IRS-001", 1)

	if _, err := e.VerifyRate("reset-1", "AUDIT-DESK"); err != nil {
		t.Fatalf("VerifyRate failed: %v", err)
	}

	data, _ := e.ResetByEvent("reset-1")
	if !data.RateVerified || data.VerifiedBy != "AUDIT-DESK" {
		t.Errorf("verification flag not set: %+v", data)
	}

	rec, _ := e.GetEvent("reset-1")
	if rec.Status != event.StatusProcessed {
		t.Errorf("verification must not change the envelope status, got %s", rec.Status)
	}
}

// --- Transfers ---

func TestRecordTransfer_AssignsSequenceNumbers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)
	mustRecordTransfer(t, e, "xfer-2", "IRS-001", nil)

	transfers := e.TransfersForTrade("IRS-001")
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].SequenceNumber != 1 || transfers[1].SequenceNumber != 2 {
		t.Errorf("sequence numbers wrong: %d, %d",
			transfers[0].SequenceNumber, transfers[1].SequenceNumber)
	}
	if transfers[1].PreviousTransferEventID == nil || *transfers[1].PreviousTransferEventID != "xfer-1" {
		t.Errorf("second transfer must back-link the first")
	}
}

func TestRecordTransfer_DuplicatePaymentReference_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustCreateTrade(t, e, "IRS-002")
	mustActivate(t, e, "exec-2", "IRS-002")

	ref := "PAY-REF-42"
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", &ref)

	// Uniqueness is global, even across trades.
	_, err := e.RecordTransfer("xfer-2", "IRS-002", event.TransferTypeInterest,
		event.PaymentDetails{
			GrossAmount:      100_00,
			NetAmount:        100_00,
			Currency:         "USD",
			Direction:        event.DirectionPay,
			ValueDate:        baseTime.AddDate(0, 0, 2),
			PaymentReference: &ref,
		},
		event.TransferParties{Payer: "BANK-A", Receiver: "BANK-B"},
		"BANK-A")
	if !errors.Is(err, core.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestSettleTransfer_DoubleSettle_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	settleDate := baseTime.AddDate(0, 0, 2)
	if _, err := e.SettleTransfer("xfer-1", settleDate, "SWIFT-123"); err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}

	data, _ := e.TransferByEvent("xfer-1")
	if data.Status != event.SettlementSettled {
		t.Errorf("expected SETTLED, got %s", data.Status)
	}
	if data.SettlementReference != "SWIFT-123" {
		t.Errorf("settlement reference not recorded")
	}

	_, err := e.SettleTransfer("xfer-1", settleDate, "SWIFT-124")
	if !errors.Is(err, core.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestFailedTransfer_CanRetryToSettled(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	if _, err := e.InitiateTransfer("xfer-1"); err != nil {
		t.Fatalf("InitiateTransfer failed: %v", err)
	}
	if _, err := e.FailTransfer("xfer-1", "account closed"); err != nil {
		t.Fatalf("FailTransfer failed: %v", err)
	}

	data, _ := e.TransferByEvent("xfer-1")
	if data.Status != event.SettlementFailed || data.FailureReason != "account closed" {
		t.Fatalf("failure not recorded: %+v", data)
	}

	// FAILED -> SETTLED is the retry path.
	if _, err := e.SettleTransfer("xfer-1", baseTime.AddDate(0, 0, 3), "SWIFT-200"); err != nil {
		t.Fatalf("retry settle failed: %v", err)
	}
}

func TestCancelTransfer_AfterSettle_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	e.SettleTransfer("xfer-1", baseTime.AddDate(0, 0, 2), "SWIFT-123")

	_, err := e.CancelTransfer("xfer-1", "changed our minds")
	if !errors.Is(err, core.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestVerifyTransfer_AllowedInAnyStatus(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	e.SettleTransfer("xfer-1", baseTime.AddDate(0, 0, 2), "SWIFT-123")

	if _, err := e.VerifyTransfer("xfer-1", "RECON-DESK"); err != nil {
		t.Fatalf("VerifyTransfer on settled transfer failed: %v", err)
	}
	data, _ := e.TransferByEvent("xfer-1")
	if !data.Verified || data.VerifiedBy != "RECON-DESK" {
		t.Errorf("verification not recorded: %+v", data)
	}
}

func TestRecordTransfer_DoesNotAdvanceLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)
	e.SettleTransfer("xfer-1", baseTime.AddDate(0, 0, 2), "SWIFT-123")

	cur, _ := e.CurrentState("IRS-001")
	if cur != state.StateActive {
		t.Errorf("transfer settlement must not move the trade, got %s", cur)
	}
}

func TestTerminateTrade_ZeroMethod_EnvelopeCarriesTradeParties(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")

	_, err := e.TerminateTrade("term-1", "IRS-001",
		event.TerminationDetails{
			Type:             event.TerminationMutualAgreement,
			TerminationDate:  baseTime.AddDate(0, 0, 30),
			NotificationDate: baseTime,
			Reason:           "offsetting positions",
		},
		event.TerminationPayment{Method: event.CalcMethodZero, Currency: "USD"},
		"BANK-A")
	if err != nil {
		t.Fatalf("TerminateTrade failed: %v", err)
	}

	rec, err := e.GetEvent("term-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	// No payment pair to attribute, so the envelope names the trade parties.
	if len(rec.Parties) != 2 || rec.Parties[0] != "BANK-A" || rec.Parties[1] != "BANK-B" {
		t.Errorf("expected trade parties on the envelope, got %v", rec.Parties)
	}
}

func TestEmittedOutputs_DoNotAliasRecorderPayloads(t *testing.T) {
	e, persistChan, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	var recorded *core.Output
	for _, out := range drainOutputs(persistChan) {
		if out.Transfer != nil {
			o := out
			recorded = &o
		}
	}
	if recorded == nil {
		t.Fatal("no transfer output emitted")
	}
	if recorded.Transfer.Status != event.SettlementPending {
		t.Fatalf("expected PENDING in recorded output, got %s", recorded.Transfer.Status)
	}

	if _, err := e.SettleTransfer("xfer-1", baseTime.AddDate(0, 0, 2), "SWIFT-123"); err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}

	// The already-emitted output keeps the status it was emitted with.
	if recorded.Transfer.Status != event.SettlementPending {
		t.Errorf("recorded output mutated to %s after settlement", recorded.Transfer.Status)
	}

	// Nor do downstream consumers writing to an output reach the engine.
	recorded.Transfer.Status = event.SettlementCancelled
	data, err := e.TransferByEvent("xfer-1")
	if err != nil {
		t.Fatalf("TransferByEvent failed: %v", err)
	}
	if data.Status != event.SettlementSettled {
		t.Errorf("expected SETTLED in engine, got %s", data.Status)
	}
}

// --- Terminations ---

func TestTerminateTrade_MovesActiveToTerminated(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")

	cur, _ := e.CurrentState("IRS-001")
	if cur != state.StateTerminated {
		t.Errorf("expected TERMINATED, got %s", cur)
	}

	data, err := e.TerminationForTrade("IRS-001")
	if err != nil {
		t.Fatalf("TerminationForTrade failed: %v", err)
	}
	if data.Status != event.TerminationPending {
		t.Errorf("expected PENDING termination, got %s", data.Status)
	}
}

func TestTerminateTrade_SecondTermination_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")

	_, err := e.TerminateTrade("term-2", "IRS-001",
		event.TerminationDetails{
			Type:             event.TerminationDefault,
			TerminationDate:  baseTime.AddDate(0, 0, 10),
			NotificationDate: baseTime,
		},
		event.TerminationPayment{Method: event.CalcMethodZero},
		"BANK-B")
	if !errors.Is(err, core.ErrTradeAlreadyTerminated) {
		t.Fatalf("expected ErrTradeAlreadyTerminated, got %v", err)
	}
}

func TestTerminateTrade_CreatedTrade_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")

	_, err := e.TerminateTrade("term-1", "IRS-001",
		event.TerminationDetails{
			Type:             event.TerminationMutualAgreement,
			TerminationDate:  baseTime.AddDate(0, 0, 30),
			NotificationDate: baseTime,
		},
		event.TerminationPayment{Method: event.CalcMethodZero},
		"BANK-A")
	if !errors.Is(err, core.ErrTradeNotActive) {
		t.Fatalf("expected ErrTradeNotActive, got %v", err)
	}
}

func TestDisputeTermination_AnyStatus(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")

	if _, err := e.ConfirmTermination("term-1"); err != nil {
		t.Fatalf("ConfirmTermination failed: %v", err)
	}

	// Dispute after confirmation is still allowed.
	if _, err := e.DisputeTermination("term-1", "BANK-B", "valuation disagreement"); err != nil {
		t.Fatalf("DisputeTermination failed: %v", err)
	}

	data, _ := e.TerminationByEvent("term-1")
	if data.Status != event.TerminationDisputed {
		t.Errorf("expected DISPUTED, got %s", data.Status)
	}
	if !data.Payment.IsDisputed || data.Payment.DisputedBy != "BANK-B" {
		t.Errorf("dispute details not recorded: %+v", data.Payment)
	}
}

func TestLinkSettlementTransfer_SettlesWithoutLifecycleChange(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	if _, err := e.LinkSettlementTransfer("term-1", "xfer-1"); err != nil {
		t.Fatalf("LinkSettlementTransfer failed: %v", err)
	}

	data, _ := e.TerminationByEvent("term-1")
	if data.Status != event.TerminationSettled {
		t.Errorf("expected SETTLED termination, got %s", data.Status)
	}
	if data.SettlementTransferEventID == nil || *data.SettlementTransferEventID != "xfer-1" {
		t.Errorf("settlement transfer not linked")
	}

	// The trade itself stays TERMINATED until an explicit lifecycle advance.
	cur, _ := e.CurrentState("IRS-001")
	if cur != state.StateTerminated {
		t.Errorf("linking must not advance the lifecycle, got %s", cur)
	}
	if _, err := e.SettleTrade("IRS-001", "BANK-A"); err != nil {
		t.Fatalf("explicit settle after link failed: %v", err)
	}
}

func TestLinkSettlementTransfer_UnknownTransfer_Fails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")

	_, err := e.LinkSettlementTransfer("term-1", "xfer-nope")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminationSettled_IsFinal(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustTerminate(t, e, "term-1", "IRS-001")
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)
	e.LinkSettlementTransfer("term-1", "xfer-1")

	if _, err := e.ConfirmTermination("term-1"); !errors.Is(err, core.ErrAlreadySettled) {
		t.Errorf("confirm after settle: expected ErrAlreadySettled, got %v", err)
	}
	if _, err := e.LinkSettlementTransfer("term-1", "xfer-1"); !errors.Is(err, core.ErrAlreadySettled) {
		t.Errorf("re-link after settle: expected ErrAlreadySettled, got %v", err)
	}
}

// --- Channels and recovery ---

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	persistChan := make(chan core.Output, 1024)
	projChan := make(chan core.Output, 1) // Tiny, fills after one commit
	e := core.NewEngine(zerolog.Nop(), nil, persistChan, projChan)
	e.SetClock(func() time.Time { return baseTime })

	mustCreateTrade(t, e, "IRS-001")
	mustCreateTrade(t, e, "IRS-002") // Dropped, channel full
	mustCreateTrade(t, e, "IRS-003") // Dropped

	if got := len(drainOutputs(projChan)); got != 1 {
		t.Errorf("expected 1 projection output, got %d", got)
	}
	// Persistence never drops.
	if got := len(drainOutputs(persistChan)); got != 3 {
		t.Errorf("expected 3 persist outputs, got %d", got)
	}
}

func TestEventsForTrade_ChainAndFilter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreateTrade(t, e, "IRS-001")
	mustActivate(t, e, "exec-1", "IRS-001")
	mustRecordReset(t, e, "reset-1", "IRS-001", 1)
	mustRecordTransfer(t, e, "xfer-1", "IRS-001", nil)

	all := e.EventsForTrade("IRS-001", event.EventTypeUnknown)
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].PreviousEventID == nil || *all[i].PreviousEventID != all[i-1].EventID {
			t.Errorf("event %d back-link broken", i)
		}
	}

	resets := e.EventsForTrade("IRS-001", event.EventTypeReset)
	if len(resets) != 1 || resets[0].EventID != "reset-1" {
		t.Errorf("type filter failed")
	}
}

func TestRestore_RebuildsEngineState(t *testing.T) {
	src, _, _ := newTestEngine(t)
	mustCreateTrade(t, src, "IRS-001")
	mustActivate(t, src, "exec-1", "IRS-001")
	mustRecordReset(t, src, "reset-1", "IRS-001", 1)
	ref := "PAY-REF-7"
	mustRecordTransfer(t, src, "xfer-1", "IRS-001", &ref)
	mustTerminate(t, src, "term-1", "IRS-001")

	dst := core.NewEngine(zerolog.Nop(), nil, nil, nil)
	dst.SetClock(func() time.Time { return baseTime })

	hist, _ := src.History("IRS-001")
	for _, snap := range hist {
		dst.RestoreSnapshot(snap)
	}
	trs, _ := src.Transitions("IRS-001")
	for _, tr := range trs {
		dst.RestoreTransition(tr)
	}
	for _, rec := range src.EventsForTrade("IRS-001", event.EventTypeUnknown) {
		dst.RestoreRecord(rec)
	}
	exec, _ := src.ExecutionForTrade("IRS-001")
	dst.RestoreExecution(exec)
	for _, r := range src.ResetsForTrade("IRS-001") {
		dst.RestoreReset(r)
	}
	for _, x := range src.TransfersForTrade("IRS-001") {
		dst.RestoreTransfer(x)
	}
	term, _ := src.TerminationForTrade("IRS-001")
	dst.RestoreTermination(term)

	cur, err := dst.CurrentState("IRS-001")
	if err != nil {
		t.Fatalf("CurrentState after restore failed: %v", err)
	}
	if cur != state.StateTerminated {
		t.Errorf("expected TERMINATED after restore, got %s", cur)
	}

	// Uniqueness guards survive the restore.
	if _, err := dst.RecordTransfer("xfer-2", "IRS-001", event.TransferTypeInterest,
		event.PaymentDetails{
			GrossAmount:      100_00,
			NetAmount:        100_00,
			Currency:         "USD",
			Direction:        event.DirectionPay,
			ValueDate:        baseTime.AddDate(0, 0, 2),
			PaymentReference: &ref,
		},
		event.TransferParties{Payer: "BANK-A", Receiver: "BANK-B"},
		"BANK-A"); !errors.Is(err, core.ErrDuplicateReference) {
		t.Errorf("restored payment reference index missed duplicate: %v", err)
	}

	next := dst.TransfersForTrade("IRS-001")
	if len(next) != 1 || next[0].SequenceNumber != 1 {
		t.Fatalf("restored transfer sequence wrong: %+v", next)
	}
}
