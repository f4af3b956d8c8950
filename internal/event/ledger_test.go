package event_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
)

var (
	testNow     = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	testParties = []string{"BANK-A", "BANK-B"}
)

// tradeSet satisfies event.TradeChecker for tests.
type tradeSet map[string]bool

func (ts tradeSet) TradeExists(id string) bool { return ts[id] }

func newRecord(eventID, tradeID string) *event.Record {
	return &event.Record{
		EventID:       eventID,
		Type:          event.EventTypeTransfer,
		Status:        event.StatusPending,
		Timestamp:     testNow,
		EffectiveDate: testNow.AddDate(0, 0, 2),
		TradeID:       tradeID,
		Parties:       testParties,
		Initiator:     "BANK-A",
		Valid:         true,
	}
}

func TestValidateBasics(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})

	if err := l.ValidateBasics("evt-1", "IRS-001", testNow, testParties); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := l.ValidateBasics("", "IRS-001", testNow, testParties); !errors.Is(err, fault.ErrInvalidInput) {
		t.Errorf("empty event id: expected ErrInvalidInput, got %v", err)
	}
	if err := l.ValidateBasics("evt-1", "NOPE", testNow, testParties); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("unknown trade: expected ErrNotFound, got %v", err)
	}
	if err := l.ValidateBasics("evt-1", "IRS-001", testNow, nil); !errors.Is(err, fault.ErrInvalidInput) {
		t.Errorf("no parties: expected ErrInvalidInput, got %v", err)
	}
	if err := l.ValidateBasics("evt-1", "IRS-001", time.Time{}, testParties); !errors.Is(err, fault.ErrInvalidInput) {
		t.Errorf("zero effective date: expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateBasics_DuplicateEventID(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})
	if err := l.Store(newRecord("evt-1", "IRS-001")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	err := l.ValidateBasics("evt-1", "IRS-001", testNow, testParties)
	if !errors.Is(err, fault.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStore_ChainsPerTradeEvents(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true, "IRS-002": true})

	l.Store(newRecord("evt-1", "IRS-001"))
	l.Store(newRecord("evt-2", "IRS-001"))
	l.Store(newRecord("evt-3", "IRS-002"))

	first, _ := l.Get("evt-1")
	if first.PreviousEventID != nil {
		t.Errorf("first event of a trade must not have a back-link")
	}

	second, _ := l.Get("evt-2")
	if second.PreviousEventID == nil || *second.PreviousEventID != "evt-1" {
		t.Errorf("expected back-link to evt-1, got %v", second.PreviousEventID)
	}

	// The chain is per trade, not global.
	other, _ := l.Get("evt-3")
	if other.PreviousEventID != nil {
		t.Errorf("first event of another trade must not back-link across trades")
	}
}

func TestMarkProcessed_TerminalAndImmutable(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})
	l.Store(newRecord("evt-1", "IRS-001"))

	snapID := uuid.New()
	if err := l.MarkProcessed("evt-1", snapID); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	rec, _ := l.Get("evt-1")
	if rec.Status != event.StatusProcessed {
		t.Errorf("expected PROCESSED, got %s", rec.Status)
	}
	if rec.AfterStateID == nil || *rec.AfterStateID != snapID {
		t.Errorf("after-state snapshot not recorded")
	}

	if err := l.MarkProcessed("evt-1", uuid.New()); !errors.Is(err, fault.ErrAlreadyTerminal) {
		t.Errorf("re-processing: expected ErrAlreadyTerminal, got %v", err)
	}
	if err := l.MarkFailed("evt-1", "late failure"); !errors.Is(err, fault.ErrAlreadyTerminal) {
		t.Errorf("failing a processed event: expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestMarkFailed_RecordsReason(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})
	l.Store(newRecord("evt-1", "IRS-001"))

	if err := l.MarkFailed("evt-1", "downstream rejection"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	rec, _ := l.Get("evt-1")
	if rec.Status != event.StatusFailed {
		t.Errorf("expected FAILED, got %s", rec.Status)
	}
	if rec.Valid {
		t.Errorf("failed event must be marked invalid")
	}
	if rec.Message != "downstream rejection" {
		t.Errorf("failure reason not recorded: %q", rec.Message)
	}

	if err := l.MarkProcessed("evt-1", uuid.New()); !errors.Is(err, fault.ErrAlreadyTerminal) {
		t.Errorf("processing a failed event: expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestByTrade_Filter(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})

	transfer := newRecord("evt-1", "IRS-001")
	reset := newRecord("evt-2", "IRS-001")
	reset.Type = event.EventTypeReset
	l.Store(transfer)
	l.Store(reset)

	all := l.ByTrade("IRS-001", event.EventTypeUnknown)
	if len(all) != 2 {
		t.Fatalf("expected 2 events unfiltered, got %d", len(all))
	}
	resets := l.ByTrade("IRS-001", event.EventTypeReset)
	if len(resets) != 1 || resets[0].EventID != "evt-2" {
		t.Fatalf("type filter failed: %v", resets)
	}
}

func TestLedger_ClonesEscapeSafely(t *testing.T) {
	l := event.NewLedger(tradeSet{"IRS-001": true})
	l.Store(newRecord("evt-1", "IRS-001"))

	rec, _ := l.Get("evt-1")
	rec.Status = event.StatusFailed
	rec.Parties[0] = "MALLORY"

	fresh, _ := l.Get("evt-1")
	if fresh.Status != event.StatusPending {
		t.Errorf("caller mutation leaked into ledger")
	}
	if fresh.Parties[0] != "BANK-A" {
		t.Errorf("caller mutation of parties leaked into ledger")
	}
}

// --- Payload validation ---

func validExecution() *event.ExecutionData {
	return &event.ExecutionData{
		EventID: "evt-x",
		TradeID: "IRS-001",
		Details: event.ExecutionDetails{
			Venue:     "OTC",
			Price:     102_50,
			Timestamp: testNow,
		},
		Terms: event.EconomicTerms{
			Notional:      10_000_000_00,
			Currency:      "USD",
			EffectiveDate: testNow.AddDate(0, 0, 2),
			MaturityDate:  testNow.AddDate(5, 0, 0),
		},
		Buyer:     "BANK-A",
		Seller:    "BANK-B",
		TradeDate: testNow,
	}
}

func TestExecutionData_Validate(t *testing.T) {
	if err := validExecution().Validate(); err != nil {
		t.Fatalf("valid execution rejected: %v", err)
	}

	d := validExecution()
	d.Seller = d.Buyer
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidParties) {
		t.Errorf("same buyer and seller: expected ErrInvalidParties, got %v", err)
	}

	d = validExecution()
	d.Terms.Notional = 0
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidNotional) {
		t.Errorf("zero notional: expected ErrInvalidNotional, got %v", err)
	}

	d = validExecution()
	d.Details.Timestamp = d.Terms.EffectiveDate.AddDate(0, 0, 1)
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidDates) {
		t.Errorf("execution after effective date: expected ErrInvalidDates, got %v", err)
	}
}

func TestExecutionData_InvolvedParties(t *testing.T) {
	d := validExecution()
	if got := d.InvolvedParties(); len(got) != 2 {
		t.Fatalf("expected 2 parties without broker, got %d", len(got))
	}

	broker := "BROKER-X"
	d.Broker = &broker
	got := d.InvolvedParties()
	if len(got) != 3 || got[2] != "BROKER-X" {
		t.Fatalf("broker not included: %v", got)
	}
}

func validReset() *event.ResetData {
	return &event.ResetData{
		EventID:         "evt-r",
		TradeID:         "IRS-001",
		PayoutReference: "LEG-FLOAT-1",
		ResetNumber:     1,
		Observation: event.RateObservation{
			ObservedRate:    52_500_000, // 5.25%
			ObservationDate: testNow.AddDate(0, 0, -1),
			RateIndex:       "USD-SOFR",
		},
		Calculation: event.ResetCalculation{
			PeriodStart: testNow.AddDate(0, -3, 0),
			PeriodEnd:   testNow,
			Notional:    10_000_000_00,
			Accrual:     131_250_00,
		},
	}
}

func TestResetData_Validate(t *testing.T) {
	if err := validReset().Validate(testNow); err != nil {
		t.Fatalf("valid reset rejected: %v", err)
	}

	d := validReset()
	d.ResetNumber = 0
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidResetNumber) {
		t.Errorf("reset number zero: expected ErrInvalidResetNumber, got %v", err)
	}

	d = validReset()
	d.Observation.ObservationDate = testNow.AddDate(0, 0, 1)
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidObservationDate) {
		t.Errorf("future observation: expected ErrInvalidObservationDate, got %v", err)
	}

	d = validReset()
	d.Calculation.PeriodEnd = d.Calculation.PeriodStart
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidPeriodDates) {
		t.Errorf("empty period: expected ErrInvalidPeriodDates, got %v", err)
	}
}

func TestResetData_AveragingValidation(t *testing.T) {
	d := validReset()
	d.Averaging = &event.Averaging{
		Method:       event.AveragingWeighted,
		Observations: []int64{52_000_000, 53_000_000},
		Weights:      []int64{500_000_000}, // Length mismatch
		FinalRate:    52_500_000,
	}
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidAveragingData) {
		t.Errorf("weight mismatch: expected ErrInvalidAveragingData, got %v", err)
	}

	d.Averaging.Weights = []int64{500_000_000, 500_000_000}
	if err := d.Validate(testNow); err != nil {
		t.Errorf("valid weighted averaging rejected: %v", err)
	}

	d.Averaging.FinalRate = 99_000_000
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidAveragingData) {
		t.Errorf("final rate mismatch: expected ErrInvalidAveragingData, got %v", err)
	}
}

func validTransfer() *event.TransferData {
	return &event.TransferData{
		EventID: "evt-t",
		TradeID: "IRS-001",
		Type:    event.TransferTypeInterest,
		Payment: event.PaymentDetails{
			GrossAmount: 131_250_00,
			NetAmount:   131_250_00,
			Currency:    "USD",
			Direction:   event.DirectionPay,
			ValueDate:   testNow.AddDate(0, 0, 2),
		},
		Parties: event.TransferParties{Payer: "BANK-A", Receiver: "BANK-B"},
		Status:  event.SettlementPending,
	}
}

func TestTransferData_Validate(t *testing.T) {
	if err := validTransfer().Validate(); err != nil {
		t.Fatalf("valid transfer rejected: %v", err)
	}

	d := validTransfer()
	d.Payment.NetAmount = 0
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidAmount) {
		t.Errorf("zero net: expected ErrInvalidAmount, got %v", err)
	}

	d = validTransfer()
	d.Payment.GrossAmount = d.Payment.NetAmount - 1
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidAmount) {
		t.Errorf("gross below net: expected ErrInvalidAmount, got %v", err)
	}

	d = validTransfer()
	d.Parties.Receiver = d.Parties.Payer
	if err := d.Validate(); !errors.Is(err, event.ErrInvalidParties) {
		t.Errorf("payer equals receiver: expected ErrInvalidParties, got %v", err)
	}
}

func TestSettlementStatus_Transitions(t *testing.T) {
	legal := []struct{ from, to event.SettlementStatus }{
		{event.SettlementPending, event.SettlementInitiated},
		{event.SettlementPending, event.SettlementSettled},
		{event.SettlementPending, event.SettlementFailed},
		{event.SettlementPending, event.SettlementCancelled},
		{event.SettlementInitiated, event.SettlementSettled},
		{event.SettlementInitiated, event.SettlementFailed},
		{event.SettlementFailed, event.SettlementSettled}, // Retry
		{event.SettlementFailed, event.SettlementCancelled},
	}
	for _, e := range legal {
		if !e.from.CanTransitionTo(e.to) {
			t.Errorf("%s -> %s should be legal", e.from, e.to)
		}
	}

	illegal := []struct{ from, to event.SettlementStatus }{
		{event.SettlementSettled, event.SettlementFailed},
		{event.SettlementSettled, event.SettlementCancelled},
		{event.SettlementCancelled, event.SettlementSettled},
		{event.SettlementFailed, event.SettlementInitiated},
		{event.SettlementInitiated, event.SettlementPending},
	}
	for _, e := range illegal {
		if e.from.CanTransitionTo(e.to) {
			t.Errorf("%s -> %s should be illegal", e.from, e.to)
		}
	}

	if !event.SettlementSettled.IsTerminal() || !event.SettlementCancelled.IsTerminal() {
		t.Errorf("SETTLED and CANCELLED must be terminal")
	}
	if event.SettlementFailed.IsTerminal() {
		t.Errorf("FAILED must not be terminal, retries are allowed")
	}
}

func validTermination() *event.TerminationData {
	return &event.TerminationData{
		EventID: "evt-term",
		TradeID: "IRS-001",
		Details: event.TerminationDetails{
			Type:             event.TerminationMutualAgreement,
			TerminationDate:  testNow.AddDate(0, 0, 30),
			NotificationDate: testNow,
			Reason:           "portfolio compression",
		},
		Payment: event.TerminationPayment{
			Method:   event.CalcMethodAgreedAmount,
			Value:    250_000_00,
			Currency: "USD",
			Payer:    "BANK-A",
			Receiver: "BANK-B",
		},
		Status: event.TerminationPending,
	}
}

func TestTerminationData_Validate(t *testing.T) {
	if err := validTermination().Validate(testNow); err != nil {
		t.Fatalf("valid termination rejected: %v", err)
	}

	d := validTermination()
	d.Details.TerminationDate = testNow.AddDate(0, 0, -1)
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidTerminationDate) {
		t.Errorf("past termination date: expected ErrInvalidTerminationDate, got %v", err)
	}

	d = validTermination()
	d.Details.NotificationDate = d.Details.TerminationDate.AddDate(0, 0, 1)
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidTerminationDate) {
		t.Errorf("notification after termination: expected ErrInvalidTerminationDate, got %v", err)
	}

	d = validTermination()
	d.Payment.Payer = ""
	if err := d.Validate(testNow); !errors.Is(err, event.ErrInvalidPaymentDetails) {
		t.Errorf("missing payer: expected ErrInvalidPaymentDetails, got %v", err)
	}

	// CalcMethodZero needs no payment parties at all.
	d = validTermination()
	d.Payment = event.TerminationPayment{Method: event.CalcMethodZero}
	if err := d.Validate(testNow); err != nil {
		t.Errorf("zero calc method should skip payment checks: %v", err)
	}
}
