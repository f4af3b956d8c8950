package ingestion

import (
	"time"

	"TradeLedger/internal/core"
	"TradeLedger/internal/event"
	"TradeLedger/internal/state"
)

// Command is one parsed instruction for the engine. Parsing and validation of
// the wire format happen in the ingestion shell; the engine only ever sees
// typed, well-formed commands.
type Command interface {
	// Apply runs the command against the engine.
	Apply(e *core.Engine) (*core.Output, error)

	// Kind names the command for logging and metrics.
	Kind() string
}

// CreateTradeCommand registers a new trade.
type CreateTradeCommand struct {
	TradeID       string
	ProductType   string
	Parties       []string
	EffectiveDate time.Time
	MaturityDate  time.Time
}

func (c *CreateTradeCommand) Kind() string { return "create_trade" }

func (c *CreateTradeCommand) Apply(e *core.Engine) (*core.Output, error) {
	snap, err := e.CreateTrade(c.TradeID, c.ProductType, c.Parties, c.EffectiveDate, c.MaturityDate)
	if err != nil {
		return nil, err
	}
	return &core.Output{Operation: "CreateTrade", Snapshot: snap}, nil
}

// ExecuteTradeCommand records a trade execution.
type ExecuteTradeCommand struct {
	EventID   string
	TradeID   string
	Details   event.ExecutionDetails
	Terms     event.EconomicTerms
	Buyer     string
	Seller    string
	Broker    *string
	TradeDate time.Time
}

func (c *ExecuteTradeCommand) Kind() string { return "execution" }

func (c *ExecuteTradeCommand) Apply(e *core.Engine) (*core.Output, error) {
	return e.ExecuteTrade(c.EventID, c.TradeID, c.Details, c.Terms, c.Buyer, c.Seller, c.Broker, c.TradeDate)
}

// RecordResetCommand records a rate reset observation.
type RecordResetCommand struct {
	EventID         string
	TradeID         string
	PayoutReference string
	ResetNumber     int64
	Observation     event.RateObservation
	Calculation     event.ResetCalculation
	Averaging       *event.Averaging
	Initiator       string
}

func (c *RecordResetCommand) Kind() string { return "reset" }

func (c *RecordResetCommand) Apply(e *core.Engine) (*core.Output, error) {
	return e.RecordReset(c.EventID, c.TradeID, c.PayoutReference, c.ResetNumber,
		c.Observation, c.Calculation, c.Averaging, c.Initiator)
}

// VerifyRateCommand flags a reset's rate as independently checked.
type VerifyRateCommand struct {
	EventID  string
	Verifier string
}

func (c *VerifyRateCommand) Kind() string { return "verify_rate" }

func (c *VerifyRateCommand) Apply(e *core.Engine) (*core.Output, error) {
	return e.VerifyRate(c.EventID, c.Verifier)
}

// RecordTransferCommand records a payment obligation.
type RecordTransferCommand struct {
	EventID   string
	TradeID   string
	Type      event.TransferType
	Payment   event.PaymentDetails
	Parties   event.TransferParties
	Initiator string
}

func (c *RecordTransferCommand) Kind() string { return "transfer" }

func (c *RecordTransferCommand) Apply(e *core.Engine) (*core.Output, error) {
	return e.RecordTransfer(c.EventID, c.TradeID, c.Type, c.Payment, c.Parties, c.Initiator)
}

// SettlementCommand advances a transfer's settlement sub-state.
type SettlementCommand struct {
	EventID        string
	Action         string // initiate | settle | fail | cancel | verify
	SettlementDate time.Time
	Reference      string
	Reason         string
	Verifier       string
}

func (c *SettlementCommand) Kind() string { return "settlement_" + c.Action }

func (c *SettlementCommand) Apply(e *core.Engine) (*core.Output, error) {
	switch c.Action {
	case "initiate":
		return e.InitiateTransfer(c.EventID)
	case "settle":
		return e.SettleTransfer(c.EventID, c.SettlementDate, c.Reference)
	case "fail":
		return e.FailTransfer(c.EventID, c.Reason)
	case "cancel":
		return e.CancelTransfer(c.EventID, c.Reason)
	default:
		return e.VerifyTransfer(c.EventID, c.Verifier)
	}
}

// TerminateTradeCommand records an early termination.
type TerminateTradeCommand struct {
	EventID   string
	TradeID   string
	Details   event.TerminationDetails
	Payment   event.TerminationPayment
	Initiator string
}

func (c *TerminateTradeCommand) Kind() string { return "termination" }

func (c *TerminateTradeCommand) Apply(e *core.Engine) (*core.Output, error) {
	return e.TerminateTrade(c.EventID, c.TradeID, c.Details, c.Payment, c.Initiator)
}

// TerminationActionCommand advances a recorded termination.
type TerminationActionCommand struct {
	EventID         string
	Action          string // confirm | dispute | link
	DisputedBy      string
	Reason          string
	TransferEventID string
}

func (c *TerminationActionCommand) Kind() string { return "termination_" + c.Action }

func (c *TerminationActionCommand) Apply(e *core.Engine) (*core.Output, error) {
	switch c.Action {
	case "confirm":
		return e.ConfirmTermination(c.EventID)
	case "dispute":
		return e.DisputeTermination(c.EventID, c.DisputedBy, c.Reason)
	default:
		return e.LinkSettlementTransfer(c.EventID, c.TransferEventID)
	}
}

// LifecycleCommand advances a trade's lifecycle without a business event.
type LifecycleCommand struct {
	TradeID   string
	Action    string // submit | withdraw | confirm | activate | mature | settle
	Initiator string
}

func (c *LifecycleCommand) Kind() string { return "lifecycle_" + c.Action }

func (c *LifecycleCommand) Apply(e *core.Engine) (*core.Output, error) {
	var snap *state.Snapshot
	var err error
	switch c.Action {
	case "submit":
		snap, err = e.SubmitTrade(c.TradeID, c.Initiator)
	case "withdraw":
		snap, err = e.WithdrawTrade(c.TradeID, c.Initiator)
	case "confirm":
		snap, err = e.ConfirmTrade(c.TradeID, c.Initiator)
	case "activate":
		snap, err = e.ActivateTrade(c.TradeID, c.Initiator)
	case "mature":
		snap, err = e.MatureTrade(c.TradeID, c.Initiator)
	default:
		snap, err = e.SettleTrade(c.TradeID, c.Initiator)
	}
	if err != nil {
		return nil, err
	}
	return &core.Output{Operation: "AdvanceLifecycle", Snapshot: snap}, nil
}
