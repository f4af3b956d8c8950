package event

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"
)

// ExecutionDetails captures where and how the trade was executed.
type ExecutionDetails struct {
	Venue              string
	Price              int64 // Fixed-point: amount scale (see fixedpoint.AmountConfig)
	ConfirmationMethod string
	Timestamp          time.Time // Execution timestamp, must not postdate the effective date
}

// EconomicTerms is the economic snapshot frozen at execution.
type EconomicTerms struct {
	Notional      int64 // Fixed-point: amount scale
	Currency      string
	EffectiveDate time.Time
	MaturityDate  time.Time
}

// ExecutionData is the typed payload for a trade's single inception event.
// Exactly one exists per trade.
type ExecutionData struct {
	EventID   string
	TradeID   string
	Details   ExecutionDetails
	Terms     EconomicTerms
	Buyer     string
	Seller    string
	Broker    *string
	TradeDate time.Time
}

// Validate runs the payload-level preconditions for an execution.
func (d *ExecutionData) Validate() error {
	if d.Buyer == "" || d.Seller == "" {
		return fmt.Errorf("%w: buyer and seller are required", ErrInvalidParties)
	}
	if d.Buyer == d.Seller {
		return fmt.Errorf("%w: buyer and seller must differ", ErrInvalidParties)
	}
	if d.Terms.Notional <= 0 {
		return fmt.Errorf("%w: %d must be positive", ErrInvalidNotional, d.Terms.Notional)
	}
	if d.Terms.Currency == "" {
		return fmt.Errorf("%w: currency is required", fault.ErrInvalidInput)
	}
	if !d.Terms.MaturityDate.After(d.Terms.EffectiveDate) {
		return fmt.Errorf("%w: maturity %s not after effective %s", ErrInvalidDates,
			d.Terms.MaturityDate.Format(time.RFC3339), d.Terms.EffectiveDate.Format(time.RFC3339))
	}
	if d.Details.Timestamp.After(d.Terms.EffectiveDate) {
		return fmt.Errorf("%w: execution timestamp %s postdates effective date", ErrInvalidDates,
			d.Details.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Parties returns the involved-party list for the envelope: buyer, seller,
// and the broker when present.
func (d *ExecutionData) InvolvedParties() []string {
	parties := []string{d.Buyer, d.Seller}
	if d.Broker != nil && *d.Broker != "" {
		parties = append(parties, *d.Broker)
	}
	return parties
}
