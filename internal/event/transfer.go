package event

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"
)

// TransferType classifies what business obligation a transfer settles.
type TransferType int32

const (
	TransferTypeUnknown TransferType = iota
	TransferTypeInterest
	TransferTypePrincipal
	TransferTypeFee
	TransferTypeTermination
)

func (tt TransferType) String() string {
	switch tt {
	case TransferTypeInterest:
		return "INTEREST"
	case TransferTypePrincipal:
		return "PRINCIPAL"
	case TransferTypeFee:
		return "FEE"
	case TransferTypeTermination:
		return "TERMINATION"
	default:
		return "UNKNOWN"
	}
}

// ParseTransferType converts the wire representation back to a TransferType.
func ParseTransferType(s string) (TransferType, error) {
	switch s {
	case "INTEREST":
		return TransferTypeInterest, nil
	case "PRINCIPAL":
		return TransferTypePrincipal, nil
	case "FEE":
		return TransferTypeFee, nil
	case "TERMINATION":
		return TransferTypeTermination, nil
	default:
		return TransferTypeUnknown, fmt.Errorf("%w: transfer type %q", fault.ErrInvalidInput, s)
	}
}

// Direction of the payment from the first-named party's perspective.
type Direction int32

const (
	DirectionPay Direction = iota
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionReceive {
		return "RECEIVE"
	}
	return "PAY"
}

// SettlementStatus is the settlement sub-state machine of a transfer:
// PENDING → INITIATED → SETTLED | FAILED | CANCELLED. A FAILED transfer may
// be re-settled; SETTLED and CANCELLED are final.
type SettlementStatus int32

const (
	SettlementPending SettlementStatus = iota
	SettlementInitiated
	SettlementSettled
	SettlementFailed
	SettlementCancelled
)

func (ss SettlementStatus) String() string {
	switch ss {
	case SettlementPending:
		return "PENDING"
	case SettlementInitiated:
		return "INITIATED"
	case SettlementSettled:
		return "SETTLED"
	case SettlementFailed:
		return "FAILED"
	case SettlementCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementPending: {
		SettlementInitiated,
		SettlementSettled,
		SettlementFailed,
		SettlementCancelled,
	},
	SettlementInitiated: {
		SettlementSettled,
		SettlementFailed,
		SettlementCancelled,
	},
	SettlementFailed: {
		SettlementSettled, // Retried through the settlement network
		SettlementCancelled,
	},
	SettlementSettled: {
		// Terminal
	},
	SettlementCancelled: {
		// Terminal
	},
}

// CanTransitionTo validates settlement sub-state transitions.
func (ss SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	for _, s := range settlementTransitions[ss] {
		if next == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the settlement status can no longer change.
func (ss SettlementStatus) IsTerminal() bool {
	return ss == SettlementSettled || ss == SettlementCancelled
}

// PaymentDetails carries the amounts and dates of the obligation.
type PaymentDetails struct {
	GrossAmount int64 // Fixed-point: amount scale
	NetAmount   int64 // Fixed-point: amount scale
	Currency    string
	Direction   Direction
	ValueDate   time.Time

	// Optional external payment reference, globally unique when present.
	PaymentReference *string
}

// TransferParties names the payer and receiver of the obligation.
type TransferParties struct {
	Payer    string
	Receiver string
}

// TransferData is the typed payload for a recorded payment obligation and
// its settlement progress. Many exist per trade; SequenceNumber is
// auto-assigned by insertion order.
type TransferData struct {
	EventID        string
	TradeID        string
	Type           TransferType
	SequenceNumber int64
	Payment        PaymentDetails
	Parties        TransferParties
	Status         SettlementStatus

	SettlementDate      *time.Time
	SettlementReference string
	FailureReason       string

	// Back-link to the trade's previous transfer, if any.
	PreviousTransferEventID *string

	// Independent confirmation, set by verifyTransfer; allowed in any status.
	Verified   bool
	VerifiedBy string
}

// Validate runs the payload-level preconditions for recording a transfer.
func (d *TransferData) Validate() error {
	if d.Type == TransferTypeUnknown {
		return fmt.Errorf("%w: transfer type unspecified", fault.ErrInvalidInput)
	}
	if d.Payment.NetAmount <= 0 {
		return fmt.Errorf("%w: net amount %d must be positive", ErrInvalidAmount, d.Payment.NetAmount)
	}
	if d.Payment.GrossAmount < d.Payment.NetAmount {
		return fmt.Errorf("%w: gross amount %d below net amount %d",
			ErrInvalidAmount, d.Payment.GrossAmount, d.Payment.NetAmount)
	}
	if d.Payment.Currency == "" {
		return fmt.Errorf("%w: currency is required", fault.ErrInvalidInput)
	}
	if d.Payment.ValueDate.IsZero() {
		return fmt.Errorf("%w: value date is required", ErrInvalidDates)
	}
	if d.Parties.Payer == "" || d.Parties.Receiver == "" {
		return fmt.Errorf("%w: payer and receiver are required", ErrInvalidParties)
	}
	if d.Parties.Payer == d.Parties.Receiver {
		return fmt.Errorf("%w: payer and receiver must differ", ErrInvalidParties)
	}
	return nil
}
