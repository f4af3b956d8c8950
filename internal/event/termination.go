package event

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"
)

// TerminationType classifies why the trade is ending early.
type TerminationType int32

const (
	TerminationTypeUnknown TerminationType = iota
	TerminationMutualAgreement
	TerminationDefault
	TerminationTaxEvent
	TerminationIllegality
)

func (tt TerminationType) String() string {
	switch tt {
	case TerminationMutualAgreement:
		return "MUTUAL_AGREEMENT"
	case TerminationDefault:
		return "DEFAULT"
	case TerminationTaxEvent:
		return "TAX_EVENT"
	case TerminationIllegality:
		return "ILLEGALITY"
	default:
		return "UNKNOWN"
	}
}

// ParseTerminationType converts the wire representation back to a type.
func ParseTerminationType(s string) (TerminationType, error) {
	switch s {
	case "MUTUAL_AGREEMENT":
		return TerminationMutualAgreement, nil
	case "DEFAULT":
		return TerminationDefault, nil
	case "TAX_EVENT":
		return TerminationTaxEvent, nil
	case "ILLEGALITY":
		return TerminationIllegality, nil
	default:
		return TerminationTypeUnknown, fmt.Errorf("%w: termination type %q", fault.ErrInvalidInput, s)
	}
}

// CalcMethod is how the termination payment value was determined.
type CalcMethod int32

const (
	CalcMethodZero CalcMethod = iota
	CalcMethodMarketQuotation
	CalcMethodReplacementValue
	CalcMethodAgreedAmount
)

func (cm CalcMethod) String() string {
	switch cm {
	case CalcMethodZero:
		return "ZERO"
	case CalcMethodMarketQuotation:
		return "MARKET_QUOTATION"
	case CalcMethodReplacementValue:
		return "REPLACEMENT_VALUE"
	case CalcMethodAgreedAmount:
		return "AGREED_AMOUNT"
	default:
		return "UNKNOWN"
	}
}

// ParseCalcMethod converts the wire representation back to a CalcMethod.
func ParseCalcMethod(s string) (CalcMethod, error) {
	switch s {
	case "ZERO", "":
		return CalcMethodZero, nil
	case "MARKET_QUOTATION":
		return CalcMethodMarketQuotation, nil
	case "REPLACEMENT_VALUE":
		return CalcMethodReplacementValue, nil
	case "AGREED_AMOUNT":
		return CalcMethodAgreedAmount, nil
	default:
		return CalcMethodZero, fmt.Errorf("%w: calculation method %q", fault.ErrInvalidInput, s)
	}
}

// TerminationStatus is the termination's own sub-state machine:
// PENDING → CONFIRMED → SETTLED, with DISPUTED reachable from any
// non-settled status. SETTLED is final.
type TerminationStatus int32

const (
	TerminationPending TerminationStatus = iota
	TerminationConfirmed
	TerminationSettled
	TerminationDisputed
)

func (ts TerminationStatus) String() string {
	switch ts {
	case TerminationPending:
		return "PENDING"
	case TerminationConfirmed:
		return "CONFIRMED"
	case TerminationSettled:
		return "SETTLED"
	case TerminationDisputed:
		return "DISPUTED"
	default:
		return "UNKNOWN"
	}
}

// TerminationDetails describes the early ending.
type TerminationDetails struct {
	Type             TerminationType
	TerminationDate  time.Time
	NotificationDate time.Time
	Reason           string
}

// TerminationPayment is the payment calculation attached to the termination.
type TerminationPayment struct {
	Method   CalcMethod
	Value    int64 // Fixed-point: amount scale
	Currency string
	Payer    string
	Receiver string

	IsDisputed    bool
	DisputedBy    string
	DisputeReason string
}

// TerminationData is the typed payload for a trade's early termination.
// At most one exists per trade.
type TerminationData struct {
	EventID string
	TradeID string
	Details TerminationDetails
	Payment TerminationPayment
	Status  TerminationStatus

	// Link to the TransferData event that settles the termination payment.
	// Set by linkSettlementTransfer, which marks the termination SETTLED but
	// does NOT itself advance the trade's lifecycle state.
	SettlementTransferEventID *string
}

// Validate runs the payload-level preconditions for a termination.
func (d *TerminationData) Validate(now time.Time) error {
	if d.Details.Type == TerminationTypeUnknown {
		return fmt.Errorf("%w: termination type unspecified", fault.ErrInvalidInput)
	}
	if d.Details.TerminationDate.Before(now) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidTerminationDate,
			d.Details.TerminationDate.Format(time.RFC3339))
	}
	if d.Details.NotificationDate.After(d.Details.TerminationDate) {
		return fmt.Errorf("%w: notification date %s after termination date", ErrInvalidTerminationDate,
			d.Details.NotificationDate.Format(time.RFC3339))
	}
	if d.Payment.Method != CalcMethodZero {
		if d.Payment.Payer == "" || d.Payment.Receiver == "" {
			return fmt.Errorf("%w: payer and receiver required for %s", ErrInvalidPaymentDetails, d.Payment.Method)
		}
		if d.Payment.Payer == d.Payment.Receiver {
			return fmt.Errorf("%w: payer and receiver must differ", ErrInvalidParties)
		}
		if d.Payment.Value < 0 {
			return fmt.Errorf("%w: value %d is negative", ErrInvalidPaymentDetails, d.Payment.Value)
		}
	}
	return nil
}
