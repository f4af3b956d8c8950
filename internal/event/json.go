package event

import (
	"encoding/json"
	"fmt"

	"TradeLedger/internal/fault"
)

// Enumerations serialize as their wire strings. Payload rows land in JSONB
// columns and projections extract these fields as text, so a numeric encoding
// would leak internal ordinals into the schema.

func (et EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(et.String())
}

func (et *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*et = ParseEventType(s)
	return nil
}

func (es EventStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(es.String())
}

func (es *EventStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*es = ParseEventStatus(s)
	return nil
}

func (tt TransferType) MarshalJSON() ([]byte, error) {
	return json.Marshal(tt.String())
}

func (tt *TransferType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTransferType(s)
	if err != nil {
		return err
	}
	*tt = parsed
	return nil
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (ss SettlementStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(ss.String())
}

func (ss *SettlementStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSettlementStatus(s)
	if err != nil {
		return err
	}
	*ss = parsed
	return nil
}

func (tt TerminationType) MarshalJSON() ([]byte, error) {
	return json.Marshal(tt.String())
}

func (tt *TerminationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTerminationType(s)
	if err != nil {
		return err
	}
	*tt = parsed
	return nil
}

func (cm CalcMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(cm.String())
}

func (cm *CalcMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCalcMethod(s)
	if err != nil {
		return err
	}
	*cm = parsed
	return nil
}

func (ts TerminationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *TerminationStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTerminationStatus(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (am AveragingMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(am.String())
}

func (am *AveragingMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAveragingMethod(s)
	if err != nil {
		return err
	}
	*am = parsed
	return nil
}

// ParseDirection converts the wire representation back to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "PAY", "":
		return DirectionPay, nil
	case "RECEIVE":
		return DirectionReceive, nil
	default:
		return DirectionPay, fmt.Errorf("%w: direction %q", fault.ErrInvalidInput, s)
	}
}

// ParseSettlementStatus converts the wire representation back to a status.
func ParseSettlementStatus(s string) (SettlementStatus, error) {
	switch s {
	case "PENDING", "":
		return SettlementPending, nil
	case "INITIATED":
		return SettlementInitiated, nil
	case "SETTLED":
		return SettlementSettled, nil
	case "FAILED":
		return SettlementFailed, nil
	case "CANCELLED":
		return SettlementCancelled, nil
	default:
		return SettlementPending, fmt.Errorf("%w: settlement status %q", fault.ErrInvalidInput, s)
	}
}

// ParseTerminationStatus converts the wire representation back to a status.
func ParseTerminationStatus(s string) (TerminationStatus, error) {
	switch s {
	case "PENDING", "":
		return TerminationPending, nil
	case "CONFIRMED":
		return TerminationConfirmed, nil
	case "SETTLED":
		return TerminationSettled, nil
	case "DISPUTED":
		return TerminationDisputed, nil
	default:
		return TerminationPending, fmt.Errorf("%w: termination status %q", fault.ErrInvalidInput, s)
	}
}
