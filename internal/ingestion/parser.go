package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"TradeLedger/internal/event"
	"TradeLedger/internal/fixedpoint"
)

// ParseCommand converts raw JSON bytes into a typed Command. Monetary amounts
// arrive as decimal strings and are converted to fixed-point integers here;
// the engine never sees floating point or raw decimals.
func ParseCommand(commandType string, data []byte) (Command, error) {
	switch commandType {
	case "CreateTrade":
		return parseCreateTrade(data)
	case "ExecuteTrade":
		return parseExecuteTrade(data)
	case "RecordReset":
		return parseRecordReset(data)
	case "VerifyRate":
		return parseVerifyRate(data)
	case "RecordTransfer":
		return parseRecordTransfer(data)
	case "Settlement":
		return parseSettlement(data)
	case "TerminateTrade":
		return parseTerminateTrade(data)
	case "TerminationAction":
		return parseTerminationAction(data)
	case "Lifecycle":
		return parseLifecycle(data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Timestamps are
// RFC3339; amounts and rates are decimal strings.

type createTradeJSON struct {
	TradeID       string    `json:"trade_id"`
	ProductType   string    `json:"product_type"`
	Parties       []string  `json:"parties"`
	EffectiveDate time.Time `json:"effective_date"`
	MaturityDate  time.Time `json:"maturity_date"`
}

func parseCreateTrade(data []byte) (*CreateTradeCommand, error) {
	var j createTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateTrade: %w", err)
	}
	return &CreateTradeCommand{
		TradeID:       j.TradeID,
		ProductType:   j.ProductType,
		Parties:       j.Parties,
		EffectiveDate: j.EffectiveDate,
		MaturityDate:  j.MaturityDate,
	}, nil
}

type executeTradeJSON struct {
	EventID            string    `json:"event_id"`
	TradeID            string    `json:"trade_id"`
	Venue              string    `json:"venue"`
	Price              string    `json:"price"`
	ConfirmationMethod string    `json:"confirmation_method"`
	ExecutedAt         time.Time `json:"executed_at"`
	Notional           string    `json:"notional"`
	Currency           string    `json:"currency"`
	EffectiveDate      time.Time `json:"effective_date"`
	MaturityDate       time.Time `json:"maturity_date"`
	Buyer              string    `json:"buyer"`
	Seller             string    `json:"seller"`
	Broker             *string   `json:"broker,omitempty"`
	TradeDate          time.Time `json:"trade_date"`
}

func parseExecuteTrade(data []byte) (*ExecuteTradeCommand, error) {
	var j executeTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExecuteTrade: %w", err)
	}

	price, err := fixedpoint.Parse(j.Price, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	notional, err := fixedpoint.Parse(j.Notional, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse notional: %w", err)
	}

	return &ExecuteTradeCommand{
		EventID: j.EventID,
		TradeID: j.TradeID,
		Details: event.ExecutionDetails{
			Venue:              j.Venue,
			Price:              price,
			ConfirmationMethod: j.ConfirmationMethod,
			Timestamp:          j.ExecutedAt,
		},
		Terms: event.EconomicTerms{
			Notional:      notional,
			Currency:      j.Currency,
			EffectiveDate: j.EffectiveDate,
			MaturityDate:  j.MaturityDate,
		},
		Buyer:     j.Buyer,
		Seller:    j.Seller,
		Broker:    j.Broker,
		TradeDate: j.TradeDate,
	}, nil
}

type averagingJSON struct {
	Method             string   `json:"method"`
	Observations       []string `json:"observations"`
	Weights            []string `json:"weights,omitempty"`
	CompoundingPeriods int      `json:"compounding_periods,omitempty"`
	FinalRate          string   `json:"final_rate"`
}

type recordResetJSON struct {
	EventID         string         `json:"event_id"`
	TradeID         string         `json:"trade_id"`
	PayoutReference string         `json:"payout_reference"`
	ResetNumber     int64          `json:"reset_number"`
	ObservedRate    string         `json:"observed_rate"`
	ObservationDate time.Time      `json:"observation_date"`
	RateIndex       string         `json:"rate_index"`
	PeriodStart     time.Time      `json:"period_start"`
	PeriodEnd       time.Time      `json:"period_end"`
	Notional        string         `json:"notional"`
	Accrual         string         `json:"accrual"`
	Averaging       *averagingJSON `json:"averaging,omitempty"`
	Initiator       string         `json:"initiator"`
}

func parseRecordReset(data []byte) (*RecordResetCommand, error) {
	var j recordResetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RecordReset: %w", err)
	}

	rate, err := fixedpoint.Parse(j.ObservedRate, fixedpoint.RateConfig)
	if err != nil {
		return nil, fmt.Errorf("parse observed_rate: %w", err)
	}
	notional, err := fixedpoint.Parse(j.Notional, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse notional: %w", err)
	}
	accrual, err := fixedpoint.Parse(j.Accrual, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse accrual: %w", err)
	}

	cmd := &RecordResetCommand{
		EventID:         j.EventID,
		TradeID:         j.TradeID,
		PayoutReference: j.PayoutReference,
		ResetNumber:     j.ResetNumber,
		Observation: event.RateObservation{
			ObservedRate:    rate,
			ObservationDate: j.ObservationDate,
			RateIndex:       j.RateIndex,
		},
		Calculation: event.ResetCalculation{
			PeriodStart: j.PeriodStart,
			PeriodEnd:   j.PeriodEnd,
			Notional:    notional,
			Accrual:     accrual,
		},
		Initiator: j.Initiator,
	}

	if j.Averaging != nil {
		avg, err := parseAveraging(j.Averaging)
		if err != nil {
			return nil, err
		}
		cmd.Averaging = avg
	}
	return cmd, nil
}

func parseAveraging(j *averagingJSON) (*event.Averaging, error) {
	method, err := event.ParseAveragingMethod(j.Method)
	if err != nil {
		return nil, err
	}
	finalRate, err := fixedpoint.Parse(j.FinalRate, fixedpoint.RateConfig)
	if err != nil {
		return nil, fmt.Errorf("parse final_rate: %w", err)
	}

	observations := make([]int64, 0, len(j.Observations))
	for i, s := range j.Observations {
		v, err := fixedpoint.Parse(s, fixedpoint.RateConfig)
		if err != nil {
			return nil, fmt.Errorf("parse observation %d: %w", i, err)
		}
		observations = append(observations, v)
	}

	weights := make([]int64, 0, len(j.Weights))
	for i, s := range j.Weights {
		v, err := fixedpoint.Parse(s, fixedpoint.RateConfig)
		if err != nil {
			return nil, fmt.Errorf("parse weight %d: %w", i, err)
		}
		weights = append(weights, v)
	}

	return &event.Averaging{
		Method:             method,
		Observations:       observations,
		Weights:            weights,
		CompoundingPeriods: j.CompoundingPeriods,
		FinalRate:          finalRate,
	}, nil
}

type verifyRateJSON struct {
	EventID  string `json:"event_id"`
	Verifier string `json:"verifier"`
}

func parseVerifyRate(data []byte) (*VerifyRateCommand, error) {
	var j verifyRateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VerifyRate: %w", err)
	}
	return &VerifyRateCommand{EventID: j.EventID, Verifier: j.Verifier}, nil
}

type recordTransferJSON struct {
	EventID          string    `json:"event_id"`
	TradeID          string    `json:"trade_id"`
	TransferType     string    `json:"transfer_type"`
	GrossAmount      string    `json:"gross_amount"`
	NetAmount        string    `json:"net_amount"`
	Currency         string    `json:"currency"`
	Direction        string    `json:"direction"`
	ValueDate        time.Time `json:"value_date"`
	PaymentReference *string   `json:"payment_reference,omitempty"`
	Payer            string    `json:"payer"`
	Receiver         string    `json:"receiver"`
	Initiator        string    `json:"initiator"`
}

func parseRecordTransfer(data []byte) (*RecordTransferCommand, error) {
	var j recordTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RecordTransfer: %w", err)
	}

	transferType, err := event.ParseTransferType(j.TransferType)
	if err != nil {
		return nil, err
	}
	direction, err := event.ParseDirection(j.Direction)
	if err != nil {
		return nil, err
	}
	gross, err := fixedpoint.Parse(j.GrossAmount, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse gross_amount: %w", err)
	}
	net, err := fixedpoint.Parse(j.NetAmount, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse net_amount: %w", err)
	}

	return &RecordTransferCommand{
		EventID: j.EventID,
		TradeID: j.TradeID,
		Type:    transferType,
		Payment: event.PaymentDetails{
			GrossAmount:      gross,
			NetAmount:        net,
			Currency:         j.Currency,
			Direction:        direction,
			ValueDate:        j.ValueDate,
			PaymentReference: j.PaymentReference,
		},
		Parties: event.TransferParties{
			Payer:    j.Payer,
			Receiver: j.Receiver,
		},
		Initiator: j.Initiator,
	}, nil
}

type settlementJSON struct {
	EventID        string    `json:"event_id"`
	Action         string    `json:"action"`
	SettlementDate time.Time `json:"settlement_date,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Verifier       string    `json:"verifier,omitempty"`
}

func parseSettlement(data []byte) (*SettlementCommand, error) {
	var j settlementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Settlement: %w", err)
	}
	switch j.Action {
	case "initiate", "settle", "fail", "cancel", "verify":
	default:
		return nil, fmt.Errorf("unknown settlement action: %q", j.Action)
	}
	return &SettlementCommand{
		EventID:        j.EventID,
		Action:         j.Action,
		SettlementDate: j.SettlementDate,
		Reference:      j.Reference,
		Reason:         j.Reason,
		Verifier:       j.Verifier,
	}, nil
}

type terminateTradeJSON struct {
	EventID          string    `json:"event_id"`
	TradeID          string    `json:"trade_id"`
	TerminationType  string    `json:"termination_type"`
	TerminationDate  time.Time `json:"termination_date"`
	NotificationDate time.Time `json:"notification_date"`
	Reason           string    `json:"reason"`
	CalcMethod       string    `json:"calc_method"`
	Value            string    `json:"value"`
	Currency         string    `json:"currency"`
	Payer            string    `json:"payer"`
	Receiver         string    `json:"receiver"`
	Initiator        string    `json:"initiator"`
}

func parseTerminateTrade(data []byte) (*TerminateTradeCommand, error) {
	var j terminateTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TerminateTrade: %w", err)
	}

	terminationType, err := event.ParseTerminationType(j.TerminationType)
	if err != nil {
		return nil, err
	}
	method, err := event.ParseCalcMethod(j.CalcMethod)
	if err != nil {
		return nil, err
	}
	value, err := fixedpoint.Parse(j.Value, fixedpoint.AmountConfig)
	if err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}

	return &TerminateTradeCommand{
		EventID: j.EventID,
		TradeID: j.TradeID,
		Details: event.TerminationDetails{
			Type:             terminationType,
			TerminationDate:  j.TerminationDate,
			NotificationDate: j.NotificationDate,
			Reason:           j.Reason,
		},
		Payment: event.TerminationPayment{
			Method:   method,
			Value:    value,
			Currency: j.Currency,
			Payer:    j.Payer,
			Receiver: j.Receiver,
		},
		Initiator: j.Initiator,
	}, nil
}

type terminationActionJSON struct {
	EventID         string `json:"event_id"`
	Action          string `json:"action"`
	DisputedBy      string `json:"disputed_by,omitempty"`
	Reason          string `json:"reason,omitempty"`
	TransferEventID string `json:"transfer_event_id,omitempty"`
}

func parseTerminationAction(data []byte) (*TerminationActionCommand, error) {
	var j terminationActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TerminationAction: %w", err)
	}
	switch j.Action {
	case "confirm", "dispute", "link":
	default:
		return nil, fmt.Errorf("unknown termination action: %q", j.Action)
	}
	return &TerminationActionCommand{
		EventID:         j.EventID,
		Action:          j.Action,
		DisputedBy:      j.DisputedBy,
		Reason:          j.Reason,
		TransferEventID: j.TransferEventID,
	}, nil
}

type lifecycleJSON struct {
	TradeID   string `json:"trade_id"`
	Action    string `json:"action"`
	Initiator string `json:"initiator"`
}

func parseLifecycle(data []byte) (*LifecycleCommand, error) {
	var j lifecycleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Lifecycle: %w", err)
	}
	switch j.Action {
	case "submit", "withdraw", "confirm", "activate", "mature", "settle":
	default:
		return nil, fmt.Errorf("unknown lifecycle action: %q", j.Action)
	}
	return &LifecycleCommand{
		TradeID:   j.TradeID,
		Action:    j.Action,
		Initiator: j.Initiator,
	}, nil
}
