package event

import (
	"fmt"
	"time"

	"TradeLedger/internal/fault"
)

// AveragingMethod identifies how a final reset rate was derived from raw
// observations. NONE means a single observation.
type AveragingMethod int32

const (
	AveragingNone AveragingMethod = iota
	AveragingSimple
	AveragingWeighted
	AveragingCompounded
)

func (am AveragingMethod) String() string {
	switch am {
	case AveragingNone:
		return "NONE"
	case AveragingSimple:
		return "SIMPLE"
	case AveragingWeighted:
		return "WEIGHTED"
	case AveragingCompounded:
		return "COMPOUNDED"
	default:
		return "UNKNOWN"
	}
}

// ParseAveragingMethod converts the wire representation back to a method.
func ParseAveragingMethod(s string) (AveragingMethod, error) {
	switch s {
	case "NONE", "":
		return AveragingNone, nil
	case "SIMPLE":
		return AveragingSimple, nil
	case "WEIGHTED":
		return AveragingWeighted, nil
	case "COMPOUNDED":
		return AveragingCompounded, nil
	default:
		return AveragingNone, fmt.Errorf("%w: averaging method %q", fault.ErrInvalidInput, s)
	}
}

// RateObservation is a single observed fixing.
type RateObservation struct {
	ObservedRate    int64 // Fixed-point: rate scale (see fixedpoint.RateConfig)
	ObservationDate time.Time
	RateIndex       string // e.g. "USD-SOFR"; opaque to the core
}

// ResetCalculation is the calculation-period context the observed rate
// applies to. The accrual is produced by external numeric calculators and
// stored here as-is.
type ResetCalculation struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notional    int64 // Fixed-point: amount scale
	Accrual     int64 // Fixed-point: amount scale; stored, never recomputed
}

// Averaging is the optional sub-record describing how the final rate was
// built from raw observations.
type Averaging struct {
	Method             AveragingMethod
	Observations       []int64 // Fixed-point: rate scale
	Weights            []int64 // Required for WEIGHTED, same length as Observations
	CompoundingPeriods int
	FinalRate          int64 // Must equal the reset's observed rate
}

// ResetData is the typed payload for one floating-rate observation. Many
// exist per trade, keyed by the caller-supplied (tradeID, resetNumber);
// numbering follows externally defined calculation periods and need not be
// contiguous, but is strictly unique per trade.
type ResetData struct {
	EventID         string
	TradeID         string
	PayoutReference string
	ResetNumber     int64
	Observation     RateObservation
	Calculation     ResetCalculation
	Averaging       *Averaging

	// Back-link to the reset event for resetNumber-1, if one was recorded.
	PreviousResetEventID *string

	// Independent rate confirmation, set by verifyRate; does not affect
	// the envelope status.
	RateVerified bool
	VerifiedBy   string
}

// Validate runs the payload-level preconditions for a reset.
func (d *ResetData) Validate(now time.Time) error {
	if d.ResetNumber == 0 {
		return fmt.Errorf("%w: reset number must be non-zero", ErrInvalidResetNumber)
	}
	if d.Observation.ObservationDate.After(now) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidObservationDate,
			d.Observation.ObservationDate.Format(time.RFC3339))
	}
	if !d.Calculation.PeriodEnd.After(d.Calculation.PeriodStart) {
		return fmt.Errorf("%w: period end %s not after start %s", ErrInvalidPeriodDates,
			d.Calculation.PeriodEnd.Format(time.RFC3339), d.Calculation.PeriodStart.Format(time.RFC3339))
	}
	if d.Calculation.Notional <= 0 {
		return fmt.Errorf("%w: %d must be positive", ErrInvalidNotional, d.Calculation.Notional)
	}
	if d.Averaging != nil {
		if err := d.Averaging.validate(d.Observation.ObservedRate); err != nil {
			return err
		}
	}
	return nil
}

func (a *Averaging) validate(observedRate int64) error {
	if a.Method == AveragingNone {
		return nil
	}
	if len(a.Observations) == 0 {
		return fmt.Errorf("%w: no raw observations", ErrInvalidAveragingData)
	}
	if a.FinalRate != observedRate {
		return fmt.Errorf("%w: final rate %d does not match observed rate %d",
			ErrInvalidAveragingData, a.FinalRate, observedRate)
	}
	if a.Method == AveragingWeighted && len(a.Weights) != len(a.Observations) {
		return fmt.Errorf("%w: %d weights for %d observations",
			ErrInvalidAveragingData, len(a.Weights), len(a.Observations))
	}
	if a.Method == AveragingCompounded && a.CompoundingPeriods <= 0 {
		return fmt.Errorf("%w: compounding periods must be positive", ErrInvalidAveragingData)
	}
	return nil
}
