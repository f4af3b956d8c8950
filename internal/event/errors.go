package event

import (
	"fmt"

	"TradeLedger/internal/fault"
)

// Payload-intrinsic failure kinds. Each wraps its taxonomy sentinel so
// errors.Is matches at either granularity.
var (
	ErrInvalidParties         = fmt.Errorf("%w: invalid parties", fault.ErrInvalidInput)
	ErrInvalidDates           = fmt.Errorf("%w: invalid dates", fault.ErrInvalidInput)
	ErrInvalidNotional        = fmt.Errorf("%w: invalid notional", fault.ErrInvalidInput)
	ErrInvalidAmount          = fmt.Errorf("%w: invalid amount", fault.ErrInvalidInput)
	ErrInvalidResetNumber     = fmt.Errorf("%w: invalid reset number", fault.ErrInvalidInput)
	ErrInvalidObservationDate = fmt.Errorf("%w: invalid observation date", fault.ErrInvalidInput)
	ErrInvalidPeriodDates     = fmt.Errorf("%w: invalid period dates", fault.ErrInvalidInput)
	ErrInvalidAveragingData   = fmt.Errorf("%w: invalid averaging data", fault.ErrInvalidInput)
	ErrInvalidTerminationDate = fmt.Errorf("%w: invalid termination date", fault.ErrInvalidInput)
	ErrInvalidPaymentDetails  = fmt.Errorf("%w: invalid payment details", fault.ErrInvalidInput)
)
