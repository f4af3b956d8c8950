package core

import (
	"fmt"

	"TradeLedger/internal/fault"
)

// Stateful failure kinds: preconditions that depend on what has already been
// recorded, as opposed to the payload-intrinsic kinds in the event package.
// Each wraps its taxonomy sentinel so errors.Is matches at either level.
var (
	// ErrAlreadyExecuted: the trade already has its single inception event.
	ErrAlreadyExecuted = fmt.Errorf("%w: trade already executed", fault.ErrAlreadyExists)

	// ErrResetAlreadyExists: (tradeID, resetNumber) has been used.
	ErrResetAlreadyExists = fmt.Errorf("%w: reset number already recorded", fault.ErrAlreadyExists)

	// ErrDuplicateReference: the external payment reference has been used.
	ErrDuplicateReference = fmt.Errorf("%w: duplicate payment reference", fault.ErrAlreadyExists)

	// ErrTradeAlreadyTerminated: the trade already has its termination event.
	ErrTradeAlreadyTerminated = fmt.Errorf("%w: trade already terminated", fault.ErrAlreadyExists)

	// ErrWrongTradeState: the trade is not in CREATED when executing.
	ErrWrongTradeState = fmt.Errorf("%w: trade not in CREATED", fault.ErrWrongLifecycleStage)

	// ErrTradeNotActive: the trade is not in a state the operation accepts.
	ErrTradeNotActive = fmt.Errorf("%w: trade not active", fault.ErrWrongLifecycleStage)

	// ErrAlreadySettled: acting on a transfer or termination that is SETTLED.
	ErrAlreadySettled = fmt.Errorf("%w: already settled", fault.ErrAlreadyTerminal)
)
