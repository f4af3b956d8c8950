package core

import (
	"TradeLedger/internal/event"
	"TradeLedger/internal/state"
)

// Output is what the engine emits after every committed operation: the rows
// downstream workers persist, project, and publish. Exactly the entities the
// operation touched are set; the rest are nil.
type Output struct {
	// Operation name, e.g. "ExecuteTrade", "SettleTransfer". Used for
	// outbound notification subjects and projection dispatch.
	Operation string

	Record     *event.Record
	Snapshot   *state.Snapshot
	Transition *state.Transition

	// Typed payload, at most one set, matching Record.Type. Payload
	// updates (settlement progress, verification flags, dispute marks)
	// re-emit the payload with a nil Snapshot/Transition.
	Execution   *event.ExecutionData
	Reset       *event.ResetData
	Transfer    *event.TransferData
	Termination *event.TerminationData
}

// detachPayload swaps the typed payload pointer for a copy. Recorders hand
// commit their live payload structs, which later operations mutate under the
// engine lock; downstream workers read outputs outside it.
func (o *Output) detachPayload() {
	switch {
	case o.Execution != nil:
		c := *o.Execution
		o.Execution = &c
	case o.Reset != nil:
		c := *o.Reset
		o.Reset = &c
	case o.Transfer != nil:
		c := *o.Transfer
		o.Transfer = &c
	case o.Termination != nil:
		c := *o.Termination
		o.Termination = &c
	}
}
