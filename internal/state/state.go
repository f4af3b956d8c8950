package state

import "encoding/json"

// TradeState is the lifecycle state of a trade.
type TradeState int32

const (
	StateUnknown TradeState = iota
	StateCreated
	StatePending
	StateConfirmed
	StateActive
	StateMatured
	StateTerminated
	StateSettled
)

func (ts TradeState) String() string {
	switch ts {
	case StateCreated:
		return "CREATED"
	case StatePending:
		return "PENDING"
	case StateConfirmed:
		return "CONFIRMED"
	case StateActive:
		return "ACTIVE"
	case StateMatured:
		return "MATURED"
	case StateTerminated:
		return "TERMINATED"
	case StateSettled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

// ParseTradeState converts the wire/storage representation back to a TradeState.
func ParseTradeState(s string) TradeState {
	switch s {
	case "CREATED":
		return StateCreated
	case "PENDING":
		return StatePending
	case "CONFIRMED":
		return StateConfirmed
	case "ACTIVE":
		return StateActive
	case "MATURED":
		return StateMatured
	case "TERMINATED":
		return StateTerminated
	case "SETTLED":
		return StateSettled
	default:
		return StateUnknown
	}
}

// legalTransitions is the adjacency table of the trade lifecycle graph.
// SETTLED is terminal and has no outgoing edges.
var legalTransitions = map[TradeState][]TradeState{
	StateCreated: {
		StatePending,
		StateConfirmed,
	},
	StatePending: {
		StateConfirmed,
		StateCreated, // Confirmation withdrawn before matching
	},
	StateConfirmed: {
		StateActive,
		StateTerminated,
	},
	StateActive: {
		StateMatured,
		StateTerminated,
	},
	StateMatured: {
		StateSettled,
	},
	StateTerminated: {
		StateSettled,
	},
	StateSettled: {
		// Terminal state
	},
}

// CanTransitionTo reports whether (ts, next) is a legal lifecycle edge.
func (ts TradeState) CanTransitionTo(next TradeState) bool {
	allowed, ok := legalTransitions[ts]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if next == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state has no outgoing edges.
func (ts TradeState) IsTerminal() bool {
	return len(legalTransitions[ts]) == 0 && ts != StateUnknown
}

// MarshalJSON encodes the state as its wire string.
func (ts TradeState) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON decodes a wire string back into a TradeState.
func (ts *TradeState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*ts = ParseTradeState(s)
	return nil
}
