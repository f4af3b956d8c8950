package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for the four business-event kinds.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeExecution
	EventTypeReset
	EventTypeTransfer
	EventTypeTermination
)

func (et EventType) String() string {
	switch et {
	case EventTypeExecution:
		return "Execution"
	case EventTypeReset:
		return "Reset"
	case EventTypeTransfer:
		return "Transfer"
	case EventTypeTermination:
		return "Termination"
	default:
		return "Unknown"
	}
}

// ParseEventType converts the storage representation back to an EventType.
func ParseEventType(s string) EventType {
	switch s {
	case "Execution":
		return EventTypeExecution
	case "Reset":
		return EventTypeReset
	case "Transfer":
		return EventTypeTransfer
	case "Termination":
		return EventTypeTermination
	default:
		return EventTypeUnknown
	}
}

// EventStatus is the envelope lifecycle: PENDING at creation, then exactly
// one of the terminal statuses. Terminal statuses are immutable.
type EventStatus int32

const (
	StatusPending EventStatus = iota
	StatusProcessed
	StatusFailed
)

func (es EventStatus) String() string {
	switch es {
	case StatusPending:
		return "PENDING"
	case StatusProcessed:
		return "PROCESSED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseEventStatus converts the storage representation back to an EventStatus.
func ParseEventStatus(s string) EventStatus {
	switch s {
	case "PROCESSED":
		return StatusProcessed
	case "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// IsTerminal returns true once the status can no longer change.
func (es EventStatus) IsTerminal() bool {
	return es == StatusProcessed || es == StatusFailed
}

// Record is the generic envelope shared by all event kinds. The typed payload
// lives with the recorder that owns it; the envelope carries only metadata,
// status, and the state-snapshot references that tie the event to the
// lifecycle it caused.
type Record struct {
	EventID       string
	Type          EventType
	Status        EventStatus
	Timestamp     time.Time
	EffectiveDate time.Time
	TradeID       string
	Parties       []string
	Initiator     string

	// Snapshot references. For no-transition events BeforeStateID == AfterStateID.
	BeforeStateID *uuid.UUID
	AfterStateID  *uuid.UUID

	// Per-trade backward link: the event id of the trade's previous event,
	// nil for the trade's first event. A lookup key into the ledger, never
	// an owning pointer.
	PreviousEventID *string

	Valid   bool
	Message string
}

// Clone returns a deep copy so ledger internals never escape to callers.
func (r *Record) Clone() *Record {
	c := *r
	c.Parties = append([]string(nil), r.Parties...)
	if r.BeforeStateID != nil {
		v := *r.BeforeStateID
		c.BeforeStateID = &v
	}
	if r.AfterStateID != nil {
		v := *r.AfterStateID
		c.AfterStateID = &v
	}
	if r.PreviousEventID != nil {
		v := *r.PreviousEventID
		c.PreviousEventID = &v
	}
	return &c
}
