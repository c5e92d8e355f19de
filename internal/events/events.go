// Package events decodes provider webhook deliveries into typed events.
//
// Every delivery carries a call object; the "type" field selects one of the
// event structs below. Unknown types decode to Unhandled instead of failing,
// so new provider event kinds are acknowledged and ignored.
package events

// Provider event type names.
const (
	TypeCallStart    = "call-start"
	TypeStatusUpdate = "status-update"
	TypeTranscript   = "transcript"
	TypeFunctionCall = "function-call"
	TypeCallEnd      = "call-end"
)

// CallInfo is the call object common to every delivery.
type CallInfo struct {
	ID     string
	Status string
	// BusinessID comes from call.metadata.businessId, set when the call was
	// placed. Empty means the delivery cannot be scoped to a business.
	BusinessID   string
	EndedReason  string
	Duration     *float64
	RecordingURL string
}

func (c CallInfo) Call() CallInfo { return c }

// Event is one decoded webhook delivery.
type Event interface {
	Type() string
	Call() CallInfo
	isEvent()
}

type CallStarted struct{ CallInfo }

// StatusUpdated carries the provider sub-status in CallInfo.Status.
type StatusUpdated struct{ CallInfo }

type TranscriptReceived struct {
	CallInfo
	Role string
	Text string
}

type FunctionCalled struct {
	CallInfo
	Name       string
	Parameters map[string]any
}

type CallEnded struct{ CallInfo }

// Unhandled is any delivery whose type is not recognized.
type Unhandled struct {
	CallInfo
	RawType string
}

func (CallStarted) Type() string        { return TypeCallStart }
func (StatusUpdated) Type() string      { return TypeStatusUpdate }
func (TranscriptReceived) Type() string { return TypeTranscript }
func (FunctionCalled) Type() string     { return TypeFunctionCall }
func (CallEnded) Type() string          { return TypeCallEnd }
func (u Unhandled) Type() string        { return u.RawType }

func (CallStarted) isEvent()        {}
func (StatusUpdated) isEvent()      {}
func (TranscriptReceived) isEvent() {}
func (FunctionCalled) isEvent()     {}
func (CallEnded) isEvent()          {}
func (Unhandled) isEvent()          {}
