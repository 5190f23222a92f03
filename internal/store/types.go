package store

import (
	"time"

	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/protocol"
)

// ConnectionStatus is the lifecycle state of the stream connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in the ordered conversation transcript.
// Assistant messages start as streaming placeholders and are finalized
// in place when the response completes.
type ChatMessage struct {
	ID                 string
	Role               Role
	Content            string
	Timestamp          time.Time
	IsStreaming        bool
	QueryType          string
	Confidence         protocol.Confidence
	Sources            []protocol.SourceCitation
	Calculations       []protocol.CalculationPayload
	Assumptions        []protocol.Assumption
	SuggestedFollowups []string
}

// ReasoningStep is one node of the agent's visible reasoning trace,
// keyed by Index. Re-delivery of an index replaces the step in place.
type ReasoningStep struct {
	Index     int
	Node      string
	Status    protocol.StepStatus
	Message   string
	Timestamp string
}

// PendingClarification blocks query submission until answered.
type PendingClarification struct {
	Request    protocol.ClarificationRequestPayload
	ReceivedAt time.Time
}

// State is an immutable snapshot of the full client state.
type State struct {
	Connection     ConnectionStatus
	SessionID      string
	Identity       string
	LastErrorCode  string
	LastError      string
	ContextVersion int

	Messages  []ChatMessage
	Reasoning []ReasoningStep
	Pending   *PendingClarification
	Streaming string
	Thinking  bool

	DrawingObjects []drawing.Object

	// Version increments once per mutation.
	Version uint64
}

// HasDrawing reports whether the session carries drawing context.
func (s State) HasDrawing() bool {
	return len(s.DrawingObjects) > 0
}

// IsWaitingForUser reports whether a clarification is pending.
func (s State) IsWaitingForUser() bool {
	return s.Pending != nil
}

// CanSendQuery reports whether a new query may be submitted: the
// stream must be up, the agent idle, and no clarification pending.
func (s State) CanSendQuery() bool {
	return s.Connection == StatusConnected && !s.Thinking && s.Pending == nil
}

// LastMessage returns the newest message, or false when the
// transcript is empty.
func (s State) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
