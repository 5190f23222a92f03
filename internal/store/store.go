package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/protocol"
)

// Store owns the client state. All mutators are synchronous and
// atomic; readers work on snapshots.
type Store struct {
	mu      sync.RWMutex
	state   State
	subs    map[uint64]chan struct{}
	nextSub uint64
}

// New creates an empty store in the disconnected state.
func New() *Store {
	return &Store{
		state: State{Connection: StatusDisconnected},
		subs:  make(map[uint64]chan struct{}),
	}
}

// Snapshot returns a copy of the current state. Slices are cloned so
// callers can hold snapshots across later mutations.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyState()
}

// Subscribe registers for change notifications. The returned channel
// receives a coalesced signal after one or more mutations; cancel
// releases the subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

// SetConnectionStatus records a connection lifecycle transition. A
// fresh connecting attempt clears any stale error.
func (s *Store) SetConnectionStatus(status ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Connection = status
	if status == StatusConnecting {
		s.state.LastError = ""
		s.state.LastErrorCode = ""
	}
	s.notify()
}

// SetConnectionError moves the connection into the error state with a
// terminal message.
func (s *Store) SetConnectionError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Connection = StatusError
	s.state.LastError = message
	s.notify()
}

// SetServiceError records an application-level error envelope.
func (s *Store) SetServiceError(code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastErrorCode = code
	s.state.LastError = message
	s.notify()
}

// SetSession binds the store to a session.
func (s *Store) SetSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.SessionID = sessionID
	s.notify()
}

// SetIdentity records the signed-in account for display.
func (s *Store) SetIdentity(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Identity = email
	s.notify()
}

// SetContextVersion mirrors the server's context version.
func (s *Store) SetContextVersion(version int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ContextVersion = version
	s.notify()
}

// SetDrawingObjects replaces the local drawing context.
func (s *Store) SetDrawingObjects(objects []drawing.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.DrawingObjects = append([]drawing.Object(nil), objects...)
	s.notify()
}

// SetThinking toggles the agent-busy flag.
func (s *Store) SetThinking(thinking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Thinking = thinking
	s.notify()
}

// AddUserMessage appends a user message and returns its id.
func (s *Store) AddUserMessage(content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ChatMessage{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.state.Messages = append(s.state.Messages, msg)
	s.notify()
	return msg.ID
}

// StartAssistantMessage opens a streaming assistant turn: appends a
// placeholder message, clears the reasoning trace and the streaming
// accumulator, and marks the agent busy. Returns the placeholder id.
func (s *Store) StartAssistantMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ChatMessage{
		ID:          uuid.New().String(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
	s.state.Messages = append(s.state.Messages, msg)
	s.state.Reasoning = nil
	s.state.Streaming = ""
	s.state.Thinking = true
	s.notify()
	return msg.ID
}

// AppendStreamingContent appends answer fragments to the streaming
// accumulator and mirrors them into the open assistant message.
func (s *Store) AppendStreamingContent(chunk string) {
	if chunk == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Streaming += chunk
	if i := len(s.state.Messages) - 1; i >= 0 {
		if m := &s.state.Messages[i]; m.Role == RoleAssistant && m.IsStreaming {
			m.Content = s.state.Streaming
		}
	}
	s.notify()
}

// FinalizeAssistantMessage closes the open assistant turn with the
// completed response. It applies only when the newest message is a
// streaming assistant placeholder; anything else is a no-op and
// returns false.
func (s *Store) FinalizeAssistantMessage(p *protocol.ResponseCompletePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.state.Messages) - 1
	if i < 0 {
		return false
	}
	m := &s.state.Messages[i]
	if m.Role != RoleAssistant || !m.IsStreaming {
		return false
	}

	if p.MessageID != "" {
		m.ID = p.MessageID
	}
	m.Content = p.FinalAnswer
	m.IsStreaming = false
	m.QueryType = p.QueryType
	m.Confidence = p.Confidence
	m.Sources = p.Sources
	m.Calculations = p.Calculations
	m.Assumptions = p.Assumptions
	m.SuggestedFollowups = p.SuggestedFollowups

	s.state.Streaming = ""
	s.state.Thinking = false
	s.notify()
	return true
}

// AbortStreaming ends the open assistant turn without a final answer.
// Partial content already mirrored into the message stays visible;
// the accumulator and the busy flag are cleared.
func (s *Store) AbortStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := len(s.state.Messages) - 1; i >= 0 {
		if m := &s.state.Messages[i]; m.Role == RoleAssistant && m.IsStreaming {
			m.IsStreaming = false
		}
	}
	s.state.Streaming = ""
	s.state.Thinking = false
	s.notify()
}

// UpsertReasoningStep inserts or replaces a trace step keyed by its
// index. First-appearance order is preserved on replacement.
func (s *Store) UpsertReasoningStep(p *protocol.ReasoningStepPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := ReasoningStep{
		Index:     p.StepIndex,
		Node:      p.Node,
		Status:    p.Status,
		Message:   p.Message,
		Timestamp: p.Timestamp,
	}

	for i := range s.state.Reasoning {
		if s.state.Reasoning[i].Index == step.Index {
			s.state.Reasoning[i] = step
			s.notify()
			return
		}
	}
	s.state.Reasoning = append(s.state.Reasoning, step)
	s.notify()
}

// SetPendingClarification parks the conversation on a question for
// the user. The agent is no longer thinking while it waits.
func (s *Store) SetPendingClarification(p *protocol.ClarificationRequestPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Pending = &PendingClarification{Request: *p, ReceivedAt: time.Now()}
	s.state.Thinking = false
	s.notify()
}

// ClearPendingClarification removes the pending question.
func (s *Store) ClearPendingClarification() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Pending = nil
	s.notify()
}

// SeedMessages loads a fetched transcript, but only into an empty
// conversation; a live transcript is never overwritten. Returns
// whether the seed applied.
func (s *Store) SeedMessages(messages []ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Messages) > 0 {
		return false
	}
	s.state.Messages = append([]ChatMessage(nil), messages...)
	s.notify()
	return true
}

// Reset clears all conversation-scoped state. The signed-in identity
// survives; connection status is left to the connection owner.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := s.state.Identity
	connection := s.state.Connection
	version := s.state.Version
	s.state = State{
		Connection: connection,
		Identity:   identity,
		Version:    version,
	}
	s.notify()
}

// Derived reads over the live state.

func (s *Store) CanSendQuery() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CanSendQuery()
}

func (s *Store) IsWaitingForUser() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsWaitingForUser()
}

func (s *Store) HasDrawing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.HasDrawing()
}

// notify bumps the version and signals subscribers without blocking.
// Callers must hold the write lock.
func (s *Store) notify() {
	s.state.Version++
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// copyState clones the state. Callers must hold at least a read lock.
func (s *Store) copyState() State {
	out := s.state
	out.Messages = append([]ChatMessage(nil), s.state.Messages...)
	out.Reasoning = append([]ReasoningStep(nil), s.state.Reasoning...)
	out.DrawingObjects = append([]drawing.Object(nil), s.state.DrawingObjects...)
	if s.state.Pending != nil {
		pending := *s.state.Pending
		out.Pending = &pending
	}
	return out
}
