package store

import (
	"fmt"
	"testing"

	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingAccumulation(t *testing.T) {
	s := New()
	s.StartAssistantMessage()

	chunks := []string{"Permitted", " development", " allows", " up to 4m."}
	for _, c := range chunks {
		s.AppendStreamingContent(c)
	}

	state := s.Snapshot()
	assert.Equal(t, "Permitted development allows up to 4m.", state.Streaming)

	last, ok := state.LastMessage()
	require.True(t, ok)
	assert.True(t, last.IsStreaming)
	assert.Equal(t, state.Streaming, last.Content)
}

func TestStreamingSurvivesInterleavedMutations(t *testing.T) {
	s := New()
	s.StartAssistantMessage()

	s.AppendStreamingContent("one ")
	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 0, Node: "retrieve", Status: protocol.StepProcessing})
	s.AppendStreamingContent("two ")
	s.SetContextVersion(2)
	s.AppendStreamingContent("three")

	assert.Equal(t, "one two three", s.Snapshot().Streaming)
}

func TestStartAssistantMessageResetsTurnState(t *testing.T) {
	s := New()
	s.StartAssistantMessage()
	s.AppendStreamingContent("stale")
	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse", Status: protocol.StepCompleted})
	s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "done", Confidence: protocol.ConfidenceHigh})

	id := s.StartAssistantMessage()

	state := s.Snapshot()
	assert.NotEmpty(t, id)
	assert.Empty(t, state.Streaming)
	assert.Empty(t, state.Reasoning)
	assert.True(t, state.Thinking)

	last, ok := state.LastMessage()
	require.True(t, ok)
	assert.Equal(t, id, last.ID)
	assert.True(t, last.IsStreaming)
}

func TestUpsertReasoningStepReplacesInPlace(t *testing.T) {
	s := New()

	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse", Status: protocol.StepProcessing, Message: "Parsing"})
	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 1, Node: "retrieve", Status: protocol.StepProcessing, Message: "Searching"})
	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse", Status: protocol.StepCompleted, Message: "Parsed"})

	trace := s.Snapshot().Reasoning
	require.Len(t, trace, 2)
	assert.Equal(t, 0, trace[0].Index)
	assert.Equal(t, protocol.StepCompleted, trace[0].Status)
	assert.Equal(t, "Parsed", trace[0].Message)
	assert.Equal(t, 1, trace[1].Index)
}

func TestUpsertReasoningStepIdempotent(t *testing.T) {
	s := New()
	step := &protocol.ReasoningStepPayload{StepIndex: 3, Node: "calculate", Status: protocol.StepCompleted, Message: "3.5m"}

	s.UpsertReasoningStep(step)
	s.UpsertReasoningStep(step)
	s.UpsertReasoningStep(step)

	require.Len(t, s.Snapshot().Reasoning, 1)
}

func TestFinalizeAssistantMessage(t *testing.T) {
	t.Run("closes the streaming turn", func(t *testing.T) {
		s := New()
		s.AddUserMessage("Can I extend 4m?")
		s.StartAssistantMessage()
		s.AppendStreamingContent("partial")

		applied := s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{
			MessageID:          "msg_srv_1",
			FinalAnswer:        "Yes, 4m is within the detached limit.",
			Confidence:         protocol.ConfidenceHigh,
			QueryType:          "compliance_check",
			SuggestedFollowups: []string{"What about height?"},
		})
		require.True(t, applied)

		state := s.Snapshot()
		last, ok := state.LastMessage()
		require.True(t, ok)
		assert.Equal(t, "msg_srv_1", last.ID)
		assert.Equal(t, "Yes, 4m is within the detached limit.", last.Content)
		assert.False(t, last.IsStreaming)
		assert.Equal(t, protocol.ConfidenceHigh, last.Confidence)
		assert.Empty(t, state.Streaming)
		assert.False(t, state.Thinking)
	})

	t.Run("no-op on empty transcript", func(t *testing.T) {
		s := New()
		assert.False(t, s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "stray"}))
		assert.Empty(t, s.Snapshot().Messages)
	})

	t.Run("no-op when last message is a user message", func(t *testing.T) {
		s := New()
		s.AddUserMessage("hello")

		assert.False(t, s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "stray"}))

		last, _ := s.Snapshot().LastMessage()
		assert.Equal(t, RoleUser, last.Role)
		assert.Equal(t, "hello", last.Content)
	})

	t.Run("no-op when the turn is already finalized", func(t *testing.T) {
		s := New()
		s.StartAssistantMessage()
		require.True(t, s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "first"}))

		assert.False(t, s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "second"}))

		last, _ := s.Snapshot().LastMessage()
		assert.Equal(t, "first", last.Content)
	})
}

func TestAbortStreaming(t *testing.T) {
	s := New()
	s.StartAssistantMessage()
	s.AppendStreamingContent("partial answer")

	s.AbortStreaming()

	state := s.Snapshot()
	assert.Empty(t, state.Streaming)
	assert.False(t, state.Thinking)

	last, ok := state.LastMessage()
	require.True(t, ok)
	assert.False(t, last.IsStreaming)
	assert.Equal(t, "partial answer", last.Content)
}

func TestPendingClarificationClearsThinking(t *testing.T) {
	s := New()
	s.StartAssistantMessage()
	require.True(t, s.Snapshot().Thinking)

	s.SetPendingClarification(&protocol.ClarificationRequestPayload{ID: "q1", Question: "Detached or semi?", FieldName: "house_type"})

	state := s.Snapshot()
	assert.False(t, state.Thinking)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "q1", state.Pending.Request.ID)
	assert.True(t, state.IsWaitingForUser())
}

func TestCanSendQuery(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *Store)
		expected bool
	}{
		{"disconnected", func(s *Store) {}, false},
		{"connected and idle", func(s *Store) {
			s.SetConnectionStatus(StatusConnected)
		}, true},
		{"connected but thinking", func(s *Store) {
			s.SetConnectionStatus(StatusConnected)
			s.SetThinking(true)
		}, false},
		{"connected but waiting on clarification", func(s *Store) {
			s.SetConnectionStatus(StatusConnected)
			s.SetPendingClarification(&protocol.ClarificationRequestPayload{ID: "q1"})
		}, false},
		{"error state", func(s *Store) {
			s.SetConnectionError("Connection failed after multiple attempts")
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.mutate(s)
			assert.Equal(t, tt.expected, s.CanSendQuery())
		})
	}
}

func TestHasDrawing(t *testing.T) {
	s := New()
	assert.False(t, s.HasDrawing())

	start, end := drawing.Point{0, 0}, drawing.Point{1, 1}
	s.SetDrawingObjects([]drawing.Object{{Type: drawing.KindLine, Layer: "WALLS", Start: &start, End: &end}})
	assert.True(t, s.HasDrawing())

	s.SetDrawingObjects(nil)
	assert.False(t, s.HasDrawing())
}

func TestSeedMessagesOnlyIntoEmptyTranscript(t *testing.T) {
	history := []ChatMessage{
		{ID: "m1", Role: RoleUser, Content: "earlier question"},
		{ID: "m2", Role: RoleAssistant, Content: "earlier answer"},
	}

	t.Run("seeds when empty", func(t *testing.T) {
		s := New()
		assert.True(t, s.SeedMessages(history))
		assert.Len(t, s.Snapshot().Messages, 2)
	})

	t.Run("refuses when conversation exists", func(t *testing.T) {
		s := New()
		s.AddUserMessage("live question")

		assert.False(t, s.SeedMessages(history))

		msgs := s.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, "live question", msgs[0].Content)
	})
}

func TestMessageIDsAreUnique(t *testing.T) {
	s := New()
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		id := s.AddUserMessage(fmt.Sprintf("q%d", i))
		assert.False(t, seen[id])
		seen[id] = true

		id = s.StartAssistantMessage()
		assert.False(t, seen[id])
		seen[id] = true

		s.FinalizeAssistantMessage(&protocol.ResponseCompletePayload{FinalAnswer: "a"})
	}
}

func TestSubscribeCoalescesNotifications(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		s.AddUserMessage("burst")
	}

	// One pending signal regardless of how many mutations fired.
	<-ch
	select {
	case <-ch:
		t.Fatal("expected coalesced signal, got a second one")
	default:
	}

	before := s.Snapshot().Version
	s.SetThinking(true)
	<-ch
	assert.Greater(t, s.Snapshot().Version, before)
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	s.AddUserMessage("first")
	snap := s.Snapshot()

	s.AddUserMessage("second")
	s.UpsertReasoningStep(&protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse"})

	assert.Len(t, snap.Messages, 1)
	assert.Empty(t, snap.Reasoning)
}

func TestConnectingClearsStaleError(t *testing.T) {
	s := New()
	s.SetConnectionError("Connection failed after multiple attempts")
	require.Equal(t, StatusError, s.Snapshot().Connection)

	s.SetConnectionStatus(StatusConnecting)

	state := s.Snapshot()
	assert.Equal(t, StatusConnecting, state.Connection)
	assert.Empty(t, state.LastError)
}

func TestReset(t *testing.T) {
	s := New()
	s.SetIdentity("dev@groundplan.test")
	s.SetConnectionStatus(StatusConnected)
	s.SetSession("sess_1")
	s.AddUserMessage("question")
	s.SetServiceError("PROCESSING_ERROR", "agent failed")

	s.Reset()

	state := s.Snapshot()
	assert.Equal(t, "dev@groundplan.test", state.Identity)
	assert.Equal(t, StatusConnected, state.Connection)
	assert.Empty(t, state.SessionID)
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.LastError)
}
