package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	messages []store.ChatMessage
	err      error
	calls    chan string
}

func (f *fakeHistory) Messages(ctx context.Context, sessionID string) ([]store.ChatMessage, error) {
	if f.calls != nil {
		f.calls <- sessionID
	}
	return f.messages, f.err
}

func newTestDispatcher(st *store.Store, history HistoryFetcher) *Dispatcher {
	metrics := monitoring.New(prometheus.NewRegistry())
	return NewDispatcher(st, history, metrics, logging.NewNop())
}

func TestDispatchConnected(t *testing.T) {
	st := store.New()
	history := &fakeHistory{
		messages: []store.ChatMessage{
			{ID: "m1", Role: store.RoleUser, Content: "old question"},
			{ID: "m2", Role: store.RoleAssistant, Content: "old answer"},
		},
		calls: make(chan string, 1),
	}
	d := newTestDispatcher(st, history)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeConnected,
		Payload: &protocol.ConnectedPayload{SessionID: "sess_1", HasContext: true, ContextVersion: 4},
	})

	state := st.Snapshot()
	assert.Equal(t, store.StatusConnected, state.Connection)
	assert.Equal(t, 4, state.ContextVersion)

	select {
	case sessionID := <-history.calls:
		assert.Equal(t, "sess_1", sessionID)
	case <-time.After(time.Second):
		t.Fatal("history fetch was not triggered")
	}

	require.Eventually(t, func() bool {
		return len(st.Snapshot().Messages) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchConnectedHistoryFailureIsNotFatal(t *testing.T) {
	st := store.New()
	history := &fakeHistory{err: errors.New("service unavailable"), calls: make(chan string, 1)}
	d := newTestDispatcher(st, history)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeConnected,
		Payload: &protocol.ConnectedPayload{SessionID: "sess_1"},
	})

	<-history.calls
	assert.Equal(t, store.StatusConnected, st.Snapshot().Connection)
	assert.Empty(t, st.Snapshot().Messages)
}

func TestDispatchConnectedWithoutHistoryFetcher(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeConnected,
		Payload: &protocol.ConnectedPayload{SessionID: "sess_1"},
	})

	assert.Equal(t, store.StatusConnected, st.Snapshot().Connection)
}

func TestDispatchHistoryNeverReplacesLiveTranscript(t *testing.T) {
	st := store.New()
	st.AddUserMessage("live question")
	history := &fakeHistory{
		messages: []store.ChatMessage{{ID: "m1", Role: store.RoleUser, Content: "old"}},
		calls:    make(chan string, 1),
	}
	d := newTestDispatcher(st, history)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeConnected,
		Payload: &protocol.ConnectedPayload{SessionID: "sess_1"},
	})

	<-history.calls
	time.Sleep(50 * time.Millisecond)

	msgs := st.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "live question", msgs[0].Content)
}

func TestDispatchTokenStreaming(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)
	st.StartAssistantMessage()

	for i, chunk := range []string{"A", " rear", " extension"} {
		d.Dispatch(protocol.Envelope{
			Type:    protocol.TypeToken,
			Payload: &protocol.TokenPayload{Chunk: chunk, Node: "answer", TokenIndex: i},
		})
	}

	assert.Equal(t, "A rear extension", st.Snapshot().Streaming)
}

func TestDispatchTokensBatchMatchesSequentialTokens(t *testing.T) {
	chunks := []string{"up", " to", " four", " metres"}

	sequential := store.New()
	sequential.StartAssistantMessage()
	ds := newTestDispatcher(sequential, nil)
	for i, c := range chunks {
		ds.Dispatch(protocol.Envelope{
			Type:    protocol.TypeToken,
			Payload: &protocol.TokenPayload{Chunk: c, TokenIndex: i},
		})
	}

	batched := store.New()
	batched.StartAssistantMessage()
	db := newTestDispatcher(batched, nil)
	versionBefore := batched.Snapshot().Version
	db.Dispatch(protocol.Envelope{
		Type:    protocol.TypeTokens,
		Payload: &protocol.TokensPayload{Chunks: chunks},
	})

	assert.Equal(t, sequential.Snapshot().Streaming, batched.Snapshot().Streaming)
	// The whole batch lands as one mutation.
	assert.Equal(t, versionBefore+1, batched.Snapshot().Version)
}

func TestDispatchReasoningStepUpsert(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeReasoningStep,
		Payload: &protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse", Status: protocol.StepProcessing},
	})
	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeReasoningStep,
		Payload: &protocol.ReasoningStepPayload{StepIndex: 0, Node: "parse", Status: protocol.StepCompleted},
	})

	trace := st.Snapshot().Reasoning
	require.Len(t, trace, 1)
	assert.Equal(t, protocol.StepCompleted, trace[0].Status)
}

func TestDispatchClarificationRequest(t *testing.T) {
	st := store.New()
	st.SetThinking(true)
	d := newTestDispatcher(st, nil)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeClarificationRequest,
		Payload: &protocol.ClarificationRequestPayload{ID: "q1", Question: "Detached?", FieldName: "house_type"},
	})

	state := st.Snapshot()
	assert.False(t, state.Thinking)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "q1", state.Pending.Request.ID)
}

func TestDispatchCalculationLeavesStateUntouched(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)
	before := st.Snapshot().Version

	d.Dispatch(protocol.Envelope{
		Type: protocol.TypeCalculation,
		Payload: &protocol.CalculationPayload{
			CalculationType: "rear_projection",
			Result:          3.5,
			Unit:            "m",
		},
	})

	assert.Equal(t, before, st.Snapshot().Version)
}

func TestDispatchContextUpdated(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeContextUpdated,
		Payload: &protocol.ContextUpdatedPayload{Source: "upload", Version: 7},
	})

	assert.Equal(t, 7, st.Snapshot().ContextVersion)
}

func TestDispatchResponseComplete(t *testing.T) {
	t.Run("finalizes the open turn", func(t *testing.T) {
		st := store.New()
		st.StartAssistantMessage()
		d := newTestDispatcher(st, nil)

		d.Dispatch(protocol.Envelope{
			Type: protocol.TypeResponseComplete,
			Payload: &protocol.ResponseCompletePayload{
				MessageID:   "msg_1",
				FinalAnswer: "Within limits.",
				Confidence:  protocol.ConfidenceHigh,
			},
		})

		last, ok := st.Snapshot().LastMessage()
		require.True(t, ok)
		assert.Equal(t, "Within limits.", last.Content)
		assert.False(t, last.IsStreaming)
	})

	t.Run("safe without an open turn", func(t *testing.T) {
		st := store.New()
		st.AddUserMessage("hello")
		d := newTestDispatcher(st, nil)

		d.Dispatch(protocol.Envelope{
			Type:    protocol.TypeResponseComplete,
			Payload: &protocol.ResponseCompletePayload{FinalAnswer: "stray"},
		})

		msgs := st.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Content)
	})
}

func TestDispatchError(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)

	d.Dispatch(protocol.Envelope{
		Type:    protocol.TypeError,
		Payload: &protocol.ErrorPayload{Code: "PROCESSING_ERROR", Message: "agent failed", Recoverable: true},
	})

	state := st.Snapshot()
	assert.Equal(t, "PROCESSING_ERROR", state.LastErrorCode)
	assert.Equal(t, "agent failed", state.LastError)
}

func TestDispatchPongIsNoop(t *testing.T) {
	st := store.New()
	d := newTestDispatcher(st, nil)
	before := st.Snapshot().Version

	d.Dispatch(protocol.Envelope{Type: protocol.TypePong, Payload: &protocol.PongPayload{}})

	assert.Equal(t, before, st.Snapshot().Version)
}
