package chat

import (
	"context"
	"strings"
	"time"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/store"
	"go.uber.org/zap"
)

const historyFetchTimeout = 10 * time.Second

// HistoryFetcher loads the persisted transcript for a session.
type HistoryFetcher interface {
	Messages(ctx context.Context, sessionID string) ([]store.ChatMessage, error)
}

// Dispatcher routes inbound envelopes to store mutations. It is
// driven by the connection's read loop, so handlers run serialized in
// arrival order.
type Dispatcher struct {
	store   *store.Store
	history HistoryFetcher
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewDispatcher creates a dispatcher. history may be nil when no REST
// collaborator is configured; session attach then skips the transcript
// seed.
func NewDispatcher(st *store.Store, history HistoryFetcher, metrics *monitoring.Metrics, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:   st,
		history: history,
		metrics: metrics,
		log:     log.Named("dispatch"),
	}
}

// Dispatch applies one envelope to the store.
func (d *Dispatcher) Dispatch(env protocol.Envelope) {
	switch p := env.Payload.(type) {
	case *protocol.ConnectedPayload:
		d.handleConnected(p)

	case *protocol.ReasoningStepPayload:
		d.store.UpsertReasoningStep(p)

	case *protocol.TokenPayload:
		d.store.AppendStreamingContent(p.Chunk)
		d.metrics.TokensAppended.Inc()

	case *protocol.TokensPayload:
		// One mutation for the whole batch, preserving chunk order.
		d.store.AppendStreamingContent(strings.Join(p.Chunks, ""))
		d.metrics.TokensAppended.Add(float64(len(p.Chunks)))

	case *protocol.ClarificationRequestPayload:
		d.store.SetPendingClarification(p)
		d.log.Debug("clarification requested",
			zap.String("question_id", p.ID),
			zap.String("field", p.FieldName))

	case *protocol.CalculationPayload:
		// Intermediate results are display-only; the authoritative
		// copies arrive inside response_complete.
		d.log.Debug("calculation received",
			zap.String("calculation_type", p.CalculationType),
			zap.Float64("result", p.Result))

	case *protocol.ContextUpdatedPayload:
		d.store.SetContextVersion(p.Version)

	case *protocol.ResponseCompletePayload:
		if !d.store.FinalizeAssistantMessage(p) {
			d.log.Debug("response_complete without open assistant turn",
				zap.String("message_id", p.MessageID))
		}

	case *protocol.ErrorPayload:
		d.store.SetServiceError(p.Code, p.Message)
		d.log.Warn("service error",
			zap.String("code", p.Code),
			zap.String("message", p.Message),
			zap.Bool("recoverable", p.Recoverable))

	case *protocol.PongPayload:
		// keep-alive reply, nothing to record

	default:
		d.log.Warn("dropping unexpected envelope", zap.String("type", string(env.Type)))
	}
}

func (d *Dispatcher) handleConnected(p *protocol.ConnectedPayload) {
	d.store.SetConnectionStatus(store.StatusConnected)
	d.store.SetContextVersion(p.ContextVersion)
	d.log.Info("session attached",
		zap.String("session_id", p.SessionID),
		zap.Bool("has_context", p.HasContext),
		zap.Int("context_version", p.ContextVersion))

	if d.history == nil || p.SessionID == "" {
		return
	}
	go d.seedHistory(p.SessionID)
}

// seedHistory fetches the persisted transcript after attach. Failures
// are logged and ignored; an existing conversation is never replaced.
func (d *Dispatcher) seedHistory(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), historyFetchTimeout)
	defer cancel()

	messages, err := d.history.Messages(ctx, sessionID)
	if err != nil {
		d.log.Warn("history fetch failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}
	if d.store.SeedMessages(messages) {
		d.log.Debug("transcript seeded",
			zap.String("session_id", sessionID),
			zap.Int("messages", len(messages)))
	}
}
