package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/store"
	"go.uber.org/zap"
)

// maxQueryLength mirrors the server-side content limit.
const maxQueryLength = 2000

var (
	ErrEmptyQuery             = errors.New("query is empty")
	ErrQueryTooLong           = errors.New("query exceeds 2000 characters")
	ErrNotReady               = errors.New("cannot send query now")
	ErrNoPendingClarification = errors.New("no clarification is pending")
)

// Transport sends envelopes over the stream connection.
type Transport interface {
	Send(env protocol.Envelope) error
}

// Service implements the user-facing conversation operations on top
// of the store and the stream transport.
type Service struct {
	store            *store.Store
	transport        Transport
	metrics          *monitoring.Metrics
	log              *logging.Logger
	includeReasoning bool
}

// NewService creates a conversation service. includeReasoning asks
// the server to stream reasoning steps alongside answers.
func NewService(st *store.Store, transport Transport, metrics *monitoring.Metrics, log *logging.Logger, includeReasoning bool) *Service {
	return &Service{
		store:            st,
		transport:        transport,
		metrics:          metrics,
		log:              log.Named("chat"),
		includeReasoning: includeReasoning,
	}
}

// SendQuery submits a user question. The transcript gains the user
// message and a streaming assistant placeholder before the envelope
// goes out; the returned id is the user message id.
func (s *Service) SendQuery(content string) (string, error) {
	if content == "" {
		return "", ErrEmptyQuery
	}
	if utf8.RuneCountInString(content) > maxQueryLength {
		return "", ErrQueryTooLong
	}
	if !s.store.CanSendQuery() {
		return "", ErrNotReady
	}

	userID := s.store.AddUserMessage(content)
	s.store.StartAssistantMessage()

	if err := s.transport.Send(protocol.NewQuery(content, s.includeReasoning)); err != nil {
		s.store.AbortStreaming()
		return "", fmt.Errorf("send query: %w", err)
	}

	s.metrics.QueriesSent.Inc()
	s.log.Debug("query sent", zap.String("message_id", userID))
	return userID, nil
}

// RespondToClarification answers the pending question. The pending
// state clears and the agent goes back to thinking before the answer
// envelope is written.
func (s *Service) RespondToClarification(value, text string) error {
	snap := s.store.Snapshot()
	if snap.Pending == nil {
		return ErrNoPendingClarification
	}
	questionID := snap.Pending.Request.ID

	s.store.ClearPendingClarification()
	s.store.SetThinking(true)

	if err := s.transport.Send(protocol.NewClarificationResponse(questionID, value, text)); err != nil {
		s.store.SetThinking(false)
		return fmt.Errorf("send clarification response: %w", err)
	}

	s.log.Debug("clarification answered", zap.String("question_id", questionID))
	return nil
}

// CancelQuery aborts the in-flight turn. The cancel envelope is
// best-effort; local streaming state clears regardless.
func (s *Service) CancelQuery() error {
	err := s.transport.Send(protocol.NewCancel())
	s.store.AbortStreaming()
	s.store.ClearPendingClarification()
	if err != nil {
		return fmt.Errorf("send cancel: %w", err)
	}
	return nil
}
