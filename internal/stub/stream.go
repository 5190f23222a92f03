package stub

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/rest"
)

const (
	streamWriteTimeout = 5 * time.Second
	tokenDelay         = 5 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	// Development stub, any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamConn is one live stream peer. writes are serialized; at most
// one scripted turn runs at a time and cancel aborts it.
type streamConn struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	turnMu   sync.Mutex
	turnStop chan struct{}
}

// handleStream upgrades the socket, greets with a connected envelope,
// and serves the client's envelopes until the peer goes away.
func (s *Server) handleStream(c *gin.Context) {
	sessionID := c.Param("id")
	token := c.Query("token")

	if _, ok := s.state.authenticate(token); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
		return
	}
	objects, version, ok := s.state.snapshotContext(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer := &streamConn{conn: conn, sessionID: sessionID}
	s.log.Info("stream attached", zap.String("session_id", sessionID))

	peer.send(s.log, protocol.Envelope{
		Type: protocol.TypeConnected,
		Payload: &protocol.ConnectedPayload{
			SessionID:      sessionID,
			HasContext:     len(objects) > 0,
			ContextVersion: version,
		},
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			peer.stopTurn()
			s.log.Info("stream detached", zap.String("session_id", sessionID), zap.Error(err))
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			peer.send(s.log, protocol.Envelope{
				Type:    protocol.TypeError,
				Payload: &protocol.ErrorPayload{Code: "BAD_ENVELOPE", Message: err.Error(), Recoverable: true},
			})
			continue
		}

		switch p := env.Payload.(type) {
		case *protocol.PingPayload:
			peer.send(s.log, protocol.Envelope{Type: protocol.TypePong, Payload: &protocol.PongPayload{}})

		case *protocol.QueryPayload:
			s.startTurn(peer, p.Content, p.IncludeReasoning)

		case *protocol.ClarificationResponsePayload:
			s.startTurn(peer, "clarified: "+p.Value, true)

		case *protocol.CancelPayload:
			peer.stopTurn()

		default:
			peer.send(s.log, protocol.Envelope{
				Type:    protocol.TypeError,
				Payload: &protocol.ErrorPayload{Code: "UNSUPPORTED", Message: "unsupported message type", Recoverable: true},
			})
		}
	}
}

// startTurn records the user message and runs the scripted response
// in its own goroutine, superseding any turn still running.
func (s *Server) startTurn(peer *streamConn, content string, includeReasoning bool) {
	s.state.appendMessage(peer.sessionID, rest.MessageItem{
		ID:        uuid.New().String(),
		Role:      "user",
		Content:   content,
		Timestamp: time.Now().UTC(),
	})

	peer.turnMu.Lock()
	if peer.turnStop != nil {
		close(peer.turnStop)
	}
	stop := make(chan struct{})
	peer.turnStop = stop
	peer.turnMu.Unlock()

	go s.runTurn(peer, stop, content, includeReasoning)
}

func (peer *streamConn) stopTurn() {
	peer.turnMu.Lock()
	defer peer.turnMu.Unlock()
	if peer.turnStop != nil {
		close(peer.turnStop)
		peer.turnStop = nil
	}
}

// runTurn streams the scripted response: a reasoning trace, the
// answer token by token, then the completion envelope. A query
// containing "clarify" parks the turn on a clarification request
// instead, exercising that leg of the protocol.
func (s *Server) runTurn(peer *streamConn, stop <-chan struct{}, content string, includeReasoning bool) {
	steps := []protocol.ReasoningStepPayload{
		{StepIndex: 0, Node: "parse_query", Status: protocol.StepProcessing, Message: "Reading your question"},
		{StepIndex: 0, Node: "parse_query", Status: protocol.StepCompleted, Message: "Question understood"},
		{StepIndex: 1, Node: "retrieve_guidance", Status: protocol.StepCompleted, Message: "Relevant guidance located"},
		{StepIndex: 2, Node: "compose_answer", Status: protocol.StepCompleted, Message: "Drafting the answer"},
	}
	if includeReasoning {
		for i := range steps {
			steps[i].Timestamp = time.Now().UTC().Format(time.RFC3339)
			if !peer.sendOrStop(s.log, stop, protocol.Envelope{Type: protocol.TypeReasoningStep, Payload: &steps[i]}) {
				return
			}
		}
	}

	if strings.Contains(strings.ToLower(content), "clarify") {
		peer.sendOrStop(s.log, stop, protocol.Envelope{
			Type: protocol.TypeClarificationRequest,
			Payload: &protocol.ClarificationRequestPayload{
				ID:        uuid.New().String(),
				Question:  "Is the property a house or a flat?",
				WhyNeeded: "Permitted development rights differ by property type",
				FieldName: "property_type",
				Options: []protocol.ClarificationOption{
					{Label: "House", Value: "house"},
					{Label: "Flat", Value: "flat"},
				},
				Priority:     1,
				AffectsRules: []string{"pd_class_a"},
			},
		})
		return
	}

	answer := "Under permitted development, a single-storey rear extension on a detached house may extend up to 4 metres beyond the original rear wall."
	for i, word := range strings.SplitAfter(answer, " ") {
		if !peer.sendOrStop(s.log, stop, protocol.Envelope{
			Type:    protocol.TypeToken,
			Payload: &protocol.TokenPayload{Chunk: word, Node: "compose_answer", TokenIndex: i},
		}) {
			return
		}
		time.Sleep(tokenDelay)
	}

	page := 14
	complete := &protocol.ResponseCompletePayload{
		MessageID:   uuid.New().String(),
		FinalAnswer: answer,
		Confidence:  protocol.ConfidenceHigh,
		QueryType:   "extension_advice",
		Sources: []protocol.SourceCitation{
			{Section: "Class A, Part 1, Schedule 2", Page: &page, Relevance: 0.93},
		},
		Assumptions: []protocol.Assumption{
			{Field: "house_type", Value: "detached", Confidence: protocol.ConfidenceMedium},
		},
		SuggestedFollowups: []string{"How high can the extension be?"},
	}
	if !peer.sendOrStop(s.log, stop, protocol.Envelope{Type: protocol.TypeResponseComplete, Payload: complete}) {
		return
	}

	s.state.appendMessage(peer.sessionID, rest.MessageItem{
		ID:                 complete.MessageID,
		Role:               "assistant",
		Content:            complete.FinalAnswer,
		Timestamp:          time.Now().UTC(),
		Confidence:         string(complete.Confidence),
		QueryType:          complete.QueryType,
		Sources:            complete.Sources,
		SuggestedFollowups: complete.SuggestedFollowups,
	})
}

// sendOrStop writes unless the turn was cancelled. Returns false once
// the turn must end.
func (peer *streamConn) sendOrStop(log *logging.Logger, stop <-chan struct{}, env protocol.Envelope) bool {
	select {
	case <-stop:
		return false
	default:
	}
	return peer.send(log, env)
}

func (peer *streamConn) send(log *logging.Logger, env protocol.Envelope) bool {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Warn("encode failed", zap.Error(err))
		return false
	}

	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	peer.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := peer.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
