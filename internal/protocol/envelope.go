package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Type identifies the kind of message carried by an envelope.
type Type string

// Client → server message types.
const (
	TypeQuery                 Type = "query"
	TypeClarificationResponse Type = "clarification_response"
	TypeCancel                Type = "cancel"
	TypePing                  Type = "ping"
)

// Server → client message types.
const (
	TypeConnected            Type = "connected"
	TypeReasoningStep        Type = "reasoning_step"
	TypeToken                Type = "token"
	TypeTokens               Type = "tokens"
	TypeClarificationRequest Type = "clarification_request"
	TypeCalculation          Type = "calculation"
	TypeContextUpdated       Type = "context_updated"
	TypeResponseComplete     Type = "response_complete"
	TypeError                Type = "error"
	TypePong                 Type = "pong"
)

// ErrUnknownType indicates an envelope with a type tag this client
// does not understand.
var ErrUnknownType = errors.New("unknown message type")

// DecodeError describes a frame that could not be decoded.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode envelope: %v", e.Err)
	}
	return fmt.Sprintf("decode %s payload: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Payload is implemented by every typed message payload. The set of
// implementations is closed; decoding resolves exactly one per type.
type Payload interface {
	kind() Type
}

// Envelope is a decoded wire message.
type Envelope struct {
	Type    Type
	Payload Payload
}

type wireEnvelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outEnvelope struct {
	Type    Type    `json:"type"`
	Payload Payload `json:"payload,omitempty"`
}

// Decode parses a raw frame into a typed envelope. Unknown types
// return an error wrapping ErrUnknownType; malformed payloads return
// a DecodeError with the offending type set.
func Decode(data []byte) (Envelope, error) {
	var raw wireEnvelope
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return Envelope{}, &DecodeError{Err: err}
	}

	payload, err := newPayload(raw.Type)
	if err != nil {
		return Envelope{}, err
	}

	// Servers may omit the payload entirely for bodyless types.
	if len(raw.Payload) > 0 {
		if err := sonic.Unmarshal(raw.Payload, payload); err != nil {
			return Envelope{}, &DecodeError{Type: raw.Type, Err: err}
		}
	}

	return Envelope{Type: raw.Type, Payload: payload}, nil
}

// Encode serializes an envelope for the wire. Bodyless envelopes
// (cancel, ping) omit the payload field.
func Encode(env Envelope) ([]byte, error) {
	out := outEnvelope{Type: env.Type}
	switch env.Type {
	case TypeCancel, TypePing:
		// no payload on the wire
	default:
		out.Payload = env.Payload
	}

	data, err := sonic.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	return data, nil
}

func newPayload(t Type) (Payload, error) {
	switch t {
	case TypeQuery:
		return &QueryPayload{}, nil
	case TypeClarificationResponse:
		return &ClarificationResponsePayload{}, nil
	case TypeCancel:
		return &CancelPayload{}, nil
	case TypePing:
		return &PingPayload{}, nil
	case TypeConnected:
		return &ConnectedPayload{}, nil
	case TypeReasoningStep:
		return &ReasoningStepPayload{}, nil
	case TypeToken:
		return &TokenPayload{}, nil
	case TypeTokens:
		return &TokensPayload{}, nil
	case TypeClarificationRequest:
		return &ClarificationRequestPayload{}, nil
	case TypeCalculation:
		return &CalculationPayload{}, nil
	case TypeContextUpdated:
		return &ContextUpdatedPayload{}, nil
	case TypeResponseComplete:
		return &ResponseCompletePayload{}, nil
	case TypeError:
		return &ErrorPayload{}, nil
	case TypePong:
		return &PongPayload{}, nil
	default:
		return nil, &DecodeError{Type: t, Err: ErrUnknownType}
	}
}

// NewQuery builds a query envelope.
func NewQuery(content string, includeReasoning bool) Envelope {
	return Envelope{
		Type:    TypeQuery,
		Payload: &QueryPayload{Content: content, IncludeReasoning: includeReasoning},
	}
}

// NewClarificationResponse builds an answer to a clarification
// request. text carries free-form input and may be empty.
func NewClarificationResponse(questionID, value, text string) Envelope {
	return Envelope{
		Type:    TypeClarificationResponse,
		Payload: &ClarificationResponsePayload{QuestionID: questionID, Value: value, Text: text},
	}
}

// NewCancel builds a cancel envelope.
func NewCancel() Envelope {
	return Envelope{Type: TypeCancel, Payload: &CancelPayload{}}
}

// NewPing builds a keep-alive envelope.
func NewPing() Envelope {
	return Envelope{Type: TypePing, Payload: &PingPayload{}}
}
