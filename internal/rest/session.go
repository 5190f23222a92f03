package rest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/store"
)

const sessionPrefix = "/api/v1/session"

// SessionAPI wraps the session and context endpoints. All calls
// require a signed-in credential store.
type SessionAPI struct {
	client *Client
}

// NewSessionAPI binds the session endpoints to a transport.
func NewSessionAPI(client *Client) *SessionAPI {
	return &SessionAPI{client: client}
}

// Create opens a fresh advisory session.
func (s *SessionAPI) Create(ctx context.Context) (SessionCreateResponse, error) {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return SessionCreateResponse{}, err
	}

	resp, err := s.client.Do("session.create", func() (*resty.Response, error) {
		return req.Post(sessionPrefix)
	})
	if err != nil {
		return SessionCreateResponse{}, err
	}
	return Parse[SessionCreateResponse](resp)
}

// List returns all sessions owned by the signed-in account.
func (s *SessionAPI) List(ctx context.Context) (SessionListResponse, error) {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return SessionListResponse{}, err
	}

	resp, err := s.client.Do("session.list", func() (*resty.Response, error) {
		return req.Get(sessionPrefix)
	})
	if err != nil {
		return SessionListResponse{}, err
	}
	return Parse[SessionListResponse](resp)
}

// Get returns the status and context metadata of one session.
func (s *SessionAPI) Get(ctx context.Context, sessionID string) (SessionStatusResponse, error) {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return SessionStatusResponse{}, err
	}

	resp, err := s.client.Do("session.get", func() (*resty.Response, error) {
		return req.Get(sessionPath(sessionID))
	})
	if err != nil {
		return SessionStatusResponse{}, err
	}
	return Parse[SessionStatusResponse](resp)
}

// Delete removes a session and everything stored under it.
func (s *SessionAPI) Delete(ctx context.Context, sessionID string) error {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.Do("session.delete", func() (*resty.Response, error) {
		return req.Delete(sessionPath(sessionID))
	})
	return err
}

// UpdateContext uploads drawing objects as the session's context.
// Objects are validated locally before anything goes on the wire.
func (s *SessionAPI) UpdateContext(ctx context.Context, sessionID string, objects []drawing.Object) (ContextUpdateResponse, error) {
	for i, obj := range objects {
		if err := obj.Validate(); err != nil {
			return ContextUpdateResponse{}, fmt.Errorf("object[%d]: %w", i, err)
		}
	}

	req, err := s.client.Authorized(ctx)
	if err != nil {
		return ContextUpdateResponse{}, err
	}

	resp, err := s.client.Do("session.update_context", func() (*resty.Response, error) {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(ContextUpdateRequest{Objects: objects}).
			Put(sessionPath(sessionID) + "/context")
	})
	if err != nil {
		return ContextUpdateResponse{}, err
	}
	return Parse[ContextUpdateResponse](resp)
}

// Context returns the drawing context stored for a session.
func (s *SessionAPI) Context(ctx context.Context, sessionID string) (ContextGetResponse, error) {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return ContextGetResponse{}, err
	}

	resp, err := s.client.Do("session.get_context", func() (*resty.Response, error) {
		return req.Get(sessionPath(sessionID) + "/context")
	})
	if err != nil {
		return ContextGetResponse{}, err
	}
	return Parse[ContextGetResponse](resp)
}

// History returns the persisted transcript as the service shaped it.
func (s *SessionAPI) History(ctx context.Context, sessionID string) (MessagesResponse, error) {
	req, err := s.client.Authorized(ctx)
	if err != nil {
		return MessagesResponse{}, err
	}

	resp, err := s.client.Do("session.messages", func() (*resty.Response, error) {
		return req.Get(sessionPath(sessionID) + "/messages")
	})
	if err != nil {
		return MessagesResponse{}, err
	}
	return Parse[MessagesResponse](resp)
}

// Messages returns the persisted transcript mapped into store
// messages, ready to seed an empty conversation view.
func (s *SessionAPI) Messages(ctx context.Context, sessionID string) ([]store.ChatMessage, error) {
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]store.ChatMessage, 0, len(history.Messages))
	for _, item := range history.Messages {
		messages = append(messages, item.chatMessage())
	}
	return messages, nil
}

func sessionPath(sessionID string) string {
	return sessionPrefix + "/" + url.PathEscape(sessionID)
}
