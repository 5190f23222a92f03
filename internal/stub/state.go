package stub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/rest"
	"github.com/groundplan/client/internal/shared/id"
)

const sessionTTL = 24 * time.Hour

type account struct {
	id       string
	email    string
	password string
}

type session struct {
	id             string
	userID         string
	createdAt      time.Time
	updatedAt      *time.Time
	contextVersion int
	objects        []drawing.Object
	messages       []rest.MessageItem
}

// state is the stub's in-memory persistence: accounts, token maps,
// and sessions with their transcripts and drawing contexts.
type state struct {
	mu       sync.Mutex
	ids      *id.Generator
	accounts map[string]*account // by email
	access   map[string]string   // access token -> account id
	refresh  map[string]string   // refresh token -> account id
	sessions map[string]*session // by session id
}

func newState() *state {
	return &state{
		ids:      id.NewGenerator(),
		accounts: make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		sessions: make(map[string]*session),
	}
}

func (s *state) register(email, password string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[email]; exists {
		return nil, false
	}
	acct := &account{id: uuid.New().String(), email: email, password: password}
	s.accounts[email] = acct
	return acct, true
}

// login verifies credentials and issues a fresh token pair.
func (s *state) login(email, password string) (rest.TokenResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[email]
	if !ok || acct.password != password {
		return rest.TokenResponse{}, false
	}
	return s.issueLocked(acct.id), true
}

// rotate exchanges a refresh token for a new pair, invalidating the
// old one.
func (s *state) rotate(refreshToken string) (rest.TokenResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountID, ok := s.refresh[refreshToken]
	if !ok {
		return rest.TokenResponse{}, false
	}
	delete(s.refresh, refreshToken)
	return s.issueLocked(accountID), true
}

func (s *state) issueLocked(accountID string) rest.TokenResponse {
	tokens := rest.TokenResponse{
		AccessToken:  "access_" + uuid.New().String(),
		RefreshToken: "refresh_" + uuid.New().String(),
		TokenType:    "bearer",
	}
	s.access[tokens.AccessToken] = accountID
	s.refresh[tokens.RefreshToken] = accountID
	return tokens
}

// authenticate resolves an access token to an account id.
func (s *state) authenticate(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accountID, ok := s.access[token]
	return accountID, ok
}

func (s *state) createSession(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		id:        s.ids.Session().String(),
		userID:    userID,
		createdAt: time.Now().UTC(),
	}
	s.sessions[sess.id] = sess
	return sess
}

// sessionStatus builds the status response for one session owned by
// userID.
func (s *state) sessionStatus(userID, sessionID string) (rest.SessionStatusResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return rest.SessionStatusResponse{}, false
	}

	status := rest.SessionStatusResponse{
		SessionID:  sess.id,
		UserID:     sess.userID,
		CreatedAt:  sess.createdAt,
		UpdatedAt:  sess.updatedAt,
		ExpiresAt:  sess.createdAt.Add(sessionTTL),
		HasContext: len(sess.objects) > 0,
	}
	if len(sess.objects) > 0 {
		meta := s.metadataLocked(sess)
		status.ContextMetadata = &meta
	}
	return status, true
}

func (s *state) listSessions(userID string) []rest.SessionListItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []rest.SessionListItem
	for _, sess := range s.sessions {
		if sess.userID != userID {
			continue
		}
		items = append(items, rest.SessionListItem{
			SessionID:   sess.id,
			CreatedAt:   sess.createdAt,
			UpdatedAt:   sess.updatedAt,
			HasContext:  len(sess.objects) > 0,
			ObjectCount: len(sess.objects),
		})
	}
	return items
}

func (s *state) deleteSession(userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// updateContext replaces a session's drawing objects and bumps the
// context version.
func (s *state) updateContext(userID, sessionID string, objects []drawing.Object) (rest.ContextUpdateResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return rest.ContextUpdateResponse{}, false
	}

	now := time.Now().UTC()
	sess.objects = append([]drawing.Object(nil), objects...)
	sess.contextVersion++
	sess.updatedAt = &now

	layers := drawing.Layers(objects)
	counts := make(map[string]int, len(layers))
	for _, obj := range objects {
		counts[obj.Layer]++
	}

	return rest.ContextUpdateResponse{
		ObjectCount: len(objects),
		Layers:      layers,
		LayerCounts: counts,
		UpdatedAt:   now,
	}, true
}

// appendMessage persists one transcript entry for the history
// endpoint.
func (s *state) appendMessage(sessionID string, msg rest.MessageItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.messages = append(sess.messages, msg)
	}
}

func (s *state) messages(userID, sessionID string) ([]rest.MessageItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return nil, false
	}
	return append([]rest.MessageItem(nil), sess.messages...), true
}

// snapshotContext returns the session's drawing state for the stream
// handshake and the context GET endpoint.
func (s *state) snapshotContext(sessionID string) (objects []drawing.Object, version int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return nil, 0, false
	}
	return append([]drawing.Object(nil), sess.objects...), sess.contextVersion, true
}

// contextResponse returns the stored drawing context for one session.
func (s *state) contextResponse(userID, sessionID string) (rest.ContextGetResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return rest.ContextGetResponse{}, false
	}
	return rest.ContextGetResponse{
		Objects:  append([]drawing.Object(nil), sess.objects...),
		Metadata: s.metadataLocked(sess),
	}, true
}

// metadataLocked summarizes a session's drawing context. Callers must
// hold s.mu.
func (s *state) metadataLocked(sess *session) rest.ContextMetadata {
	counts := make(map[string]int)
	for _, obj := range sess.objects {
		counts[obj.Layer]++
	}
	meta := rest.ContextMetadata{
		ObjectCount:    len(sess.objects),
		CoordinateUnit: "mm",
		ContextVersion: sess.contextVersion,
		LayersPresent:  drawing.Layers(sess.objects),
		LayerCounts:    counts,
	}
	if sess.updatedAt != nil {
		meta.UploadedAt = *sess.updatedAt
	}
	return meta
}
