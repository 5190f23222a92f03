package rest

import (
	"time"

	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/store"
)

// TokenResponse is the token pair issued by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// UserResponse describes a registered account.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionCreateResponse is returned when a session is opened.
type SessionCreateResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BoundingBox is the extent of the uploaded drawing in millimetres.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// ContextMetadata summarizes the drawing context held by a session.
type ContextMetadata struct {
	UploadedAt         time.Time      `json:"uploaded_at"`
	ObjectCount        int            `json:"object_count"`
	CoordinateUnit     string         `json:"coordinate_unit"`
	ContextVersion     int            `json:"context_version"`
	LayersPresent      []string       `json:"layers_present"`
	LayerCounts        map[string]int `json:"layer_counts"`
	HasPlotBoundary    bool           `json:"has_plot_boundary"`
	PlotBoundaryClosed bool           `json:"plot_boundary_closed"`
	BoundingBox        *BoundingBox   `json:"bounding_box,omitempty"`
}

// SessionStatusResponse is the full status of one session.
type SessionStatusResponse struct {
	SessionID       string           `json:"session_id"`
	UserID          string           `json:"user_id"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
	ExpiresAt       time.Time        `json:"expires_at"`
	HasContext      bool             `json:"has_context"`
	ContextMetadata *ContextMetadata `json:"context_metadata,omitempty"`
}

// SessionListItem summarizes one session in a listing.
type SessionListItem struct {
	SessionID   string     `json:"session_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	HasContext  bool       `json:"has_context"`
	ObjectCount int        `json:"object_count"`
}

// SessionListResponse lists the account's sessions.
type SessionListResponse struct {
	Sessions []SessionListItem `json:"sessions"`
	Count    int               `json:"count"`
}

// ContextUpdateRequest uploads drawing objects for a session.
type ContextUpdateRequest struct {
	Objects []drawing.Object `json:"objects"`
}

// ContextUpdateResponse acknowledges a context upload.
type ContextUpdateResponse struct {
	ObjectCount int            `json:"object_count"`
	Layers      []string       `json:"layers"`
	LayerCounts map[string]int `json:"layer_counts"`
	Warnings    []string       `json:"warnings"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ContextGetResponse returns the stored drawing context.
type ContextGetResponse struct {
	Objects  []drawing.Object `json:"objects"`
	Metadata ContextMetadata  `json:"metadata"`
}

// MessageItem is one persisted transcript entry. Metadata fields are
// present only on finalized assistant messages.
type MessageItem struct {
	ID                 string                        `json:"id"`
	Role               string                        `json:"role"`
	Content            string                        `json:"content"`
	Timestamp          time.Time                     `json:"timestamp"`
	Confidence         string                        `json:"confidence,omitempty"`
	QueryType          string                        `json:"query_type,omitempty"`
	Sources            []protocol.SourceCitation     `json:"sources,omitempty"`
	Calculations       []protocol.CalculationPayload `json:"calculations,omitempty"`
	SuggestedFollowups []string                      `json:"suggested_followups,omitempty"`
}

// MessagesResponse is the persisted transcript of a session.
type MessagesResponse struct {
	Messages []MessageItem `json:"messages"`
	Count    int           `json:"count"`
}

func (m MessageItem) chatMessage() store.ChatMessage {
	return store.ChatMessage{
		ID:                 m.ID,
		Role:               store.Role(m.Role),
		Content:            m.Content,
		Timestamp:          m.Timestamp,
		Confidence:         protocol.Confidence(m.Confidence),
		QueryType:          m.QueryType,
		Sources:            m.Sources,
		Calculations:       m.Calculations,
		SuggestedFollowups: m.SuggestedFollowups,
	}
}
