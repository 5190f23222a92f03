package protocol

// Confidence grades an answer or assumption.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// StepStatus tracks the lifecycle of a reasoning step.
type StepStatus string

const (
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

// QueryPayload submits a user question. Content is limited to 2000
// characters server-side.
type QueryPayload struct {
	Content          string `json:"content"`
	IncludeReasoning bool   `json:"include_reasoning"`
}

// ClarificationResponsePayload answers a pending clarification.
type ClarificationResponsePayload struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
	Text       string `json:"text,omitempty"`
}

// CancelPayload aborts the in-flight query. Empty on the wire.
type CancelPayload struct{}

// PingPayload is the keep-alive probe. Empty on the wire.
type PingPayload struct{}

// ConnectedPayload acknowledges a successful session attach.
type ConnectedPayload struct {
	SessionID      string `json:"session_id"`
	HasContext     bool   `json:"has_context"`
	ContextVersion int    `json:"context_version"`
}

// ReasoningStepPayload reports progress of one agent pipeline node.
// Timestamp is the server's ISO-8601 string, kept opaque for display.
type ReasoningStepPayload struct {
	StepIndex int        `json:"step_index"`
	Node      string     `json:"node"`
	Status    StepStatus `json:"status"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
}

// TokenPayload carries one streamed answer fragment.
type TokenPayload struct {
	Chunk      string `json:"chunk"`
	Node       string `json:"node"`
	TokenIndex int    `json:"token_index"`
}

// TokensPayload carries a batch of answer fragments, ordered.
type TokensPayload struct {
	Chunks []string `json:"chunks"`
	Node   string   `json:"node"`
}

// ClarificationOption is one selectable answer to a clarification.
type ClarificationOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// ClarificationRequestPayload asks the user for missing input.
type ClarificationRequestPayload struct {
	ID           string                `json:"id"`
	Question     string                `json:"question"`
	WhyNeeded    string                `json:"why_needed"`
	FieldName    string                `json:"field_name"`
	Options      []ClarificationOption `json:"options,omitempty"`
	Priority     int                   `json:"priority"`
	AffectsRules []string              `json:"affects_rules"`
}

// VisualizationHint tells a renderer which drawing layers to flag.
type VisualizationHint struct {
	HighlightLayers []string `json:"highlight_layers"`
	HighlightColor  string   `json:"highlight_color"`
}

// CalculationPayload is an intermediate numeric result against a
// regulatory limit.
type CalculationPayload struct {
	CalculationType   string             `json:"calculation_type"`
	Result            float64            `json:"result"`
	Unit              string             `json:"unit"`
	Limit             *float64           `json:"limit,omitempty"`
	Compliant         *bool              `json:"compliant,omitempty"`
	Margin            *float64           `json:"margin,omitempty"`
	Description       string             `json:"description"`
	VisualizationHint *VisualizationHint `json:"visualization_hint,omitempty"`
}

// InferredData is what the server derived from the drawing context.
type InferredData struct {
	PrincipalElevation *string `json:"principal_elevation,omitempty"`
	RearWallIdentified bool    `json:"rear_wall_identified"`
	HouseTypeDetected  *string `json:"house_type_detected,omitempty"`
}

// ContextUpdatedPayload notifies of a drawing context version bump.
type ContextUpdatedPayload struct {
	Source       string        `json:"source"`
	Version      int           `json:"version"`
	Changes      []string      `json:"changes"`
	InferredData *InferredData `json:"inferred_data,omitempty"`
}

// SourceCitation points at the knowledge-base passage backing an
// answer.
type SourceCitation struct {
	Section   string  `json:"section"`
	Page      *int    `json:"page,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Assumption records a value the agent assumed rather than asked for.
type Assumption struct {
	Field      string     `json:"field"`
	Value      any        `json:"value"`
	Confidence Confidence `json:"confidence"`
}

// ResponseCompletePayload closes an assistant turn with the final
// answer and its supporting material.
type ResponseCompletePayload struct {
	MessageID          string               `json:"message_id"`
	FinalAnswer        string               `json:"final_answer"`
	Confidence         Confidence           `json:"confidence"`
	QueryType          string               `json:"query_type"`
	Sources            []SourceCitation     `json:"sources"`
	Calculations       []CalculationPayload `json:"calculations"`
	Assumptions        []Assumption         `json:"assumptions"`
	SuggestedFollowups []string             `json:"suggested_followups"`
}

// ErrorPayload reports an application-level failure. Recoverable
// errors leave the connection usable.
type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// PongPayload is the keep-alive reply. Empty on the wire.
type PongPayload struct{}

func (*QueryPayload) kind() Type                 { return TypeQuery }
func (*ClarificationResponsePayload) kind() Type { return TypeClarificationResponse }
func (*CancelPayload) kind() Type                { return TypeCancel }
func (*PingPayload) kind() Type                  { return TypePing }
func (*ConnectedPayload) kind() Type             { return TypeConnected }
func (*ReasoningStepPayload) kind() Type         { return TypeReasoningStep }
func (*TokenPayload) kind() Type                 { return TypeToken }
func (*TokensPayload) kind() Type                { return TypeTokens }
func (*ClarificationRequestPayload) kind() Type  { return TypeClarificationRequest }
func (*CalculationPayload) kind() Type           { return TypeCalculation }
func (*ContextUpdatedPayload) kind() Type        { return TypeContextUpdated }
func (*ResponseCompletePayload) kind() Type      { return TypeResponseComplete }
func (*ErrorPayload) kind() Type                 { return TypeError }
func (*PongPayload) kind() Type                  { return TypePong }
