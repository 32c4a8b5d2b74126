package types

import "encoding/json"

// Wire shapes for the backend WebSocket and HTTP surfaces.

// ChatFrame is the outbound WebSocket frame carrying a chat message.
type ChatFrame struct {
	// Correlation identifier echoed by the backend on the reply.
	ID string `json:"id"`
	// Frame type, always "chat" for outbound chat messages.
	Type string `json:"type"`
	// User message text.
	Message string `json:"message"`
	// Optional conversational context.
	Context string `json:"context,omitempty"`
	// Client timestamp, RFC 3339.
	Timestamp string `json:"timestamp"`
}

// InboundFrame is the envelope of every frame received on the session.
// Data is left raw; chat responses decode it into ChatReply.
type InboundFrame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// FrameTypeChat marks outbound chat frames; FrameTypeChatResponse marks the
// correlated reply of interest.
const (
	FrameTypeChat         = "chat"
	FrameTypeChatResponse = "chat_response"
)

// BackendEnvelope is the common body shape of backend HTTP responses.
// Success is authoritative: a 200 with success=false is still a failure.
type BackendEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ModelCheckResponse is returned by POST /model/check.
type ModelCheckResponse struct {
	BackendEnvelope
	Available      bool   `json:"available"`
	CurrentModel   string `json:"current_model,omitempty"`
	RequestedModel string `json:"requested_model,omitempty"`
}

// ModelDownloadResponse is returned by POST /model/download.
type ModelDownloadResponse struct {
	BackendEnvelope
	// Download status: completed, downloading, failed.
	Status string `json:"status,omitempty"`
}

// ModelProgressResponse is returned by GET /model/progress.
type ModelProgressResponse struct {
	BackendEnvelope
	Progress int    `json:"progress"`
	Status   string `json:"status,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ModelSwitchResponse is returned by POST /model/switch.
type ModelSwitchResponse struct {
	BackendEnvelope
	CurrentModel string `json:"current_model,omitempty"`
}

// ModelCurrentResponse is returned by GET /model/current.
type ModelCurrentResponse struct {
	BackendEnvelope
	CurrentModel    string   `json:"current_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty"`
}
