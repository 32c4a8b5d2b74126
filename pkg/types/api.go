package types

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Message text to send to the assistant backend.
	// example: what is the weather like
	Message string `json:"message" example:"what is the weather like"`
	// Optional conversational context carried verbatim to the backend.
	Context string `json:"context,omitempty"`
}

// ChatReply is returned by POST /chat once the backend answers.
type ChatReply struct {
	// Assistant response text.
	// example: It is sunny today.
	Response string `json:"response" example:"It is sunny today."`
	// Name of the action the backend executed, if any.
	// example: open_browser
	ActionExecuted string `json:"action_executed,omitempty" example:"open_browser"`
	// Raw result of the executed action, if any.
	ActionResult any `json:"action_result,omitempty"`
	// Backend timestamp for the reply.
	Timestamp string `json:"timestamp,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Whether a live session to the backend is open.
	// example: true
	Connected bool `json:"connected" example:"true"`
	// Whether the supervised backend process is running.
	// example: true
	BackendRunning bool `json:"backend_running" example:"true"`
	// Backend listening port, 0 while undiscovered.
	// example: 8000
	Port int `json:"port" example:"8000"`
	// Whether the port has been confirmed by a successful connection.
	// example: true
	PortConfirmed bool `json:"port_confirmed" example:"true"`
}

// RelayRequest is the body of POST /relay: a generic backend HTTP call.
type RelayRequest struct {
	// HTTP method, GET or POST.
	// example: POST
	Method string `json:"method" example:"POST"`
	// Backend path, must start with a slash.
	// example: /model/check
	Path string `json:"path" example:"/model/check"`
	// Optional JSON payload forwarded as the request body.
	Payload map[string]any `json:"payload,omitempty"`
}

// SwitchRequest is the body of POST /model/switch.
type SwitchRequest struct {
	// Target model identifier.
	// example: mistral-7b-instruct-v0.1.Q4_0.gguf
	Model string `json:"model" example:"mistral-7b-instruct-v0.1.Q4_0.gguf"`
}

// SwitchStatus is a snapshot of the current (or last) model switch job.
type SwitchStatus struct {
	// Whether a job is currently running.
	// example: true
	Active bool `json:"active" example:"true"`
	// Target model of the job.
	Model string `json:"model,omitempty"`
	// Current phase: checking, downloading, switching, done, failed, abandoned.
	// example: downloading
	Phase string `json:"phase,omitempty" example:"downloading"`
	// Download progress percentage, 0-100.
	// example: 42
	Progress int `json:"progress" example:"42"`
	// Human-readable outcome or progress message.
	Message string `json:"message,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// Notification is one entry of the GET /events NDJSON stream.
type Notification struct {
	// Event name, e.g. backend_status, backend_message, switch_done.
	// example: backend_status
	Name string `json:"name" example:"backend_status"`
	// Event payload fields.
	Fields map[string]any `json:"fields,omitempty"`
	// Unix seconds at which the event was observed.
	Time int64 `json:"time"`
}
