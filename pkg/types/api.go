package types

// GenerateRequest is the payload for POST /api/generate and
// POST /api/sessions/{id}/messages.
type GenerateRequest struct {
	// User instruction. Empty strings are forwarded to the model unchanged.
	// example: What is 2+2?
	Instruction string `json:"instruction" example:"What is 2+2?"`
}

// GenerateResponse is returned by POST /api/generate.
type GenerateResponse struct {
	// Assistant reply with surrounding whitespace removed.
	// example: 2+2 equals 4.
	Response string `json:"response" example:"2+2 equals 4."`
}

// Message is one chat message in a session history.
type Message struct {
	// Author of the message: human or ai.
	// example: ai
	Origin string `json:"origin" example:"ai"`
	// Message text.
	// example: Hello there
	Text string `json:"text" example:"Hello there"`
	// Creation time (unix seconds).
	// example: 1700000000
	CreatedAt int64 `json:"created_unix" example:"1700000000"`
}

// SessionResponse describes a chat session and its full history.
type SessionResponse struct {
	// Session identifier.
	// example: 5f0c2f7e-3c1a-4a8e-9d8b-0a6f2d1e4b3c
	ID string `json:"id" example:"5f0c2f7e-3c1a-4a8e-9d8b-0a6f2d1e4b3c"`
	// Creation time (unix seconds).
	// example: 1700000000
	CreatedAt int64 `json:"created_unix" example:"1700000000"`
	// Messages in chronological order.
	History []Message `json:"history"`
}

// MessageResponse is returned by POST /api/sessions/{id}/messages.
type MessageResponse struct {
	// The ai message appended by this exchange.
	Reply Message `json:"reply"`
	// Full history after the exchange.
	History []Message `json:"history"`
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

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Adapter state: ready or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Backend and model in use.
	// example: llama:/models/phogpt-4b-chat.Q4_K_M.gguf
	Runtime string `json:"runtime" example:"llama:/models/phogpt-4b-chat.Q4_K_M.gguf"`
	// Model context window in tokens (0 = unknown).
	// example: 8192
	ContextSize int `json:"context_size" example:"8192"`
	// Requests waiting for the generation slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Generations currently running (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Active chat sessions.
	// example: 3
	Sessions int `json:"sessions" example:"3"`
	// Last generation error observed (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
