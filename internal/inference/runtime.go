package inference

import "context"

// Runtime is an initialized model and tokenizer pair.
// Implementations are not required to be safe for concurrent Generate calls;
// callers serialize generations (see chatbot admission).
type Runtime interface {
	// Tokenize converts text to token ids the same way Generate would see it.
	Tokenize(ctx context.Context, text string) ([]int, error)
	// Generate continues prompt with sampling configured by params. Decoded
	// fragments are passed to onToken as they are produced; returning an error
	// from onToken stops generation. Implementations must return when ctx is canceled.
	Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (Result, error)
	// ContextSize is the model's maximum context length in tokens (0 = unknown).
	ContextSize() int
	// Name identifies the backend and model for status reporting.
	Name() string
	// Close releases the model.
	Close() error
}

// Result summarizes one generation. Text holds only the continuation, with
// special tokens removed; the prompt is not echoed.
type Result struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

const (
	FinishStop   = "stop"
	FinishLength = "length"
)
