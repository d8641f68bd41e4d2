package types

// Model represents a loadable LLM model file on disk.
type Model struct {
	// Stable identifier for the model (filename).
	// example: phogpt-4b-chat.Q4_K_M.gguf
	ID string `json:"id" example:"phogpt-4b-chat.Q4_K_M.gguf"`
	// Human-friendly name.
	// example: phogpt-4b-chat.Q4_K_M
	Name string `json:"name" example:"phogpt-4b-chat.Q4_K_M"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/phogpt-4b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/phogpt-4b-chat.Q4_K_M.gguf"`
}
