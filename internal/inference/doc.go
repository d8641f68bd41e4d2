// Package inference loads a pretrained causal language model and exposes it
// as a Runtime: a tokenizer plus a sampling generate call. It is structured
// into small files by concern:
//
//   - runtime.go: Runtime interface, Result and Usage.
//   - params.go: Params (sampling configuration) and package defaults.
//   - errors.go: error types and helpers (IsModelLoad, IsContextOverflow, ...).
//   - loader.go: Load resolves a LoaderConfig into a ready Runtime.
//   - adapter_llama_server.go: llama.cpp server over HTTP (OpenAI-compatible SSE).
//   - adapter_llama.go: in-process llama.cpp via go-llama.cpp. Enabled with `-tags=llama`.
//     A no-CGO stub (adapter_llama_stub.go) is compiled when the tag is not set.
//
// Sampling (top-k, then top-p, then temperature) is performed by llama.cpp.
// This package only maps Params onto the backend's options.
package inference
