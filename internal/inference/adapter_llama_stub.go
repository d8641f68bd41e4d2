//go:build !llama

package inference

// This file provides a no-CGO stub for the in-process llama runtime. It is
// compiled when the 'llama' build tag is NOT set, keeping default builds
// CGO-free. The real runtime lives in adapter_llama.go.

const llamaBuilt = false

func loadLlamaLocal(o LocalOptions) (Runtime, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
