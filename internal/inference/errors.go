package inference

import (
	"errors"
	"fmt"
)

// ModelLoadError reports that the model or tokenizer could not be initialized.
// It is fatal at startup.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	if e.Err == nil {
		return "model load failed: " + e.Model
	}
	return fmt.Sprintf("model load failed: %s: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ErrModelLoad constructs a ModelLoadError.
func ErrModelLoad(model string, err error) error { return &ModelLoadError{Model: model, Err: err} }

// IsModelLoad reports whether err indicates a failed model initialization.
func IsModelLoad(err error) bool {
	var e *ModelLoadError
	return errors.As(err, &e)
}

// ContextOverflowError signals a prompt longer than the model context window.
// The prompt is rejected, never truncated.
type ContextOverflowError struct {
	Tokens  int
	Context int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("context overflow: prompt has %d tokens, model context is %d", e.Tokens, e.Context)
}

// IsContextOverflow reports whether err indicates an oversized prompt.
func IsContextOverflow(err error) bool {
	var e *ContextOverflowError
	return errors.As(err, &e)
}

// MalformedOutputError signals decoded output without the answer marker.
type MalformedOutputError struct {
	Marker string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed output: answer marker %q not found", e.Marker)
}

// IsMalformedOutput reports whether err indicates an unparseable model output.
func IsMalformedOutput(err error) bool {
	var e *MalformedOutputError
	return errors.As(err, &e)
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// ErrTooBusy constructs a backpressure error; reason is "queue_full" or "wait_timeout".
func ErrTooBusy(reason string) error { return tooBusyError{reason: reason} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// TooBusyReason returns the backpressure reason, or "" if err is not a too-busy error.
func TooBusyReason(err error) string {
	var e tooBusyError
	if errors.As(err, &e) {
		return e.reason
	}
	return ""
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp)
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
