package chatbot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chatd/internal/inference"
)

// fakeRuntime is a lightweight in-memory runtime used for tests. Tokens are
// whitespace-separated words.
type fakeRuntime struct {
	mu          sync.Mutex
	ctxSize     int
	reply       string
	genErr      error
	tokErr      error
	block       chan struct{} // if set, Generate waits for it (or ctx)
	prompts     []string
	params      []inference.Params
	closed      bool
	running     int
	maxRunning  int
	tokenizeCnt int
}

func (f *fakeRuntime) Name() string     { return "fake" }
func (f *fakeRuntime) ContextSize() int { return f.ctxSize }

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Tokenize(ctx context.Context, text string) ([]int, error) {
	f.mu.Lock()
	f.tokenizeCnt++
	f.mu.Unlock()
	if f.tokErr != nil {
		return nil, f.tokErr
	}
	words := strings.Fields(text)
	out := make([]int, len(words))
	for i := range words {
		out[i] = i + 1
	}
	return out, nil
}

func (f *fakeRuntime) Generate(ctx context.Context, prompt string, params inference.Params, onToken func(string) error) (inference.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return inference.Result{}, ctx.Err()
		}
	}
	if f.genErr != nil {
		return inference.Result{}, f.genErr
	}
	if err := onToken(f.reply); err != nil {
		return inference.Result{}, err
	}
	return inference.Result{Text: f.reply, FinishReason: inference.FinishStop}, nil
}

// detokRuntime decodes the prompt to a fixed string, simulating a tokenizer
// that does not round-trip the answer marker.
type detokRuntime struct {
	*fakeRuntime
	decoded string
}

func (d detokRuntime) Detokenize(ctx context.Context, tokens []int) (string, error) {
	return d.decoded, nil
}

func newTestBot(t *testing.T, rt inference.Runtime, opts ...Option) *Bot {
	t.Helper()
	b, err := New(testCtx(t), rt, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
