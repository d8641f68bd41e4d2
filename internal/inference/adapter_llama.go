//go:build llama

package inference

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// llamaLocal owns a model loaded in-process.
type llamaLocal struct {
	mu      sync.Mutex
	model   *llama.LLama
	path    string
	ctxSize int
	threads int
}

func loadLlamaLocal(o LocalOptions) (Runtime, error) {
	if strings.TrimSpace(o.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	ctxSize := o.ContextSize
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	mo := []llama.ModelOption{
		llama.SetContext(ctxSize),
	}
	if o.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(o.GPULayers))
	}
	if o.MainGPU != "" {
		mo = append(mo, llama.SetMainGPU(o.MainGPU))
	}
	if o.Precision == PrecisionF16 {
		mo = append(mo, llama.EnableF16Memory)
	}
	m, err := llama.New(o.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaLocal{model: m, path: o.ModelPath, ctxSize: ctxSize, threads: o.Threads}, nil
}

func (l *llamaLocal) Name() string { return "llama:" + l.path }

func (l *llamaLocal) ContextSize() int { return l.ctxSize }

func (l *llamaLocal) Tokenize(ctx context.Context, text string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	_, toks, err := l.model.TokenizeString(text, llama.SetThreads(max(1, l.threads)))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(toks))
	for i, t := range toks {
		out[i] = int(t)
	}
	return out, nil
}

func (l *llamaLocal) Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	var (
		cbErr error
		n     int
	)
	// Bridge token streaming to onToken and respect cancellation
	l.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		n++
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	defer l.model.SetTokenCallback(nil)

	text, err := l.model.Predict(prompt, predictOptions(params, l.threads)...)
	if ctx.Err() != nil {
		return Result{Text: text}, ctx.Err()
	}
	if cbErr != nil {
		return Result{Text: text}, cbErr
	}
	if err != nil {
		return Result{}, err
	}
	finish := FinishStop
	if n >= params.MaxNewTokens {
		finish = FinishLength
	}
	return Result{
		Text:         text,
		FinishReason: finish,
		Usage:        Usage{CompletionTokens: n, TotalTokens: n},
	}, nil
}

func (l *llamaLocal) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

// predictOptions converts Params into go-llama.cpp options.
func predictOptions(p Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopK(p.TopK),
		llama.SetTopP(p.TopP),
		llama.SetTemperature(p.effectiveTemperature()),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
