// Package chatbot turns a user instruction into a templated prompt, runs it
// through a model runtime and extracts the assistant reply.
//
// A Bot serializes generations: at most one runs at a time, and up to
// MaxQueueDepth callers wait (FIFO by channel order) for the slot. Each call
// is single-turn; no conversation history reaches the prompt.
package chatbot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/inference"
	"chatd/pkg/types"
)

// Detokenizer is implemented by runtimes that can decode token ids back to
// text. When available, the prompt half of the raw output is decoded from its
// tokens rather than copied, matching a full-sequence decode.
type Detokenizer interface {
	Detokenize(ctx context.Context, tokens []int) (string, error)
}

// Bot is the inference adapter.
type Bot struct {
	rt     inference.Runtime
	tmpl   Template
	params inference.Params
	log    zerolog.Logger

	maxQueueDepth int
	maxWait       time.Duration
	genCh         chan struct{} // size 1: single in-flight generation
	queueCh       chan struct{} // buffered: waiting + in-flight

	mu        sync.RWMutex
	closed    bool
	lastErr   string
	startTime time.Time
}

// New wraps an initialized runtime. It fails with a *inference.ModelLoadError
// when rt is nil or its tokenizer cannot process the template.
func New(ctx context.Context, rt inference.Runtime, opts ...Option) (*Bot, error) {
	if rt == nil {
		return nil, inference.ErrModelLoad("", errors.New("no model runtime"))
	}
	b := &Bot{
		rt:            rt,
		tmpl:          DefaultTemplate,
		params:        inference.DefaultParams(),
		log:           zerolog.Nop(),
		maxQueueDepth: defaultMaxQueueDepth,
		maxWait:       defaultMaxWait,
		startTime:     time.Now(),
	}
	for _, o := range opts {
		o(b)
	}
	if err := b.tmpl.Validate(); err != nil {
		return nil, err
	}
	b.params = b.params.WithDefaults()
	b.genCh = make(chan struct{}, 1)
	b.queueCh = make(chan struct{}, b.maxQueueDepth+1)

	// Probe the tokenizer now so a broken runtime fails at startup, not on first use.
	if _, err := rt.Tokenize(ctx, b.tmpl.Format("")); err != nil {
		return nil, inference.ErrModelLoad(rt.Name(), err)
	}
	b.log.Info().Str("runtime", rt.Name()).Int("n_ctx", rt.ContextSize()).
		Float32("temperature", b.params.Temperature).Int("top_k", b.params.TopK).
		Float32("top_p", b.params.TopP).Int("max_new_tokens", b.params.MaxNewTokens).
		Msg("chatbot ready")
	return b, nil
}

// Template returns the prompt template in use.
func (b *Bot) Template() Template { return b.tmpl }

// Prompt builds the prompt for instruction.
func (b *Bot) Prompt(instruction string) string { return b.tmpl.Format(instruction) }

// GenerateResponse runs one blocking, single-turn generation for instruction
// and returns the trimmed assistant reply.
//
// Errors: *inference.ContextOverflowError when the prompt exceeds the model
// context, *inference.MalformedOutputError when the answer marker is missing
// from the decoded output, a too-busy error when the wait queue is full or the
// wait times out, and ctx.Err() on cancellation.
func (b *Bot) GenerateResponse(ctx context.Context, instruction string) (string, error) {
	start := time.Now()
	resp, err := b.generate(ctx, instruction)
	outcome := outcomeOf(err)
	generationsTotal.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		b.mu.Lock()
		b.lastErr = err.Error()
		b.mu.Unlock()
		b.log.Warn().Err(err).Str("outcome", outcome).Dur("dur", time.Since(start)).Msg("generation failed")
		return "", err
	}
	b.log.Debug().Dur("dur", time.Since(start)).Int("response_len", len(resp)).Msg("generation done")
	return resp, nil
}

func (b *Bot) generate(ctx context.Context, instruction string) (string, error) {
	prompt := b.tmpl.Format(instruction)

	release, err := b.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	tokens, err := b.rt.Tokenize(ctx, prompt)
	if err != nil {
		return "", err
	}
	if n := b.rt.ContextSize(); n > 0 && len(tokens) > n {
		return "", &inference.ContextOverflowError{Tokens: len(tokens), Context: n}
	}

	res, err := b.rt.Generate(ctx, prompt, b.params, func(string) error { return nil })
	if err != nil {
		return "", err
	}

	decoded := prompt
	if d, ok := b.rt.(Detokenizer); ok {
		if decoded, err = d.Detokenize(ctx, tokens); err != nil {
			return "", err
		}
	}
	return b.tmpl.Extract(decoded + res.Text)
}

// Ready reports whether the bot accepts requests.
func (b *Bot) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Status reports adapter and queue state. Sessions is left for the caller.
func (b *Bot) Status() types.StatusResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state := "ready"
	if b.closed {
		state = "closed"
	}
	inflight := len(b.genCh)
	now := time.Now()
	return types.StatusResponse{
		State:          state,
		Runtime:        b.rt.Name(),
		ContextSize:    b.rt.ContextSize(),
		QueueLen:       len(b.queueCh) - inflight,
		Inflight:       inflight,
		MaxQueueDepth:  b.maxQueueDepth,
		LastError:      b.lastErr,
		UptimeSeconds:  int64(now.Sub(b.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// Close stops accepting requests and releases the runtime. It does not wait
// for an in-flight generation; cancel its context first.
func (b *Bot) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.rt.Close()
}
