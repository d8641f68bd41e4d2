package chatbot

import (
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/inference"
)

// Defaults applied when queue options are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// Option configures a Bot.
type Option func(*Bot)

// WithTemplate sets the prompt template.
func WithTemplate(t Template) Option { return func(b *Bot) { b.tmpl = t } }

// WithParams sets generation parameters; zero numeric fields take package defaults.
func WithParams(p inference.Params) Option { return func(b *Bot) { b.params = p } }

// WithQueue bounds the number of waiting callers and how long each may wait
// for the generation slot. Non-positive values keep the defaults.
func WithQueue(depth int, wait time.Duration) Option {
	return func(b *Bot) {
		if depth > 0 {
			b.maxQueueDepth = depth
		}
		if wait > 0 {
			b.maxWait = wait
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bot) { b.log = l.With().Str("component", "chatbot").Logger() }
}
