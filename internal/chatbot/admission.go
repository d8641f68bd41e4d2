package chatbot

import (
	"context"
	"time"

	"chatd/internal/inference"
)

// acquire reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (b *Bot) acquire(ctx context.Context) (func(), error) {
	if !b.Ready() {
		return func() {}, inference.ErrDependencyUnavailable("chatbot closed")
	}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	// Reserve a queue slot; a full queue is rejected immediately.
	select {
	case b.queueCh <- struct{}{}:
	default:
		return func() {}, inference.ErrTooBusy("queue_full")
	}
	queueLen.Set(float64(len(b.queueCh)))

	acquired := false
	defer func() {
		if !acquired {
			<-b.queueCh
			queueLen.Set(float64(len(b.queueCh)))
		}
	}()

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case b.genCh <- struct{}{}:
		acquired = true
		return func() {
			<-b.genCh
			<-b.queueCh
			queueLen.Set(float64(len(b.queueCh)))
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, inference.ErrTooBusy("wait_timeout")
	}
}
