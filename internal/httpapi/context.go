package httpapi

import (
	"context"
)

// serverBaseCtx is canceled on shutdown so running generations stop too.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context joined into every exchange.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives from a and is also canceled when b is done. Values
// come from a. The cancel func must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// exchangeContext joins the request with the base context and applies the
// configured per-exchange timeout.
func exchangeContext(reqCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(reqCtx, serverBaseCtx)
	if inferTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, inferTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
