package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/httpapi"
	"chatd/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the chat page and JSON API",
		Example: "  chatd serve --model ~/models/phogpt-4b-chat.Q4_K_M.gguf --template vi\n  chatd serve --backend server --server-url http://127.0.0.1:8081",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.flags.Addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults CHATD_ADDR or :8080)")
	f.IntVar(&a.flags.MaxQueueDepth, "max-queue-depth", 0, "Requests allowed to wait for the generation slot (default 32)")
	f.IntVar(&a.flags.MaxWaitS, "max-wait", 0, "Seconds a request may wait for the generation slot (default 30)")
	f.IntVar(&a.flags.InferTimeoutS, "infer-timeout", 0, "Seconds one exchange may take, wait included (0 disables)")
	f.IntVar(&a.flags.SessionTTLS, "session-ttl", 0, "Seconds before an idle session is dropped (default 3600, negative disables)")
	f.Int64Var(&a.flags.MaxBodyBytes, "max-body-bytes", 0, "Request body limit in bytes (default 1 MiB)")
	f.BoolVar(&a.flags.CORSEnabled, "cors-enabled", false, "Enable CORS for the JSON API")
	f.StringVar(&a.cors, "cors-origins", "", "Comma-separated allowed origins (default *)")
	f.StringVar(&a.flags.Page.StaticDir, "static-dir", "", "Serve /static/ from this directory instead of the embedded assets")
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	bot, err := a.newBot(cmd)
	if err != nil {
		return err
	}
	defer bot.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore(bot, session.Options{Greeting: a.cfg.Greeting, Logger: a.log})
	ttl := seconds(a.cfg.SessionTTLS)
	go store.RunReaper(ctx, ttl, reapInterval(ttl))

	httpapi.SetLogger(a.log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(a.cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(int64(a.cfg.InferTimeoutS))
	httpapi.SetCORSOptions(a.cfg.CORSEnabled, a.cfg.CORSAllowedOrigins, nil, nil)

	page := a.cfg.Page
	srv := &http.Server{
		Addr: a.cfg.Addr,
		Handler: httpapi.NewMux(bot, store, httpapi.Page{
			Title:          page.Title,
			LogoURL:        page.LogoURL,
			Credits:        page.Credits,
			AccountStatus:  page.AccountStatus,
			SupportContact: page.SupportContact,
			BotAvatar:      page.BotAvatar,
			UserAvatar:     page.UserAvatar,
			StaticDir:      page.StaticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

// reapInterval checks for idle sessions a few times per ttl.
func reapInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	iv := ttl / 4
	if iv < time.Second {
		iv = time.Second
	}
	if iv > 5*time.Minute {
		iv = 5 * time.Minute
	}
	return iv
}

// contextWithTimeout bounds ctx by d; d <= 0 only adds cancellation.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), d)
}
